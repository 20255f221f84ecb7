// Package feed streams reflexion records to dashboard clients over
// websockets. Publishing never blocks the reflexion cycle: slow
// subscribers are dropped rather than back-pressuring the request path.
package feed

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/veristroke/veristroke/internal/reflexion"
)

// #region hub

const subscriberBuffer = 32

// Hub fans reflexion records out to connected websocket clients. It
// implements the reflexion sink contract.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan reflexion.Record]struct{}

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan reflexion.Record]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "feed").Logger(),
	}
}

// Publish sends a record to every subscriber without blocking. A
// subscriber whose buffer is full misses the record.
func (h *Hub) Publish(rec reflexion.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			h.log.Warn().Msg("subscriber buffer full, record dropped")
		}
	}
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) subscribe() chan reflexion.Record {
	ch := make(chan reflexion.Record, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan reflexion.Record) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

// #endregion hub

// #region serve

// ServeHTTP upgrades the connection and streams records as JSON until
// the client disconnects or a write fails.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := h.subscribe()
	defer func() {
		h.unsubscribe(ch)
		conn.Close()
	}()

	// Reader goroutine only notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec := <-ch:
			if err := conn.WriteJSON(rec); err != nil {
				h.log.Debug().Err(err).Msg("subscriber write failed")
				return
			}
		case <-done:
			return
		}
	}
}

// #endregion serve
