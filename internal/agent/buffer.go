package agent

// #region imports
import (
	"math/rand"
	"sync"

	"github.com/veristroke/veristroke/internal/calenv"
)

// #endregion

// #region replay-buffer

// ReplayBuffer is a bounded ring of recent transitions. Writers never
// block; once full, the oldest transitions are overwritten.
type ReplayBuffer struct {
	mu    sync.Mutex
	items []calenv.Transition
	next  int
	full  bool
}

// NewReplayBuffer creates a buffer holding at most capacity transitions.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{items: make([]calenv.Transition, capacity)}
}

// Add appends a transition, evicting the oldest when full.
func (b *ReplayBuffer) Add(t calenv.Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.next] = t
	b.next++
	if b.next == len(b.items) {
		b.next = 0
		b.full = true
	}
}

// Len reports the number of stored transitions.
func (b *ReplayBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.items)
	}
	return b.next
}

// Sample draws up to n transitions uniformly with replacement using the
// caller's rng, keeping training runs reproducible for a fixed seed.
func (b *ReplayBuffer) Sample(n int, rng *rand.Rand) []calenv.Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.full {
		size = len(b.items)
	}
	if size == 0 || n <= 0 {
		return nil
	}

	out := make([]calenv.Transition, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.items[rng.Intn(size)])
	}
	return out
}

// #endregion replay-buffer
