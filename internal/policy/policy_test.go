package policy

import (
	"math"
	"sync"
	"testing"

	"github.com/veristroke/veristroke/internal/scorer"
)

type fixedPolicy struct {
	params scorer.ParameterVector
}

func (p fixedPolicy) Parameters(scorer.FeatureVector) scorer.ParameterVector {
	return p.params
}

func TestDefaultIsValid(t *testing.T) {
	def := Default()
	if def.Threshold != 0.7 {
		t.Fatalf("expected threshold 0.7, got %f", def.Threshold)
	}
	var sum float64
	for _, w := range def.Weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("default weights sum to %f", sum)
	}
}

func TestLiveFallsBackToDefault(t *testing.T) {
	live := NewLive()
	got := live.Parameters(scorer.FeatureVector{0.5, 0.5, 0.5, 0.5})
	if got != Default() {
		t.Fatalf("expected heuristic default with no checkpoint, got %+v", got)
	}
	if live.Current() != nil {
		t.Fatal("expected nil current entry")
	}
}

func TestLiveSwap(t *testing.T) {
	live := NewLive()
	want := scorer.ParameterVector{Threshold: 0.4, Weights: [4]float64{0.4, 0.2, 0.2, 0.2}}
	live.Swap(&Entry{Policy: fixedPolicy{params: want}, Version: "v1", Step: 50})

	got := live.Parameters(scorer.FeatureVector{})
	if got != want {
		t.Fatalf("expected swapped policy params, got %+v", got)
	}
	if cur := live.Current(); cur == nil || cur.Version != "v1" {
		t.Fatalf("unexpected current entry: %+v", cur)
	}
}

func TestLiveConcurrentReaders(t *testing.T) {
	live := NewLive()
	a := scorer.ParameterVector{Threshold: 0.3, Weights: [4]float64{0.25, 0.25, 0.25, 0.25}}
	b := scorer.ParameterVector{Threshold: 0.8, Weights: [4]float64{0.1, 0.2, 0.3, 0.4}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := live.Parameters(scorer.FeatureVector{})
				if got != Default() && got != a && got != b {
					t.Errorf("observed torn policy: %+v", got)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			live.Swap(&Entry{Policy: fixedPolicy{params: a}})
		} else {
			live.Swap(&Entry{Policy: fixedPolicy{params: b}})
		}
	}
	close(stop)
	wg.Wait()
}
