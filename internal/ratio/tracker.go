package ratio

import (
	"sync"

	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

// Tracker keeps the most recent snapshot of each tracked instrument so every
// tick can be paired with the other side's latest state.
type Tracker struct {
	instrumentA string
	instrumentB string

	mu     sync.Mutex
	latest map[string]models.QuoteSnapshot
}

func NewTracker(instrumentA, instrumentB string) *Tracker {
	return &Tracker{
		instrumentA: instrumentA,
		instrumentB: instrumentB,
		latest:      make(map[string]models.QuoteSnapshot, 2),
	}
}

// Observe records s and returns the current pair once both instruments have
// been seen. Snapshots for other symbols, or with a SeqID below the stored
// one, are ignored. An equal SeqID is a redelivery and pairs again. SeqID 0
// carries no ordering.
func (t *Tracker) Observe(s models.QuoteSnapshot) (Pair, bool) {
	if s.Symbol != t.instrumentA && s.Symbol != t.instrumentB {
		return Pair{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.latest[s.Symbol]; ok && s.SeqID != 0 && s.SeqID < prev.SeqID {
		return Pair{}, false
	}
	t.latest[s.Symbol] = s

	a, okA := t.latest[t.instrumentA]
	b, okB := t.latest[t.instrumentB]
	if !okA || !okB {
		return Pair{}, false
	}
	return Pair{A: a, B: b}, true
}
