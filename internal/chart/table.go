// Package chart holds the tabular store that the ratio chart reads from.
package chart

import (
	"sort"
	"sync"
	"time"

	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

// Point is one aggregated row. Numeric fields are the mean across every row
// appended with the same timestamp; TriggerAlert averages only the rows that
// carried one and stays nil when none did.
type Point struct {
	Timestamp    time.Time `json:"timestamp"`
	PriceABC     float64   `json:"price_abc"`
	PriceDEF     float64   `json:"price_def"`
	Ratio        float64   `json:"ratio"`
	UpperBound   float64   `json:"upper_bound"`
	LowerBound   float64   `json:"lower_bound"`
	TriggerAlert *float64  `json:"trigger_alert"`
	Count        int       `json:"count"`
}

type bucket struct {
	ts         time.Time
	n          int
	priceABC   float64
	priceDEF   float64
	ratio      float64
	upper      float64
	lower      float64
	alertSum   float64
	alertCount int
}

func (b *bucket) point() Point {
	n := float64(b.n)
	p := Point{
		Timestamp:  b.ts,
		PriceABC:   b.priceABC / n,
		PriceDEF:   b.priceDEF / n,
		Ratio:      b.ratio / n,
		UpperBound: b.upper / n,
		LowerBound: b.lower / n,
		Count:      b.n,
	}
	if b.alertCount > 0 {
		avg := b.alertSum / float64(b.alertCount)
		p.TriggerAlert = &avg
	}
	return p
}

// Table keeps at most maxRows distinct timestamps; the oldest are evicted.
type Table struct {
	mu      sync.RWMutex
	maxRows int
	buckets map[int64]*bucket
}

func NewTable(maxRows int) *Table {
	if maxRows <= 0 {
		maxRows = 1
	}
	return &Table{
		maxRows: maxRows,
		buckets: make(map[int64]*bucket),
	}
}

// Update appends rows, merging each into the bucket for its timestamp.
func (t *Table) Update(rows ...models.AnalyticalRow) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range rows {
		key := r.Timestamp.UnixNano()
		b, ok := t.buckets[key]
		if !ok {
			b = &bucket{ts: r.Timestamp}
			t.buckets[key] = b
		}
		b.n++
		b.priceABC += r.PriceABC
		b.priceDEF += r.PriceDEF
		b.ratio += r.Ratio
		b.upper += r.UpperBound
		b.lower += r.LowerBound
		if r.TriggerAlert != nil {
			b.alertSum += *r.TriggerAlert
			b.alertCount++
		}
	}
	t.evict()
}

func (t *Table) evict() {
	over := len(t.buckets) - t.maxRows
	if over <= 0 {
		return
	}
	keys := t.sortedKeys()
	for _, k := range keys[:over] {
		delete(t.buckets, k)
	}
}

func (t *Table) sortedKeys() []int64 {
	keys := make([]int64, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Points returns aggregated rows in timestamp order. A non-zero since drops
// points stamped before it.
func (t *Table) Points(since time.Time) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Point, 0, len(t.buckets))
	for _, k := range t.sortedKeys() {
		b := t.buckets[k]
		if !since.IsZero() && b.ts.Before(since) {
			continue
		}
		out = append(out, b.point())
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}
