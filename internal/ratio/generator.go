// Package ratio turns a pair of quote snapshots into one analytical row.
package ratio

import (
	"fmt"
	"math"

	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

// DefaultDelta is the half-width of the alert band around 1.0
const DefaultDelta = 0.05

// Pair holds the latest snapshot of each tracked instrument
type Pair struct {
	A models.QuoteSnapshot
	B models.QuoteSnapshot
}

// Generator is stateless after construction and safe for concurrent use.
type Generator struct {
	instrumentA string
	instrumentB string
	upper       float64
	lower       float64
}

func NewGenerator(instrumentA, instrumentB string, delta float64) (*Generator, error) {
	if instrumentA == "" || instrumentB == "" || instrumentA == instrumentB {
		return nil, fmt.Errorf("instruments must be distinct and non-empty, got %q and %q", instrumentA, instrumentB)
	}
	if delta < 0 || delta >= 1 || math.IsNaN(delta) {
		return nil, fmt.Errorf("delta must be in [0, 1), got %v", delta)
	}
	return &Generator{
		instrumentA: instrumentA,
		instrumentB: instrumentB,
		upper:       1 + delta,
		lower:       1 - delta,
	}, nil
}

func (g *Generator) Instruments() (a, b string) { return g.instrumentA, g.instrumentB }

func (g *Generator) Bounds() (upper, lower float64) { return g.upper, g.lower }

// PairFrom associates an unordered set of snapshots with the configured
// instruments by symbol.
func (g *Generator) PairFrom(snapshots []models.QuoteSnapshot) (Pair, error) {
	if len(snapshots) != 2 {
		return Pair{}, &InputError{Reason: fmt.Sprintf("need exactly 2 snapshots, got %d", len(snapshots))}
	}

	var p Pair
	var haveA, haveB bool
	for _, s := range snapshots {
		switch s.Symbol {
		case g.instrumentA:
			if haveA {
				return Pair{}, &InputError{Field: "symbol", Reason: "duplicate snapshot for " + s.Symbol}
			}
			p.A, haveA = s, true
		case g.instrumentB:
			if haveB {
				return Pair{}, &InputError{Field: "symbol", Reason: "duplicate snapshot for " + s.Symbol}
			}
			p.B, haveB = s, true
		default:
			return Pair{}, &InputError{Field: "symbol", Reason: fmt.Sprintf("untracked instrument %q", s.Symbol)}
		}
	}
	return p, nil
}

// Generate derives the analytical row for one snapshot pair.
func (g *Generator) Generate(p Pair) (models.AnalyticalRow, error) {
	if p.A.Symbol != g.instrumentA {
		return models.AnalyticalRow{}, &InputError{Field: "A.symbol", Reason: fmt.Sprintf("want %q, got %q", g.instrumentA, p.A.Symbol)}
	}
	if p.B.Symbol != g.instrumentB {
		return models.AnalyticalRow{}, &InputError{Field: "B.symbol", Reason: fmt.Sprintf("want %q, got %q", g.instrumentB, p.B.Symbol)}
	}

	priceABC, err := midPrice("A", p.A)
	if err != nil {
		return models.AnalyticalRow{}, err
	}
	priceDEF, err := midPrice("B", p.B)
	if err != nil {
		return models.AnalyticalRow{}, err
	}

	ratio := priceABC / priceDEF
	if math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return models.AnalyticalRow{}, &ArithmeticError{PriceABC: priceABC, PriceDEF: priceDEF}
	}

	ts := p.A.Timestamp
	if p.B.Timestamp.After(ts) {
		ts = p.B.Timestamp
	}

	row := models.AnalyticalRow{
		PriceABC:   priceABC,
		PriceDEF:   priceDEF,
		Ratio:      ratio,
		Timestamp:  ts,
		UpperBound: g.upper,
		LowerBound: g.lower,
	}
	if ratio > g.upper || ratio < g.lower {
		alert := ratio
		row.TriggerAlert = &alert
	}
	return row, nil
}

func midPrice(side string, s models.QuoteSnapshot) (float64, error) {
	if s.TopAsk == nil {
		return 0, &InputError{Field: side + ".top_ask", Reason: "missing"}
	}
	if s.TopBid == nil {
		return 0, &InputError{Field: side + ".top_bid", Reason: "missing"}
	}
	if !finite(s.TopAsk.Price) || !finite(s.TopBid.Price) {
		return 0, &InputError{Field: side, Reason: "non-finite price"}
	}
	return (s.TopAsk.Price + s.TopBid.Price) / 2, nil
}

func finite(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) }
