package models

import "time"

// AnalyticalRow is the normalized record produced from one snapshot pair.
// TriggerAlert is nil unless the ratio left the [LowerBound, UpperBound] band,
// and encodes as JSON null in that case.
type AnalyticalRow struct {
	PriceABC     float64   `json:"price_abc"`
	PriceDEF     float64   `json:"price_def"`
	Ratio        float64   `json:"ratio"`
	Timestamp    time.Time `json:"timestamp"`
	UpperBound   float64   `json:"upper_bound"`
	LowerBound   float64   `json:"lower_bound"`
	TriggerAlert *float64  `json:"trigger_alert"`
}

// Alerting reports whether the row carries a trigger value
func (r AnalyticalRow) Alerting() bool { return r.TriggerAlert != nil }
