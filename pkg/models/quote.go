package models

import "time"

// BookLevel is one side of the top of book
type BookLevel struct {
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
}

// QuoteSnapshot is one instrument's top-of-book state at a single tick.
// A side the feed did not report is nil.
type QuoteSnapshot struct {
	Symbol    string     `json:"stock"`
	TopAsk    *BookLevel `json:"top_ask"`
	TopBid    *BookLevel `json:"top_bid"`
	Timestamp time.Time  `json:"timestamp"`
	SeqID     int64      `json:"seq_id"` // monotonic counter per symbol
}
