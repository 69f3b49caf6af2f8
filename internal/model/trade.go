package model

import "time"

// Trade is a paper trade executed in response to a signal.
type Trade struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"` // 1-based position in the ledger
	Type      Signal    `json:"type"`
	Price     float64   `json:"price"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"ts"`
}
