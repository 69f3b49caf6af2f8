package model

import "time"

// PricePoint is one tick's observation together with both moving averages
// computed after the price was pushed. Produced once per tick, never mutated.
type PricePoint struct {
	Timestamp time.Time `json:"ts"`
	Price     float64   `json:"price"`
	ShortSMA  float64   `json:"short_sma"`
	LongSMA   float64   `json:"long_sma"`
}
