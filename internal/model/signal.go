package model

// Signal is a crossover outcome. There is no "none" value: the absence of a
// signal is expressed by the caller (ok=false or a nil *Trade).
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// Valid reports whether s is one of the known signals.
func (s Signal) Valid() bool {
	return s == SignalBuy || s == SignalSell
}
