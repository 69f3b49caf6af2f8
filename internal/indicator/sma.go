package indicator

import "smatrader/internal/ringbuf"

// SMA returns the arithmetic mean of the values currently held in buf,
// summed in Items() order. An empty buffer yields 0.
func SMA(buf *ringbuf.Ring[float64]) float64 {
	if buf.Len() == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf.Items() {
		sum += v
	}
	return sum / float64(buf.Len())
}
