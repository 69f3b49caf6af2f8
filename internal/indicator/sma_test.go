package indicator

import (
	"math"
	"testing"

	"smatrader/internal/ringbuf"
)

func TestSMA_Empty(t *testing.T) {
	buf := ringbuf.MustNew[float64](5)
	if got := SMA(buf); got != 0 {
		t.Fatalf("expected 0 for empty buffer, got %v", got)
	}
}

func TestSMA_FullBuffer(t *testing.T) {
	buf := ringbuf.MustNew[float64](3)
	for _, v := range []float64{10, 20, 30} {
		buf.Push(v)
	}
	if got := SMA(buf); got != 20 {
		t.Fatalf("expected 20, got %v", got)
	}
}

func TestSMA_PartialAndWrapped(t *testing.T) {
	cases := []struct {
		name   string
		cap    int
		pushes []float64
		want   float64
	}{
		{"partial", 5, []float64{2, 4}, 3},
		{"single", 1, []float64{7, 8, 9}, 9},
		{"wrapped", 3, []float64{1, 2, 3, 4, 5}, 4},
		{"exact fill", 2, []float64{100, 200}, 150},
	}
	for _, tc := range cases {
		buf := ringbuf.MustNew[float64](tc.cap)
		for _, v := range tc.pushes {
			buf.Push(v)
		}
		if got := SMA(buf); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSMA_DoesNotMutate(t *testing.T) {
	buf := ringbuf.MustNew[float64](3)
	buf.Push(1)
	buf.Push(2)
	SMA(buf)
	if buf.Len() != 2 {
		t.Fatalf("SMA changed buffer length to %d", buf.Len())
	}
}
