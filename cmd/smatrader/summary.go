package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"smatrader/internal/model"
)

// printTradeSummary writes one line per trade, oldest first.
func printTradeSummary(w io.Writer, trades []model.Trade) {
	fmt.Fprintln(w, "\nTrade Summary:")
	fmt.Fprintln(w, "----------------------------------")

	if len(trades) == 0 {
		fmt.Fprintln(w, "No trades executed")
		return
	}
	for i, t := range trades {
		fmt.Fprintf(w, "%d. %s at %s - %s\n", i+1, t.Type, formatUSD(t.Price), t.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}
}

// formatUSD renders a price as $1,234.56.
func formatUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + frac
}
