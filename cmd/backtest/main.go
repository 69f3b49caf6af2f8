// cmd/backtest replays prices through a fresh tracker and prints the trades
// the crossover strategy would have made. Prices come from a trade journal
// written by smatrader (SQLITE_PATH) or from -prices.
//
// Usage:
//
//	go run ./cmd/backtest -db data/journal.db -short 5 -long 20
//	go run ./cmd/backtest -prices 1,1,1,10,10,10,1,1,1 -short 2 -long 3
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"smatrader/internal/logger"
	"smatrader/internal/model"
	"smatrader/internal/portfolio"
	sqlitestore "smatrader/internal/store/sqlite"
	"smatrader/internal/tracker"
)

func main() {
	logger.Init("backtest", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	short := flag.Int("short", tracker.DefaultShortWindow, "Short SMA window")
	long := flag.Int("long", tracker.DefaultLongWindow, "Long SMA window")
	dbPath := flag.String("db", "", "Path to a smatrader journal database")
	from := flag.Int64("from", 0, "Unix timestamp to start replay after (0=all)")
	pricesStr := flag.String("prices", "", "Comma-separated prices to replay instead of -db")
	flag.Parse()

	var points []model.PricePoint
	switch {
	case *pricesStr != "":
		prices, err := parsePrices(*pricesStr)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		points = synthesize(prices, time.Now().UTC(), 10*time.Second)
	case *dbPath != "":
		reader, err := sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer reader.Close()

		var after time.Time
		if *from > 0 {
			after = time.Unix(*from, 0)
		}
		points, err = reader.Points(after)
		if err != nil {
			log.Fatalf("[backtest] read points: %v", err)
		}
	default:
		log.Fatal("[backtest] one of -db or -prices is required")
	}

	tr, err := tracker.New(tracker.Config{ShortWindow: *short, LongWindow: *long})
	if err != nil {
		log.Fatalf("[backtest] tracker init failed: %v", err)
	}

	trades := replay(tr, points)
	for _, t := range trades {
		fmt.Printf("  #%d %-4s at %.2f  %s\n", t.Seq, t.Type, t.Price, t.Timestamp.Format(time.RFC3339))
	}

	fmt.Println()
	fmt.Println("BACKTEST COMPLETE")
	fmt.Printf("  Points replayed: %d\n", len(points))
	fmt.Printf("  Windows:         %d/%d\n", *short, *long)
	fmt.Printf("  Trades:          %d\n", len(trades))
	pnl := portfolio.Replay(trades).Summary()
	fmt.Printf("  Round trips:     %d\n", pnl.RoundTrips)
	fmt.Printf("  Realized P&L:    %.2f\n", pnl.RealizedPnL)
}

// replay feeds every point's price through tr and returns the resulting trades.
func replay(tr *tracker.Tracker, points []model.PricePoint) []model.Trade {
	for _, p := range points {
		tr.Tick(p.Price, p.Timestamp)
	}
	return tr.Trades()
}

func parsePrices(s string) ([]float64, error) {
	var prices []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", p, err)
		}
		prices = append(prices, v)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no prices given")
	}
	return prices, nil
}

// synthesize stamps prices step apart, starting at start.
func synthesize(prices []float64, start time.Time, step time.Duration) []model.PricePoint {
	points := make([]model.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = model.PricePoint{Timestamp: start.Add(time.Duration(i) * step), Price: p}
	}
	return points
}
