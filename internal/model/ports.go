package model

import "context"

// ── Sink Port Interfaces ──
// These interfaces decouple the tracking session from the concrete outputs
// (Redis, SQLite, WebSocket hub, alerts, metrics). Each output implements Sink.

// Sink receives every price point and every trade produced by a session,
// in tick order. Implementations must not block for long: they run inside
// the tick that produced the value.
type Sink interface {
	// OnPoint is called once per tick.
	OnPoint(ctx context.Context, p PricePoint) error

	// OnTrade is called after OnPoint for ticks that executed a trade.
	OnTrade(ctx context.Context, t Trade) error
}

// TradeReader reads journaled trades, newest first.
type TradeReader interface {
	RecentTrades(limit int) ([]Trade, error)
}
