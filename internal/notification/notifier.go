// Package notification delivers trade alerts to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"smatrader/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Time    time.Time  `json:"ts"`

	// Trade is set for alerts raised by a recorded trade.
	Trade *model.Trade `json:"trade,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TradeAlert builds the INFO alert sent for a recorded trade.
func TradeAlert(t model.Trade) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s signal", t.Type),
		Message: fmt.Sprintf("trade #%d: %s %d @ %.2f", t.Seq, t.Type, t.Quantity, t.Price),
		Time:    t.Timestamp,
		Trade:   &t,
	}
}

// TradeAlerts is a session sink that turns each trade into an alert.
type TradeAlerts struct {
	n Notifier

	OnSent   func()
	OnFailed func(err error)
}

func NewTradeAlerts(n Notifier) *TradeAlerts {
	return &TradeAlerts{n: n}
}

// OnPoint implements model.Sink. Points do not raise alerts.
func (a *TradeAlerts) OnPoint(context.Context, model.PricePoint) error { return nil }

// OnTrade implements model.Sink.
func (a *TradeAlerts) OnTrade(ctx context.Context, t model.Trade) error {
	if err := a.n.Send(ctx, TradeAlert(t)); err != nil {
		if a.OnFailed != nil {
			a.OnFailed(err)
		}
		return fmt.Errorf("trade alert: %w", err)
	}
	if a.OnSent != nil {
		a.OnSent()
	}
	return nil
}
