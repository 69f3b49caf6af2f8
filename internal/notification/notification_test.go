package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smatrader/internal/model"
)

func TestWebhookNotifier_PostsAlert(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	trade := model.Trade{Seq: 3, Type: model.SignalBuy, Price: 21034.5, Quantity: 1, Timestamp: ts}
	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), TradeAlert(trade)); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.Level != AlertInfo || got.Title != "BUY signal" {
		t.Fatalf("unexpected alert: %+v", got)
	}
	if !strings.Contains(got.Message, "21034.50") || !got.Time.Equal(ts) {
		t.Fatalf("unexpected message or time: %+v", got)
	}
	if got.Trade == nil || got.Trade.Seq != 3 || got.Trade.Type != model.SignalBuy {
		t.Fatalf("expected trade in payload, got %+v", got.Trade)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestTelegramNotifier_EscapesAndPosts(t *testing.T) {
	var body map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "fetch", Message: "price 1.5"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if body["chat_id"] != "42" || !strings.Contains(body["text"], `price 1\.5`) {
		t.Fatalf("unexpected body: %v", body)
	}
}

type fakeNotifier struct {
	sent int
	err  error
}

func (f *fakeNotifier) Send(context.Context, Alert) error {
	f.sent++
	return f.err
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &fakeNotifier{}, &fakeNotifier{err: boom}, &fakeNotifier{}

	err := Multi{a, b, c}.Send(context.Background(), Alert{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
	if a.sent != 1 || b.sent != 1 || c.sent != 1 {
		t.Fatalf("expected every notifier called once, got %d %d %d", a.sent, b.sent, c.sent)
	}
}

func TestTradeAlerts_Hooks(t *testing.T) {
	f := &fakeNotifier{}
	alerts := NewTradeAlerts(f)
	var sent, failed int
	alerts.OnSent = func() { sent++ }
	alerts.OnFailed = func(error) { failed++ }

	ctx := context.Background()
	if err := alerts.OnPoint(ctx, model.PricePoint{}); err != nil || f.sent != 0 {
		t.Fatalf("points must not alert: err=%v sent=%d", err, f.sent)
	}
	if err := alerts.OnTrade(ctx, model.Trade{Type: model.SignalSell}); err != nil {
		t.Fatal(err)
	}
	f.err = errors.New("down")
	if err := alerts.OnTrade(ctx, model.Trade{Type: model.SignalBuy}); err == nil {
		t.Fatal("expected error from failing notifier")
	}
	if sent != 1 || failed != 1 {
		t.Fatalf("expected sent=1 failed=1, got %d %d", sent, failed)
	}
}

func TestTelegramNotifier_TradeTicket(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	trade := model.Trade{
		Seq:       3,
		Type:      model.SignalSell,
		Price:     21034.17,
		Quantity:  1,
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := n.Send(context.Background(), TradeAlert(trade)); err != nil {
		t.Fatalf("send: %v", err)
	}

	want := "\U0001f534 *SELL* \\#3\nqty 1 @ 21034\\.17\n2026\\-05\\-01 12:00:00 UTC"
	if body["text"] != want {
		t.Fatalf("unexpected ticket:\n got %q\nwant %q", body["text"], want)
	}
	if body["parse_mode"] != "MarkdownV2" {
		t.Fatalf("expected MarkdownV2, got %q", body["parse_mode"])
	}
}

func TestTelegramNotifier_Rejected(t *testing.T) {
	cases := map[string]struct {
		status int
		reply  string
	}{
		"not ok":     {http.StatusOK, `{"ok":false,"description":"chat not found"}`},
		"bad status": {http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`},
	}
	for name, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.reply))
		}))
		n := NewTelegramNotifier("TOKEN", "42")
		n.apiBase = srv.URL
		err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "x"})
		if err == nil || !strings.Contains(err.Error(), "chat not found") {
			t.Errorf("%s: expected chat not found error, got %v", name, err)
		}
		srv.Close()
	}
}
