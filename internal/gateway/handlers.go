package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"smatrader/internal/model"
	"smatrader/internal/portfolio"
	"smatrader/internal/scheduler"
	"smatrader/internal/session"
)

const (
	defaultHistoryLimit = 20
	defaultTradesLimit  = 50
	maxLimit            = 10000
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the scheduler surface the control endpoints drive.
type Controller interface {
	Start()
	Stop()
	Running() bool
	Interval() time.Duration
	SetInterval(d time.Duration) error
}

// Options configures the HTTP API.
type Options struct {
	TOTPSecret string // guards /api/v1/control/*, empty disables

	// Book serves /api/v1/pnl when set.
	Book *portfolio.Book

	// Journal serves /api/v1/journal/trades when set.
	Journal model.TradeReader
}

// API serves the REST endpoints and /ws.
type API struct {
	sess  *session.Session
	ctl   Controller
	hub   *Hub
	opts  Options
	start time.Time
}

// NewAPI creates the HTTP API over a session and its scheduler.
func NewAPI(sess *session.Session, ctl Controller, hub *Hub, opts Options) *API {
	return &API{sess: sess, ctl: ctl, hub: hub, opts: opts, start: time.Now()}
}

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	session.Status
	Running   bool `json:"running"`
	IntervalS int  `json:"interval_s"`
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+OTPHeader)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", a.handleWS)

	mux.HandleFunc("/api/v1/health", a.get(a.handleHealth))
	mux.HandleFunc("/api/v1/status", a.get(a.handleStatus))
	mux.HandleFunc("/api/v1/history", a.get(a.handleHistory))
	mux.HandleFunc("/api/v1/trades", a.get(a.handleTrades))
	mux.HandleFunc("/api/v1/system", a.get(a.handleSystem))
	mux.HandleFunc("/api/v1/pnl", a.get(a.handlePnL))
	mux.HandleFunc("/api/v1/journal/trades", a.get(a.handleJournalTrades))

	mux.HandleFunc("/api/v1/control/start", a.post(RequireTOTP(a.opts.TOTPSecret, a.handleStart)))
	mux.HandleFunc("/api/v1/control/stop", a.post(RequireTOTP(a.opts.TOTPSecret, a.handleStop)))
	mux.HandleFunc("/api/v1/control/interval", a.post(RequireTOTP(a.opts.TOTPSecret, a.handleInterval)))
}

// Handler returns a mux with every route registered.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	a.hub.Register(conn)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": a.ctl.Running(),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultHistoryLimit)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.sess.History(limit))
}

func (a *API) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultTradesLimit)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.sess.Trades(limit))
}

func (a *API) handleSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CollectSystem(a.start, a.hub))
}

func (a *API) handlePnL(w http.ResponseWriter, r *http.Request) {
	if a.opts.Book == nil {
		writeError(w, http.StatusNotFound, "paper book not enabled")
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Book.Summary())
}

func (a *API) handleJournalTrades(w http.ResponseWriter, r *http.Request) {
	if a.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "journal not enabled")
		return
	}
	limit, ok := parseLimit(w, r, defaultTradesLimit)
	if !ok {
		return
	}
	trades, err := a.opts.Journal.RecentTrades(limit)
	if err != nil {
		log.Printf("[gateway] journal read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	a.ctl.Start()
	log.Printf("[gateway] tracking started via API")
	writeJSON(w, http.StatusOK, a.status())
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	a.ctl.Stop()
	log.Printf("[gateway] tracking stopped via API")
	writeJSON(w, http.StatusOK, a.status())
}

func (a *API) handleInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	err := a.ctl.SetInterval(time.Duration(req.Seconds) * time.Second)
	switch {
	case errors.Is(err, scheduler.ErrIntervalNotAllowed), errors.Is(err, scheduler.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("[gateway] interval set to %ds via API", req.Seconds)
	writeJSON(w, http.StatusOK, a.status())
}

func (a *API) status() StatusResponse {
	return StatusResponse{
		Status:    a.sess.Snapshot(0, 0),
		Running:   a.ctl.Running(),
		IntervalS: int(a.ctl.Interval() / time.Second),
	}
}

func (a *API) get(h http.HandlerFunc) http.HandlerFunc {
	return a.method(http.MethodGet, h)
}

func (a *API) post(h http.HandlerFunc) http.HandlerFunc {
	return a.method(http.MethodPost, h)
}

func (a *API) method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != m {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

// parseLimit reads ?limit=, falling back to def. Writes a 400 and returns
// false on a malformed or non-positive value.
func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
