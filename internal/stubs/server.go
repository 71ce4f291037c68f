package stubs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcheng-dev/botconsole/internal/transport"
	"github.com/rcheng-dev/botconsole/internal/upstream"
)

// Server exposes a Simulator over the trading-process HTTP surface plus an
// SSE /stream that pushes full status snapshots. Point a console at it and
// every panel lights up with synthetic but mutually consistent data.
type Server struct {
	sim    *Simulator
	apiKey string

	clientsMu sync.RWMutex
	clients   map[string]chan transport.EventEnvelope
	nextID    int
	// history backs cursor polls from consoles on the http transport.
	history []transport.EventEnvelope
}

const historyCap = 100

func NewServer(sim *Simulator, apiKey string) *Server {
	return &Server{
		sim:     sim,
		apiKey:  apiKey,
		clients: make(map[string]chan transport.EventEnvelope),
	}
}

// Run ticks the simulator and pushes a status snapshot to every SSE client
// on each tick, until ctx is cancelled.
func (s *Server) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sim.Tick()
			s.broadcastStatus()
		}
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.auth(s.handleStatus))
	mux.HandleFunc("/api/bot_status", s.auth(s.handleBotStatus))
	mux.HandleFunc("/api/start_bot", s.auth(s.handleStart))
	mux.HandleFunc("/api/stop_bot", s.auth(s.handleStop))
	mux.HandleFunc("/api/restart_bot", s.auth(s.handleRestart))
	mux.HandleFunc("/api/update_config", s.auth(s.handleUpdateConfig))
	mux.HandleFunc("/api/trading_logs", s.auth(s.handleLogs))
	mux.HandleFunc("/api/signal_accuracy", s.auth(s.handleAccuracy))
	mux.HandleFunc("/api/ai_decisions", s.auth(s.handleDecisions))
	mux.HandleFunc("/api/trades", s.auth(s.handleTrades))
	mux.HandleFunc("/api/overview", s.auth(s.handleOverview))
	mux.HandleFunc("/api/equity_curve", s.auth(s.handleLegacyCurve))
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) statusPayload() upstream.StatusResponse {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	resp := upstream.StatusResponse{
		BotRunning:      s.sim.running,
		Price:           s.sim.price,
		Signal:          s.sim.signal,
		Confidence:      s.sim.confidence,
		SignalTimestamp: s.sim.signalTS.UTC().Format(time.RFC3339),
		TradeCount:      len(s.sim.trades),
		CurrentBalance:  s.sim.balance,
		InitialBalance:  s.sim.initialBalance,
		Config:          map[string]any{"test_mode": s.sim.testMode},
	}
	if s.sim.position != nil {
		p := *s.sim.position
		resp.Position = &p
	}
	for _, tr := range s.sim.trades {
		resp.TotalPnl += tr.RealizedPnl
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleBotStatus(w http.ResponseWriter, _ *http.Request) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	resp := upstream.BotRuntimeResponse{Success: true, Running: s.sim.running, Status: "stopped"}
	if s.sim.running {
		resp.Status = "online"
		resp.UptimeMs = time.Since(s.sim.startedAt).Milliseconds()
	}
	writeJSON(w, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sim.Start() {
		writeJSON(w, upstream.ActionResponse{Success: true, Message: "bot started"})
		return
	}
	writeJSON(w, upstream.ActionResponse{Success: false, Message: "bot already running"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sim.Stop() {
		writeJSON(w, upstream.ActionResponse{Success: true, Message: "bot stopped"})
		return
	}
	writeJSON(w, upstream.ActionResponse{Success: false, Message: "bot not running"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sim.Restart()
	writeJSON(w, upstream.ActionResponse{Success: true, Message: "bot restarted"})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var cfg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return
	}
	s.sim.UpdateConfig(cfg)
	writeJSON(w, upstream.ActionResponse{Success: true, Message: "config updated"})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	s.sim.mu.Lock()
	logs := append([]string(nil), s.sim.logs...)
	s.sim.mu.Unlock()
	writeJSON(w, upstream.TradingLogsResponse{
		Success:    true,
		Logs:       logs,
		FileExists: true,
		LogFile:    "trading_bot.log",
	})
}

func (s *Server) handleAccuracy(w http.ResponseWriter, _ *http.Request) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	total := s.sim.wins + s.sim.losses
	rate := 0.0
	if total > 0 {
		rate = float64(s.sim.wins) / float64(total) * 100
	}
	dist := map[string]int{"BUY": 0, "SELL": 0, "HOLD": 0}
	for _, d := range s.sim.decisions {
		dist[d.Signal]++
	}
	writeJSON(w, upstream.SignalAccuracyResponse{
		Success:       true,
		TotalTrades:   total,
		WinningTrades: s.sim.wins,
		LosingTrades:  s.sim.losses,
		AccuracyRate:  rate,
		Distribution:  dist,
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, _ *http.Request) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	writeJSON(w, map[string]any{"decisions": s.sim.decisions})
}

func (s *Server) handleTrades(w http.ResponseWriter, _ *http.Request) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	writeJSON(w, map[string]any{"trades": s.sim.trades})
}

// handleOverview serves the current-generation aggregate shape. With
// LegacyOnly set it answers 404, which drives a console down the
// fallback chain to /api/equity_curve.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	if s.sim.LegacyOnly {
		http.NotFound(w, r)
		return
	}

	type rawPoint = map[string]any
	n := len(s.sim.models[s.sim.order[0]])
	series := make([]rawPoint, 0, n)
	for i := 0; i < n; i++ {
		pt := rawPoint{"timestamp": s.sim.models[s.sim.order[0]][i].ts.UTC().Format(time.RFC3339)}
		for _, m := range s.sim.order {
			pt[m] = s.sim.models[m][i].balance
		}
		series = append(series, pt)
	}
	writeJSON(w, map[string]any{
		"aggregate":        map[string]any{"total_equity": s.sim.balance},
		"aggregate_series": series,
		"models":           s.sim.order,
	})
}

func (s *Server) handleLegacyCurve(w http.ResponseWriter, _ *http.Request) {
	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()

	n := len(s.sim.models[s.sim.order[0]])
	data := make([]map[string]any, 0, n)
	maxBal, minBal := s.sim.initialBalance, s.sim.initialBalance
	peak, maxDD := s.sim.initialBalance, 0.0
	for i := 0; i < n; i++ {
		var total float64
		for _, m := range s.sim.order {
			total += s.sim.models[m][i].balance
		}
		data = append(data, map[string]any{
			"timestamp": s.sim.models[s.sim.order[0]][i].ts.UTC().Format(time.RFC3339),
			"balance":   total,
		})
		if total > maxBal {
			maxBal = total
		}
		if total < minBal {
			minBal = total
		}
		if total > peak {
			peak = total
		}
		if dd := (total - peak) / peak * 100; dd < maxDD {
			maxDD = dd
		}
	}
	writeJSON(w, map[string]any{
		"success": true,
		"stats": map[string]any{
			"initial_balance": s.sim.initialBalance,
			"current_balance": s.sim.balance,
			"max_balance":     maxBal,
			"min_balance":     minBal,
			"max_drawdown":    maxDD,
			"total_return":    (s.sim.balance - s.sim.initialBalance) / s.sim.initialBalance * 100,
		},
		"data": data,
	})
}

// handleStream is the push channel: a status envelope per tick. All three
// console transports share the one endpoint: websocket when the request
// asks for an upgrade, SSE when it accepts an event stream, and a
// cursor-poll JSON answer otherwise. SSE frames carry heartbeat comments
// to keep intermediaries from dropping the connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWS(w, r)
		return
	}
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.handlePoll(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan transport.EventEnvelope, 16)
	s.clientsMu.Lock()
	clientID := fmt.Sprintf("client-%d", len(s.clients))
	s.clients[clientID] = ch
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientID)
		s.clientsMu.Unlock()
		log.Printf("stream client %s disconnected", clientID)
	}()

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case env := <-ch:
			if err := writeSSE(w, env); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, env transport.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", env.Type, env.ID, data); err != nil {
		return err
	}
	return nil
}

// handlePoll answers a cursor poll with the events pushed since the
// caller's cursor, newest last, plus the cursor to resume from.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))

	s.clientsMu.RLock()
	events := make([]transport.EventEnvelope, 0, len(s.history))
	for _, env := range s.history {
		if id, err := strconv.Atoi(env.ID); err == nil && id > cursor {
			events = append(events, env)
		}
	}
	next := s.nextID
	s.clientsMu.RUnlock()

	writeJSON(w, map[string]any{
		"events": events,
		"cursor": strconv.Itoa(next),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS pushes the same envelopes over a websocket, for consoles
// configured with the ws transport.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan transport.EventEnvelope, 16)
	s.clientsMu.Lock()
	clientID := fmt.Sprintf("ws-client-%d", len(s.clients))
	s.clients[clientID] = ch
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientID)
		s.clientsMu.Unlock()
	}()

	// Reader goroutine only to detect the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case env := <-ch:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}

func (s *Server) broadcastStatus() {
	payload, err := json.Marshal(s.statusPayload())
	if err != nil {
		return
	}
	s.clientsMu.Lock()
	s.nextID++
	env := transport.EventEnvelope{
		V:       1,
		Type:    transport.EventStatus,
		ID:      fmt.Sprintf("%d", s.nextID),
		TS:      time.Now().UTC(),
		Payload: payload,
	}
	s.history = append(s.history, env)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	for id, ch := range s.clients {
		select {
		case ch <- env:
		default:
			log.Printf("stream client %s is slow, dropping event %s", id, env.ID)
		}
	}
	s.clientsMu.Unlock()
}
