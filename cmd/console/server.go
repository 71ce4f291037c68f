package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rcheng-dev/botconsole/internal/loop"
	"github.com/rcheng-dev/botconsole/internal/observ"
)

// serveHTTP exposes the rendered state and the operator actions. For the
// destructive actions the HTTP caller carries the confirmation: the
// request must say confirmed=true or the action aborts as a no-op.
func serveHTTP(ctx context.Context, addr string, l *loop.Loop, store *loop.Store) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot())
	})

	mux.HandleFunc("/api/bot/toggle", actionHandler(func(r *http.Request) (any, error) {
		return l.ToggleBot(r.Context(), confirmerFrom(r))
	}))
	mux.HandleFunc("/api/bot/restart", actionHandler(func(r *http.Request) (any, error) {
		return l.RestartBot(r.Context(), confirmerFrom(r))
	}))
	mux.HandleFunc("/api/config", actionHandler(func(r *http.Request) (any, error) {
		defer r.Body.Close()
		var cfg map[string]any
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			return nil, errBadRequest
		}
		return l.UpdateConfig(r.Context(), cfg, confirmerFrom(r))
	}))

	mux.HandleFunc("/api/refresh", actionHandler(func(*http.Request) (any, error) {
		l.RefreshNow()
		return map[string]bool{"scheduled": true}, nil
	}))
	mux.HandleFunc("/api/range", actionHandler(func(r *http.Request) (any, error) {
		rng := r.URL.Query().Get("range")
		if rng == "" {
			return nil, errBadRequest
		}
		l.SetRange(rng)
		return map[string]string{"range": rng}, nil
	}))
	mux.HandleFunc("/api/pause", actionHandler(func(*http.Request) (any, error) {
		l.Pause()
		return map[string]bool{"paused": true}, nil
	}))
	mux.HandleFunc("/api/resume", actionHandler(func(*http.Request) (any, error) {
		l.Resume()
		return map[string]bool{"paused": false}, nil
	}))

	mux.Handle("/healthz", observ.Health())
	mux.Handle("/api/health", observ.HealthHandler())
	mux.Handle("/metrics", observ.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	observ.Log("http_listen", map[string]any{"addr": addr})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var errBadRequest = errors.New("bad request")

// confirmerFrom treats confirmed=true (query or form) as an accepted
// prompt. Anything else declines, so a bare curl can never stop the bot
// or disable test mode by accident.
func confirmerFrom(r *http.Request) loop.Confirmer {
	return func(string) bool {
		return r.URL.Query().Get("confirmed") == "true"
	}
}

func actionHandler(fn func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		out, err := fn(r)
		switch {
		case errors.Is(err, loop.ErrAborted):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "confirmation required"})
		case errors.Is(err, errBadRequest):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		case err != nil:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, out)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
