package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, RateLimitPerSecond: 1000})
	require.NoError(t, err)
	return c
}

func TestStatusDecodesPosition(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bot_running": true,
			"price": 64250.5,
			"signal": "BUY",
			"confidence": "HIGH",
			"position": {"side": "long", "size": 10, "maint_margin_ratio": 1200},
			"total_pnl": 15.5
		}`))
	}))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.BotRunning)
	assert.InDelta(t, 64250.5, st.Price, 1e-9)
	require.NotNil(t, st.Position)
	assert.Equal(t, "long", st.Position.Side)
	assert.Zero(t, c.ConsecutiveErrors())
}

func TestStatusFlatPositionAbsent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bot_running": false, "price": 0}`))
	}))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Position)
}

func TestNon2xxIsUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.BotRuntime(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, c.ConsecutiveErrors())
}

func TestBadBodyIsSchemaMismatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))

	_, err := c.TradingLogs(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestOverviewErrorEnvelopeIsDataNotError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		_, _ = w.Write([]byte(`{"error": "history store offline"}`))
	}))

	ov, err := c.EquityOverview(context.Background(), "1d")
	require.NoError(t, err)
	assert.Equal(t, "history store offline", ov.Error)
}

func TestUpdateConfigPostsBodyAndAPIKey(t *testing.T) {
	var gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"success": true, "message": "saved"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", RateLimitPerSecond: 1000})
	require.NoError(t, err)

	res, err := c.UpdateConfig(context.Background(), map[string]any{"leverage": 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/json", gotType)
}

func TestSuccessResetsErrorStreak(t *testing.T) {
	fail := true
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "running": true, "status": "online", "uptime_ms": 1000}`))
	}))

	_, err := c.BotRuntime(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, c.ConsecutiveErrors())

	fail = false
	rt, err := c.BotRuntime(context.Background())
	require.NoError(t, err)
	assert.True(t, rt.Running)
	assert.Zero(t, c.ConsecutiveErrors())
}
