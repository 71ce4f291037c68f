package stubs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcheng-dev/botconsole/internal/equity"
	"github.com/rcheng-dev/botconsole/internal/transport"
	"github.com/rcheng-dev/botconsole/internal/upstream"
)

func newStubUpstream(t *testing.T, sim *Simulator) (*httptest.Server, *upstream.Client) {
	t.Helper()
	srv := httptest.NewServer(NewServer(sim, "").Handler())
	t.Cleanup(srv.Close)
	client, err := upstream.NewClient(upstream.Config{BaseURL: srv.URL, TimeoutMs: 2000})
	require.NoError(t, err)
	return srv, client
}

func TestStubServesConsistentStatus(t *testing.T) {
	sim := NewSimulator(42)
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	_, client := newStubUpstream(t, sim)
	ctx := context.Background()

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.BotRunning)
	assert.Greater(t, st.Price, 0.0)
	assert.Equal(t, 10000.0, st.InitialBalance)

	rt, err := client.BotRuntime(ctx)
	require.NoError(t, err)
	assert.True(t, rt.Running)
	assert.Equal(t, "online", rt.Status)

	logs, err := client.TradingLogs(ctx)
	require.NoError(t, err)
	require.True(t, logs.Success)
	assert.NotEmpty(t, logs.Logs)
}

func TestStubOverviewReconciles(t *testing.T) {
	sim := NewSimulator(7)
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	_, client := newStubUpstream(t, sim)

	rec := equity.NewReconciler(client)
	res, err := rec.Reconcile(context.Background(), "1d")
	require.NoError(t, err)
	assert.Equal(t, equity.OriginAggregate, res.Origin)
	assert.NotEmpty(t, res.Series)
	assert.Greater(t, res.Summary.CurrentBalance, 0.0)
}

func TestStubLegacyFallback(t *testing.T) {
	sim := NewSimulator(7)
	sim.LegacyOnly = true
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	_, client := newStubUpstream(t, sim)

	rec := equity.NewReconciler(client)
	res, err := rec.Reconcile(context.Background(), "1d")
	require.NoError(t, err)
	assert.Equal(t, equity.OriginLegacy, res.Origin)
	assert.NotEmpty(t, res.Series)
	assert.Equal(t, 10000.0, res.Summary.InitialBalance)
}

func TestStubStopAndStart(t *testing.T) {
	sim := NewSimulator(1)
	_, client := newStubUpstream(t, sim)
	ctx := context.Background()

	resp, err := client.StopBot(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	rt, err := client.BotRuntime(ctx)
	require.NoError(t, err)
	assert.False(t, rt.Running)
	assert.Equal(t, "stopped", rt.Status)
	assert.Zero(t, rt.UptimeMs)

	// Stopping twice reports failure, not an error.
	resp, err = client.StopBot(ctx)
	require.NoError(t, err)
	assert.False(t, resp.Success)

	resp, err = client.StartBot(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestStubAPIKeyEnforced(t *testing.T) {
	sim := NewSimulator(5)
	srv := httptest.NewServer(NewServer(sim, "secret").Handler())
	t.Cleanup(srv.Close)

	unauthorized, err := upstream.NewClient(upstream.Config{BaseURL: srv.URL, TimeoutMs: 2000})
	require.NoError(t, err)
	_, err = unauthorized.Status(context.Background())
	require.ErrorIs(t, err, upstream.ErrUnavailable)

	authorized, err := upstream.NewClient(upstream.Config{BaseURL: srv.URL, APIKey: "secret", TimeoutMs: 2000})
	require.NoError(t, err)
	_, err = authorized.Status(context.Background())
	require.NoError(t, err)
}

func TestStubStreamPushesStatusOverWebsocket(t *testing.T) {
	sim := NewSimulator(9)
	server := NewServer(sim, "")
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx, 10*time.Millisecond)

	wire, err := transport.NewWSClient(transport.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	events, err := wire.Start(ctx)
	require.NoError(t, err)
	defer wire.Close()

	select {
	case env := <-events:
		assert.Equal(t, transport.EventStatus, env.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no status event pushed over websocket")
	}
}

func TestStubStreamServesCursorPoll(t *testing.T) {
	sim := NewSimulator(3)
	server := NewServer(sim, "")
	for i := 0; i < 3; i++ {
		sim.Tick()
		server.broadcastStatus()
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	var page struct {
		Events []transport.EventEnvelope `json:"events"`
		Cursor string                    `json:"cursor"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Events, 3)
	assert.Equal(t, "3", page.Cursor)
	assert.Equal(t, transport.EventStatus, page.Events[0].Type)

	// Resuming from the returned cursor yields nothing new.
	resp2, err := http.Get(srv.URL + "/stream?cursor=" + page.Cursor)
	require.NoError(t, err)
	defer resp2.Body.Close()
	page.Events = nil
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&page))
	assert.Empty(t, page.Events)
}

func TestStubStreamPushesStatusOverCursorPoll(t *testing.T) {
	sim := NewSimulator(9)
	server := NewServer(sim, "")
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx, 50*time.Millisecond)

	wire, err := transport.NewPollClient(transport.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	events, err := wire.Start(ctx)
	require.NoError(t, err)
	defer wire.Close()

	select {
	case env := <-events:
		assert.Equal(t, transport.EventStatus, env.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no status event over cursor poll")
	}
}

func TestStubStreamPushesStatus(t *testing.T) {
	sim := NewSimulator(3)
	server := NewServer(sim, "")
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx, 10*time.Millisecond)

	wire, err := transport.NewSSEClient(transport.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	events, err := wire.Start(ctx)
	require.NoError(t, err)
	defer wire.Close()

	select {
	case env := <-events:
		assert.Equal(t, transport.EventStatus, env.Type)
		var st upstream.StatusResponse
		require.NoError(t, json.Unmarshal(env.Payload, &st))
		assert.Greater(t, st.Price, 0.0)
	case <-time.After(5 * time.Second):
		t.Fatal("no status event pushed")
	}
}
