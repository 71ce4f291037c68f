package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEFrameAssembly(t *testing.T) {
	var f sseFrame

	assert.False(t, f.feed("event: status"))
	assert.False(t, f.feed("id: 42"))
	assert.False(t, f.feed(`data: {"price": 64000}`))
	assert.True(t, f.feed(""))

	env, ok := f.envelope()
	require.True(t, ok)
	assert.Equal(t, EventStatus, env.Type)
	assert.Equal(t, "42", env.ID)
	assert.JSONEq(t, `{"price": 64000}`, string(env.Payload))
}

func TestSSEFrameUnwrapsEnvelopeData(t *testing.T) {
	var f sseFrame
	f.feed("event: status")
	f.feed("id: 7")
	f.feed(`data: {"v":1,"type":"status","id":"7","ts_utc":"2025-11-05T17:42:02Z","payload":{"price":64012.55}}`)

	env, ok := f.envelope()
	require.True(t, ok)
	assert.Equal(t, EventStatus, env.Type)
	assert.Equal(t, "7", env.ID)
	// The payload is the inner status object, not a nested envelope.
	assert.JSONEq(t, `{"price":64012.55}`, string(env.Payload))

	var status struct {
		Price float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &status))
	assert.Equal(t, 64012.55, status.Price)
}

func TestSSEFrameSkipsCommentsAndEmptyData(t *testing.T) {
	var f sseFrame
	assert.False(t, f.feed(": heartbeat"))
	assert.True(t, f.feed(""))

	_, ok := f.envelope()
	assert.False(t, ok)
}

func TestSSEFrameDefaultsEventType(t *testing.T) {
	var f sseFrame
	f.feed(`data: {"price": 1}`)
	env, ok := f.envelope()
	require.True(t, ok)
	assert.Equal(t, EventStatus, env.Type)
}

func TestSSEFrameRejectsMalformedData(t *testing.T) {
	var f sseFrame
	f.feed("data: not json")
	_, ok := f.envelope()
	assert.False(t, ok)
}

func TestDecodeWSFrameEnvelope(t *testing.T) {
	raw := []byte(`{"v":1,"type":"status","id":"7","payload":{"price":64000}}`)
	env, ok := decodeWSFrame(raw)
	require.True(t, ok)
	assert.Equal(t, "7", env.ID)
	assert.False(t, env.TS.IsZero())
}

func TestDecodeWSFrameBarePayload(t *testing.T) {
	raw := []byte(`{"price": 64000, "signal": "BUY"}`)
	env, ok := decodeWSFrame(raw)
	require.True(t, ok)
	assert.Equal(t, EventStatus, env.Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "BUY", payload["signal"])
}

func TestDecodeWSFrameGarbage(t *testing.T) {
	_, ok := decodeWSFrame([]byte("hello"))
	assert.False(t, ok)
}

func TestToWebsocketURL(t *testing.T) {
	u, err := toWebsocketURL("http://localhost:5000/stream")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/stream", u)

	u, err = toWebsocketURL("https://bot.example/stream")
	require.NoError(t, err)
	assert.Equal(t, "wss://bot.example/stream", u)

	_, err = toWebsocketURL("ftp://nope/stream")
	assert.Error(t, err)
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", ConnectionState(99).String())
}

func TestWSDeliverDropsOldestWhenFull(t *testing.T) {
	c := &WSClient{eventChan: make(chan EventEnvelope, 1)}

	c.deliver(EventEnvelope{Type: EventStatus, ID: "1"})
	c.deliver(EventEnvelope{Type: EventStatus, ID: "2"})

	// The stale snapshot made room for the fresh one.
	env := <-c.eventChan
	assert.Equal(t, "2", env.ID)
	assert.Equal(t, int64(1), c.eventsDropped)
	assert.Equal(t, "2", c.LastEventID())
}

func TestPollClientCloseWaitsForInFlightPoll(t *testing.T) {
	inFlight := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(inFlight) })
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewPollClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	events, err := c.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-inFlight:
	case <-time.After(5 * time.Second):
		t.Fatal("poll never reached the server")
	}
	require.NoError(t, c.Close())

	// Close returns only after the loop has exited, so the channel is
	// safely closed and drains without panicking.
	for range events {
	}
}

func TestNewClientSelectsTransport(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:5000", Transport: "ws"})
	require.NoError(t, err)
	_, isWS := c.(*WSClient)
	assert.True(t, isWS)

	c, err = NewClient(Config{BaseURL: "http://localhost:5000", Transport: "http"})
	require.NoError(t, err)
	_, isPoll := c.(*PollClient)
	assert.True(t, isPoll)

	c, err = NewClient(Config{BaseURL: "http://localhost:5000"})
	require.NoError(t, err)
	_, isSSE := c.(*SSEClient)
	assert.True(t, isSSE)
}
