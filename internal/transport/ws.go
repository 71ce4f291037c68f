package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcheng-dev/botconsole/internal/observ"
)

// WSClient consumes the push channel over a WebSocket. The trading process
// pushes status snapshots as JSON text frames, either bare payloads or
// wrapped in the standard envelope.
type WSClient struct {
	config Config
	url    string

	eventChan   chan EventEnvelope
	lastEventID string
	state       int32 // atomic ConnectionState

	dialer *websocket.Dialer
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	reconnectAttempts int64
	messagesReceived  int64
	eventsDropped     int64
}

func NewWSClient(config Config) (*WSClient, error) {
	if config.MaxChannelBuffer <= 0 {
		config.MaxChannelBuffer = 256
	}
	config.Reconnect.fillDefaults()

	wsURL, err := toWebsocketURL(config.BaseURL + "/stream")
	if err != nil {
		return nil, err
	}

	handshake := config.Timeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}

	c := &WSClient{
		config:    config,
		url:       wsURL,
		eventChan: make(chan EventEnvelope, config.MaxChannelBuffer),
		dialer:    &websocket.Dialer{HandshakeTimeout: handshake},
	}
	atomic.StoreInt32(&c.state, int32(StateDisconnected))
	return c, nil
}

func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *WSClient) Start(ctx context.Context) (<-chan EventEnvelope, error) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	return c.eventChan, nil
}

func (c *WSClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	close(c.eventChan)
	return nil
}

func (c *WSClient) LastEventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEventID
}

func (c *WSClient) ConnectionState() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&c.state))
}

func (c *WSClient) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.config.Reconnect.InitialDelayMs
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if max := c.config.Reconnect.MaxAttempts; max > 0 && attempts >= max {
			observ.Log("push_giving_up", map[string]any{"transport": "ws", "attempts": attempts})
			atomic.StoreInt32(&c.state, int32(StateDisconnected))
			observ.SetGauge("push_connected", 0, nil)
			return
		}

		atomic.StoreInt32(&c.state, int32(StateConnecting))

		if err := c.connectAndConsume(ctx); err != nil {
			atomic.StoreInt32(&c.state, int32(StateDisconnected))
			observ.SetGauge("push_connected", 0, nil)
			if ctx.Err() != nil {
				return
			}

			attempts++
			atomic.AddInt64(&c.reconnectAttempts, 1)
			observ.Log("push_reconnect", map[string]any{
				"transport":  "ws",
				"error":      err.Error(),
				"backoff_ms": backoff,
			})

			jitter := rand.Intn(c.config.Reconnect.JitterMs)
			select {
			case <-time.After(time.Duration(backoff+jitter) * time.Millisecond):
			case <-ctx.Done():
				return
			}

			backoff *= 2
			if backoff > c.config.Reconnect.MaxDelayMs {
				backoff = c.config.Reconnect.MaxDelayMs
			}
		} else {
			backoff = c.config.Reconnect.InitialDelayMs
			attempts = 0
		}
	}
}

func (c *WSClient) connectAndConsume(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	atomic.StoreInt32(&c.state, int32(StateConnected))
	observ.SetGauge("push_connected", 1, nil)

	// unblock ReadMessage when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env, ok := decodeWSFrame(data)
		if !ok {
			continue
		}

		c.deliver(env)
	}
}

func (c *WSClient) deliver(env EventEnvelope) {
	// duplicate snapshot: server resent after resume
	if env.ID != "" && env.ID == c.LastEventID() {
		return
	}

	select {
	case c.eventChan <- env:
	default:
		// Payloads are full snapshots; drop the oldest to make room for
		// the newest rather than the other way around.
		select {
		case <-c.eventChan:
			atomic.AddInt64(&c.eventsDropped, 1)
		default:
		}
		select {
		case c.eventChan <- env:
		default:
			atomic.AddInt64(&c.eventsDropped, 1)
			return
		}
	}

	atomic.AddInt64(&c.messagesReceived, 1)
	if env.ID != "" {
		c.mu.Lock()
		c.lastEventID = env.ID
		c.mu.Unlock()
	}
}

// decodeWSFrame accepts either a full envelope or a bare status payload.
func decodeWSFrame(data []byte) (EventEnvelope, bool) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type != "" && len(env.Payload) > 0 {
		if env.TS.IsZero() {
			env.TS = time.Now().UTC()
		}
		return env, true
	}

	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		observ.IncCounter("push_parse_errors_total", map[string]string{"transport": "ws"})
		return EventEnvelope{}, false
	}
	return EventEnvelope{
		V:       1,
		Type:    EventStatus,
		TS:      time.Now().UTC(),
		Payload: json.RawMessage(data),
	}, true
}
