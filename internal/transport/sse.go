package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcheng-dev/botconsole/internal/observ"
)

// SSEClient consumes the trading process's /stream endpoint over
// Server-Sent Events with resume and reconnect.
type SSEClient struct {
	config Config
	url    string

	eventChan   chan EventEnvelope
	lastEventID string
	state       int32 // atomic ConnectionState

	client *http.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	reconnectAttempts int64
	messagesReceived  int64
	eventsDropped     int64
}

func NewSSEClient(config Config) (*SSEClient, error) {
	if config.MaxChannelBuffer <= 0 {
		config.MaxChannelBuffer = 256
	}
	if config.HeartbeatSeconds <= 0 {
		config.HeartbeatSeconds = 10
	}
	config.Reconnect.fillDefaults()

	c := &SSEClient{
		config:    config,
		url:       config.BaseURL + "/stream",
		eventChan: make(chan EventEnvelope, config.MaxChannelBuffer),
		// no overall timeout: the stream is long-lived by design
		client: &http.Client{},
	}
	atomic.StoreInt32(&c.state, int32(StateDisconnected))
	return c, nil
}

func (c *SSEClient) Start(ctx context.Context) (<-chan EventEnvelope, error) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	return c.eventChan, nil
}

func (c *SSEClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	close(c.eventChan)
	return nil
}

func (c *SSEClient) LastEventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEventID
}

func (c *SSEClient) ConnectionState() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&c.state))
}

// consumeLoop reconnects with jittered exponential backoff.
func (c *SSEClient) consumeLoop(ctx context.Context) {
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
			observ.Log("push_giving_up", map[string]any{"transport": "sse", "attempts": attempts})
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
				"transport":  "sse",
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

func (c *SSEClient) connectAndConsume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if last := c.LastEventID(); last != "" {
		req.Header.Set("Last-Event-ID", last)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	atomic.StoreInt32(&c.state, int32(StateConnected))
	observ.SetGauge("push_connected", 1, nil)

	return c.processEventStream(ctx, resp.Body)
}

// processEventStream reads and parses SSE events from the response body.
func (c *SSEClient) processEventStream(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	var frame sseFrame

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done := frame.feed(scanner.Text())
		if !done {
			continue
		}
		if env, ok := frame.envelope(); ok {
			c.deliver(env)
		}
		frame = sseFrame{}
	}
	return scanner.Err()
}

func (c *SSEClient) deliver(env EventEnvelope) {
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

// sseFrame accumulates the field lines of one SSE event.
type sseFrame struct {
	event string
	id    string
	data  string
}

// feed consumes one line; returns true at the blank line ending the event.
func (f *sseFrame) feed(line string) bool {
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, ":") {
		// comment line (heartbeat)
		return false
	}
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return false
	}
	field := line[:colon]
	value := strings.TrimSpace(line[colon+1:])
	switch field {
	case "event":
		f.event = value
	case "id":
		f.id = value
	case "data":
		f.data = value
	}
	return false
}

// envelope converts a completed frame; frames with no data are skipped.
// The data field is either a full envelope (the stream server sends one)
// or a bare payload; an envelope is adopted as-is rather than nested
// inside a second one.
func (f *sseFrame) envelope() (EventEnvelope, bool) {
	if f.data == "" {
		return EventEnvelope{}, false
	}

	var env EventEnvelope
	if err := json.Unmarshal([]byte(f.data), &env); err == nil && env.Type != "" && len(env.Payload) > 0 {
		if env.ID == "" {
			env.ID = f.id
		}
		if env.TS.IsZero() {
			env.TS = time.Now().UTC()
		}
		return env, true
	}

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(f.data), &payload); err != nil {
		observ.IncCounter("push_parse_errors_total", map[string]string{"transport": "sse"})
		return EventEnvelope{}, false
	}
	typ := f.event
	if typ == "" {
		typ = EventStatus
	}
	return EventEnvelope{
		V:       1,
		Type:    typ,
		ID:      f.id,
		TS:      time.Now().UTC(),
		Payload: payload,
	}, true
}
