package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcheng-dev/botconsole/internal/observ"
)

// PollClient is the HTTP polling fallback when neither SSE nor WebSocket
// is reachable. It polls /stream with a cursor and re-emits the returned
// events as envelopes.
type PollClient struct {
	config Config
	url    string

	eventChan   chan EventEnvelope
	lastEventID string
	state       int32 // atomic ConnectionState

	client *http.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup

	messagesReceived int64
	pollCount        int64
	eventsDropped    int64
}

func NewPollClient(config Config) (*PollClient, error) {
	if config.MaxChannelBuffer <= 0 {
		config.MaxChannelBuffer = 64
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &PollClient{
		config:    config,
		url:       config.BaseURL + "/stream",
		eventChan: make(chan EventEnvelope, config.MaxChannelBuffer),
		client:    &http.Client{Timeout: timeout},
	}
	atomic.StoreInt32(&c.state, int32(StateDisconnected))
	return c, nil
}

func (c *PollClient) Start(ctx context.Context) (<-chan EventEnvelope, error) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.pollLoop(ctx)
	return c.eventChan, nil
}

// Close waits for the poll loop to exit before closing the channel, so a
// poll in flight can never send on a closed channel.
func (c *PollClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	close(c.eventChan)
	return nil
}

func (c *PollClient) LastEventID() string {
	return c.lastEventID
}

func (c *PollClient) ConnectionState() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&c.state))
}

func (c *PollClient) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	atomic.StoreInt32(&c.state, int32(StateConnected))
	observ.SetGauge("push_connected", 1, nil)

	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&c.state, int32(StateDisconnected))
			observ.SetGauge("push_connected", 0, nil)
			return
		case <-ticker.C:
			if err := c.pollOnce(ctx); err != nil && ctx.Err() == nil {
				observ.IncCounter("push_parse_errors_total", map[string]string{"transport": "http"})
				atomic.StoreInt32(&c.state, int32(StateDisconnected))
			} else if ctx.Err() == nil {
				atomic.StoreInt32(&c.state, int32(StateConnected))
			}
		}
	}
}

func (c *PollClient) pollOnce(ctx context.Context) error {
	atomic.AddInt64(&c.pollCount, 1)

	pollURL := c.url
	if c.lastEventID != "" {
		u, _ := url.Parse(pollURL)
		q := u.Query()
		q.Set("cursor", c.lastEventID)
		u.RawQuery = q.Encode()
		pollURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var response struct {
		Events []EventEnvelope `json:"events"`
		Cursor string          `json:"cursor"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	for _, env := range response.Events {
		if env.TS.IsZero() {
			env.TS = time.Now().UTC()
		}
		select {
		case c.eventChan <- env:
			atomic.AddInt64(&c.messagesReceived, 1)
		case <-ctx.Done():
			return ctx.Err()
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
				atomic.AddInt64(&c.messagesReceived, 1)
			default:
				atomic.AddInt64(&c.eventsDropped, 1)
			}
		}
	}

	if response.Cursor != "" {
		c.lastEventID = response.Cursor
	}
	return nil
}
