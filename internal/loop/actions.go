package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcheng-dev/botconsole/internal/observ"
	"github.com/rcheng-dev/botconsole/internal/upstream"
)

// ErrAborted reports that the operator declined a confirmation prompt.
// The action is a no-op; displayed state is untouched.
var ErrAborted = errors.New("action aborted by operator")

// Confirmer answers a yes/no prompt before a destructive action. A nil
// Confirmer means "no prompt" and the action proceeds.
type Confirmer func(prompt string) bool

func confirmed(c Confirmer, prompt string) bool {
	return c == nil || c(prompt)
}

// ToggleBot stops the process when it is running and starts it otherwise.
// Stopping is the destructive direction and goes through the Confirmer.
// The decision is based on the currently displayed runtime state, so a
// stale display toggles the wrong way at worst once; the follow-up
// refresh re-syncs.
func (l *Loop) ToggleBot(ctx context.Context, confirm Confirmer) (*upstream.ActionResponse, error) {
	running := l.store.runtime().Running
	if running {
		if !confirmed(confirm, "stop the trading process?") {
			// Re-sync so a control rendered from stale state corrects itself.
			l.RefreshNow()
			return nil, ErrAborted
		}
	}

	var (
		resp *upstream.ActionResponse
		err  error
	)
	if running {
		resp, err = l.api.StopBot(ctx)
	} else {
		resp, err = l.api.StartBot(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("toggle bot: %w", err)
	}
	observ.Log("bot_toggle", map[string]any{"was_running": running, "success": resp.Success})
	l.RefreshNow()
	return resp, nil
}

// RestartBot bounces the process. Always destructive, always prompted.
func (l *Loop) RestartBot(ctx context.Context, confirm Confirmer) (*upstream.ActionResponse, error) {
	if !confirmed(confirm, "restart the trading process?") {
		l.RefreshNow()
		return nil, ErrAborted
	}
	resp, err := l.api.RestartBot(ctx)
	if err != nil {
		return nil, fmt.Errorf("restart bot: %w", err)
	}
	observ.Log("bot_restart", map[string]any{"success": resp.Success})
	l.RefreshNow()
	return resp, nil
}

// UpdateConfig forwards a config patch upstream. Disabling test mode
// moves the process onto real funds, so that one transition is prompted.
func (l *Loop) UpdateConfig(ctx context.Context, cfg map[string]any, confirm Confirmer) (*upstream.ActionResponse, error) {
	if v, ok := cfg["test_mode"]; ok {
		if b, isBool := v.(bool); isBool && !b {
			if !confirmed(confirm, "disable test mode and trade with real funds?") {
				l.RefreshNow()
				return nil, ErrAborted
			}
		}
	}
	resp, err := l.api.UpdateConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	l.RefreshNow()
	return resp, nil
}

// RefreshNow schedules an immediate pull of both cadences on the loop
// goroutine. Slow-cycle guards still apply: a refresh issued while a
// fetch is outstanding does not stack a second request.
func (l *Loop) RefreshNow() {
	select {
	case l.control <- func() {
		l.pullFast(l.runCtx)
		l.pullSlow(l.runCtx)
	}:
	default:
	}
}

// SetRange switches the equity window and refreshes the curve right away.
func (l *Loop) SetRange(rng string) {
	select {
	case l.control <- func() {
		l.rng = rng
		l.refreshEquity(l.runCtx)
	}:
	default:
	}
}

// Pause suspends the fast cadence. The slow cadence and the push channel
// keep running; pausing only quiets the per-2s status chatter.
func (l *Loop) Pause() {
	l.setPaused(true)
}

// Resume re-enables the fast cadence.
func (l *Loop) Resume() {
	l.setPaused(false)
}

func (l *Loop) setPaused(p bool) {
	select {
	case l.control <- func() {
		l.paused = p
		l.store.setPaused(p)
	}:
	default:
	}
}
