package simulator

import (
	"context"
	"errors"
	"time"

	"github.com/netsentry/netsentry/common/models"
)

// Sender delivers one event to a gate.
type Sender interface {
	SendEvent(ctx context.Context, event any) (string, error)
}

// Result tallies a simulation run.
type Result struct {
	Sent        int
	Failed      int
	RateLimited int
}

// Runner posts generated events at a fixed interval.
type Runner struct {
	gen         *Generator
	sender      Sender
	interval    time.Duration
	isThrottled func(error) bool
	onEvent     func(models.AgentEvent, error)
}

// NewRunner builds a runner. isThrottled reports whether a send error was a
// rate-limit rejection; onEvent, when set, is called after every send.
func NewRunner(gen *Generator, sender Sender, interval time.Duration, isThrottled func(error) bool, onEvent func(models.AgentEvent, error)) *Runner {
	if isThrottled == nil {
		isThrottled = func(error) bool { return false }
	}
	return &Runner{gen: gen, sender: sender, interval: interval, isThrottled: isThrottled, onEvent: onEvent}
}

// Run sends count events, or until ctx is cancelled when count is 0.
func (r *Runner) Run(ctx context.Context, count int) (Result, error) {
	var res Result
	var ticker *time.Ticker
	if r.interval > 0 {
		ticker = time.NewTicker(r.interval)
		defer ticker.Stop()
	}

	for i := 0; count == 0 || i < count; i++ {
		if i > 0 && ticker != nil {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}

		e := r.gen.Event()
		_, err := r.sender.SendEvent(ctx, e)
		switch {
		case err == nil:
			res.Sent++
		case r.isThrottled(err):
			res.RateLimited++
		case errors.Is(err, context.Canceled):
			return res, err
		default:
			res.Failed++
		}
		if r.onEvent != nil {
			r.onEvent(e, err)
		}
	}
	return res, nil
}
