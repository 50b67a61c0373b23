// Package effects runs best-effort side effects after a primary state
// transition has committed. A failing effect is logged and never reaches
// the caller.
package effects

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher collects side effects and drains them on Wait
type Dispatcher struct {
	g      errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	mu     sync.Mutex
	failed []string
}

// New creates a Dispatcher. Effects receive a context that is cancelled
// when Wait gives up.
func New(log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{ctx: ctx, cancel: cancel, log: log}
}

// Go starts a named effect
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("panic: %v", r)
				d.record(name, err)
			}
		}()

		start := time.Now()
		if err := fn(d.ctx); err != nil {
			d.record(name, err)
			return nil
		}
		d.log.Debugw("Side effect finished", "effect", name, "duration", time.Since(start))
		return nil
	})
}

func (d *Dispatcher) record(name string, err error) {
	d.log.Warnw("Side effect failed", "effect", name, "error", err)
	d.mu.Lock()
	d.failed = append(d.failed, name)
	d.mu.Unlock()
}

// Wait blocks until every effect finished or the timeout elapsed, and
// returns the names of failed effects. A zero timeout waits indefinitely.
func (d *Dispatcher) Wait(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		_ = d.g.Wait()
		close(done)
	}()

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			d.log.Warnw("Gave up waiting for side effects", "timeout", timeout)
			d.cancel()
		}
	} else {
		<-done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.failed...)
}
