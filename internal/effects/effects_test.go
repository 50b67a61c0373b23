package effects

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestDispatcher_RunsAllAndReportsFailures(t *testing.T) {
	d := New(nil)
	var ran atomic.Int32

	d.Go("ok", func(context.Context) error { ran.Add(1); return nil })
	d.Go("broken", func(context.Context) error { ran.Add(1); return errors.New("disk full") })
	d.Go("panics", func(context.Context) error { ran.Add(1); panic("boom") })
	d.Go("ok2", func(context.Context) error { ran.Add(1); return nil })

	failed := d.Wait(time.Second)
	assert.Equal(t, int32(4), ran.Load())
	assert.ElementsMatch(t, []string{"broken", "panics"}, failed)
}

func TestDispatcher_WaitTimeoutCancelsEffects(t *testing.T) {
	d := New(nil)
	cancelled := make(chan struct{})
	d.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	start := time.Now()
	d.Wait(50 * time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("effect context was not cancelled")
	}
}

func TestDispatcher_WaitWithoutEffects(t *testing.T) {
	assert.Empty(t, New(nil).Wait(0))
}
