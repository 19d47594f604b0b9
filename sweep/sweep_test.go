package sweep_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saoki0913/career-compass-sub001/sweep"
)

type fakeCanceller struct {
	calls  atomic.Int64
	maxAge atomic.Int64
}

func (f *fakeCanceller) CancelExpired(_ context.Context, olderThan time.Duration) (int, error) {
	f.calls.Add(1)
	f.maxAge.Store(int64(olderThan))
	return 0, nil
}

func TestSweeper_RunsPeriodicallyAndStops(t *testing.T) {
	fake := &fakeCanceller{}
	s := sweep.New(fake, 5*time.Millisecond, time.Hour)

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	calls := fake.calls.Load()
	assert.Greater(t, calls, int64(1), "sweep should run on every tick")
	assert.Equal(t, int64(time.Hour), fake.maxAge.Load())

	// Stop is final: no further sweeps after it returns.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, fake.calls.Load())
}

func TestSweeper_StopBeforeFirstTick(t *testing.T) {
	fake := &fakeCanceller{}
	s := sweep.New(fake, time.Hour, time.Hour)

	s.Start()
	s.Stop()

	assert.Zero(t, fake.calls.Load())
}
