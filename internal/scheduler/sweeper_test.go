package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lnmomo-backend/internal/logging"
	"github.com/simaogato/lnmomo-backend/internal/usecase/sweep"
)

// blockingRunner blocks every run until released
type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) (*sweep.Report, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &sweep.Report{Results: []sweep.Result{}}, nil
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewSweeper(&blockingRunner{}, "every now and then", 0, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestSweeper_SkipsOverlappingTicks(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := NewSweeper(runner, "@every 1h", 0, logging.Discard())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Tick()
	}()
	<-runner.started

	s.Tick()
	s.Tick()
	assert.Equal(t, int64(2), s.Skipped())

	close(runner.release)
	<-done
	assert.Equal(t, 1, runner.count())

	// once the first run returned the next tick goes through
	go s.Tick()
	<-runner.started
	assert.Equal(t, 2, runner.count())
}

func TestSweeper_StopCancelsRunningSweep(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := NewSweeper(runner, "@every 10ms", 0, logging.Discard())
	require.NoError(t, err)

	s.Start()
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
