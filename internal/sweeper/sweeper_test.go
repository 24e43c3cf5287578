package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/teepool/internal/pool"
	"github.com/R3E-Network/teepool/pkg/logger"
	"github.com/R3E-Network/teepool/pkg/testutil"
)

type stubEngine struct {
	mu      sync.Mutex
	expired []pool.PoolID
	results map[pool.PoolID]error
	checked []pool.PoolID
}

func (s *stubEngine) Expired() []pool.PoolID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pool.PoolID(nil), s.expired...)
}

func (s *stubEngine) CheckTimeout(_ context.Context, id pool.PoolID) (pool.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, id)
	if err := s.results[id]; err != nil {
		return pool.PhaseExecuting, err
	}
	// Crashed pools drop out of the expired set.
	for i, e := range s.expired {
		if e == id {
			s.expired = append(s.expired[:i], s.expired[i+1:]...)
			break
		}
	}
	return pool.PhaseCrashed, nil
}

func (s *stubEngine) checkedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checked)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Engine: &stubEngine{}, Schedule: "every now and then"})
	assert.Error(t, err)

	s, err := New(Config{Engine: &stubEngine{}, Logger: logger.NewDiscard()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.schedule)
}

func TestRunOnce(t *testing.T) {
	boom := errors.New("boom")
	eng := &stubEngine{
		expired: []pool.PoolID{pool.NewPoolID(1), pool.NewPoolID(2), pool.NewPoolID(3), pool.NewPoolID(4)},
		results: map[pool.PoolID]error{
			pool.NewPoolID(2): &pool.Error{Op: "check_timeout", ID: pool.NewPoolID(2), Kind: pool.ErrWrongPhase},
			pool.NewPoolID(3): boom,
		},
	}
	rec := &testutil.MetricsRecorder{}
	s, err := New(Config{Engine: eng, Metrics: rec, Logger: logger.NewDiscard()})
	require.NoError(t, err)

	crashed, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []pool.PoolID{pool.NewPoolID(1), pool.NewPoolID(4)}, crashed)
	assert.Equal(t, 4, eng.checkedCount())

	runs, swept, failed := rec.Sweeps()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, swept)
	assert.Equal(t, 1, failed)
}

func TestRunOnce_Nothing(t *testing.T) {
	s, err := New(Config{Engine: &stubEngine{}, Logger: logger.NewDiscard()})
	require.NoError(t, err)

	crashed, err := s.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, crashed)
}

func TestRunOnce_Canceled(t *testing.T) {
	eng := &stubEngine{expired: []pool.PoolID{pool.NewPoolID(1)}}
	s, err := New(Config{Engine: eng, Logger: logger.NewDiscard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, eng.checkedCount())
}

func TestRunOnce_RateLimited(t *testing.T) {
	_, err := New(Config{Engine: &stubEngine{}, CheckRate: -1})
	assert.Error(t, err)

	eng := &stubEngine{expired: []pool.PoolID{pool.NewPoolID(1), pool.NewPoolID(2), pool.NewPoolID(3)}}
	s, err := New(Config{Engine: eng, CheckRate: 1000, Logger: logger.NewDiscard()})
	require.NoError(t, err)
	require.NotNil(t, s.limiter)

	crashed, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, crashed, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng.expired = []pool.PoolID{pool.NewPoolID(4)}
	_, err = s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, eng.checkedCount())
}

func TestStartStop(t *testing.T) {
	eng := &stubEngine{expired: []pool.PoolID{pool.NewPoolID(7)}}
	s, err := New(Config{Engine: eng, Schedule: "@every 1s", Logger: logger.NewDiscard()})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return eng.checkedCount() > 0 }, 5*time.Second, 50*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()
}

func TestStart_StopsWithContext(t *testing.T) {
	s, err := New(Config{Engine: &stubEngine{}, Schedule: "@every 1h", Logger: logger.NewDiscard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 10*time.Millisecond)
}
