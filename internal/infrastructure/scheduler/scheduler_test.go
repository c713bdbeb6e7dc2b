package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/pkg/logger"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func newTestScheduler(m *metrics.Metrics) *Scheduler {
	return New(Config{Logger: logger.Nop(), Metrics: m, TickInterval: 5 * time.Millisecond})
}

func TestScheduler_RunsIntervalJobs(t *testing.T) {
	m := metrics.New()
	s := newTestScheduler(m)

	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "tick", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.GreaterOrEqual(t, jobs[0].RunCount, int64(2))
	assert.Equal(t, "@every 10ms", jobs[0].Schedule)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.JobRuns.WithLabelValues("tick", "ok")), 2.0)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := newTestScheduler(nil)
	started := make(chan struct{})
	var once sync.Once
	require.NoError(t, s.Register(&funcJob{name: "block", fn: func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}}, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	<-started
	require.NoError(t, s.Stop())

	history := s.History(0)
	require.Len(t, history, 1, "a busy job is not started twice")
	assert.ErrorIs(t, history[0].Error, context.Canceled)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler(nil)
	boom := errors.New("boom")
	require.NoError(t, s.Register(&funcJob{name: "fail", fn: func(context.Context) error { return boom }}, Every(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "panic", fn: func(context.Context) error { panic("bad") }}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "fail")
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Manual)
	assert.False(t, res.Success())

	_, err = s.RunNow(context.Background(), "panic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "fail", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].FailCount)
	assert.Len(t, s.History(1), 1)
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(nil)
	job := &funcJob{name: "x", fn: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Second)))
	assert.ErrorIs(t, s.Register(job, Every(time.Second)), ErrJobAlreadyExists)

	require.NoError(t, s.SetEnabled("x", false))
	assert.False(t, s.ListJobs()[0].Enabled)
	assert.ErrorIs(t, s.SetEnabled("y", true), ErrJobNotFound)
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler(nil)
	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "off", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, Every(time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))

	s.runDue(time.Now().Add(time.Hour))
	assert.Equal(t, int32(0), runs.Load())
}

func TestCronSchedule_Next(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*3600)
	from := time.Date(2025, 10, 16, 10, 30, 0, 0, almaty) // Thursday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 10, 16, 10, 31, 0, 0, almaty)},
		{"0 7 * * 1", time.Date(2025, 10, 20, 7, 0, 0, 0, almaty)},
		{"*/15 * * * *", time.Date(2025, 10, 16, 10, 45, 0, 0, almaty)},
		{"0 9-17/4 * * *", time.Date(2025, 10, 16, 13, 0, 0, 0, almaty)},
		{"30 10 16 10 *", time.Date(2026, 10, 16, 10, 30, 0, 0, almaty)},
		{"0 0 1 * 0", time.Date(2025, 10, 19, 0, 0, 0, 0, almaty)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, almaty)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseCron(tt.expr, almaty)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(s.Next(from)), "got %s", s.Next(from))
			assert.Equal(t, tt.expr, s.String())
		})
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *", "* * 0 * *"} {
		_, err := ParseCron(expr, nil)
		assert.Error(t, err, expr)
	}
	assert.Panics(t, func() { MustParseCron("bad", nil) })
	assert.NotPanics(t, func() { MustParseCron("0 0 * * *", nil) })
}
