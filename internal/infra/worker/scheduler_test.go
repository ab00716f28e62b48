package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_AddRejectsBadJobs(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want string
	}{
		{
			name: "missing run func",
			job:  Job{Name: "sweep", Schedule: "@every 1m"},
			want: "no Run func",
		},
		{
			name: "bad schedule",
			job:  Job{Name: "sweep", Schedule: "nightly", Run: func(context.Context) error { return nil }},
			want: `schedule job "sweep"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(nil)

			err := s.Add(tt.job)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScheduler_RunsJobsAndRecordsOutcome(t *testing.T) {
	// Arrange
	s := NewScheduler(nil)
	var okRuns, failRuns atomic.Int32
	require.NoError(t, s.Add(Job{
		Name:     "test_ok",
		Schedule: "@every 1s",
		Run: func(context.Context) error {
			okRuns.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Add(Job{
		Name:     "test_fail",
		Schedule: "@every 1s",
		Run: func(context.Context) error {
			failRuns.Add(1)
			return errors.New("boom")
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Act
	require.Eventually(t, func() bool {
		return okRuns.Load() > 0 && failRuns.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	cancel()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(jobRunsTotal.WithLabelValues("test_ok", "success")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(jobRunsTotal.WithLabelValues("test_fail", "failure")), 1.0)
	assert.Greater(t, testutil.ToFloat64(jobLastSuccess.WithLabelValues("test_ok")), 0.0)
}

func TestScheduler_ShutdownCancelsRunningJob(t *testing.T) {
	s := NewScheduler(nil)
	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	require.NoError(t, s.Add(Job{
		Name:     "test_long",
		Schedule: "@every 1s",
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			sawCancel.Store(true)
			return ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, sawCancel.Load())
}
