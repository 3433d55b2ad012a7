package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	mu       sync.Mutex
	grant    bool
	acquires int
	releases int
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return l.grant, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func TestRunJob_OverlapDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	job := &Job{
		Name:  "email",
		RunAt: "07:00",
		Run: func(ctx context.Context) (*DispatchReport, error) {
			close(started)
			<-release
			return &DispatchReport{Sent: 1}, nil
		},
	}
	s := NewScheduler(testCfg(), job)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunJob(context.Background(), job)
		done <- err
	}()
	<-started

	// A trigger while the first run is active is dropped, not queued.
	_, err := s.TriggerNow(context.Background(), "email")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)

	// Once idle it runs again.
	job.Run = func(ctx context.Context) (*DispatchReport, error) { return &DispatchReport{}, nil }
	_, err = s.TriggerNow(context.Background(), "email")
	assert.NoError(t, err)
}

func TestRunJob_LockHeldElsewhere(t *testing.T) {
	lock := &fakeLock{grant: false}
	ran := false
	job := &Job{
		Name: "email", RunAt: "07:00", Lock: lock,
		Run: func(ctx context.Context) (*DispatchReport, error) {
			ran = true
			return &DispatchReport{}, nil
		},
	}
	s := NewScheduler(testCfg(), job)

	rep, err := s.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Nil(t, rep)
	assert.False(t, ran, "job must not run without the lock")
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 0, lock.releases)
}

func TestRunJob_LockAcquiredAndReleased(t *testing.T) {
	lock := &fakeLock{grant: true}
	job := &Job{
		Name: "email", RunAt: "07:00", Lock: lock,
		Run: func(ctx context.Context) (*DispatchReport, error) {
			return &DispatchReport{Sent: 2}, nil
		},
	}
	s := NewScheduler(testCfg(), job)

	rep, err := s.RunJob(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 1, lock.releases)
}

func TestRunJob_BatchDeadlineSet(t *testing.T) {
	var deadline time.Time
	job := &Job{
		Name: "email", RunAt: "07:00",
		Run: func(ctx context.Context) (*DispatchReport, error) {
			deadline, _ = ctx.Deadline()
			return &DispatchReport{}, nil
		},
	}
	s := NewScheduler(testCfg(), job)

	_, err := s.RunJob(context.Background(), job)
	require.NoError(t, err)
	require.False(t, deadline.IsZero(), "batch must carry a deadline")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), deadline, time.Minute)
}

func TestTriggerNow_UnknownJob(t *testing.T) {
	s := NewScheduler(testCfg())
	_, err := s.TriggerNow(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSchedulerLoop_FiresAtWallClock(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	job := &Job{
		Name: "email", RunAt: "07:00",
		Run: func(ctx context.Context) (*DispatchReport, error) {
			mu.Lock()
			runs++
			mu.Unlock()
			return &DispatchReport{}, nil
		},
	}
	s := NewScheduler(testCfg(), job)

	now := time.Date(2026, 1, 26, 6, 59, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var slept []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(_ context.Context, d time.Duration) bool {
		slept = append(slept, d)
		if len(slept) == 1 {
			now = now.Add(d) // wake exactly at 07:00
			return true
		}
		cancel()
		return false
	}

	s.loop(ctx, job)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
	require.Len(t, slept, 2)
	assert.Equal(t, time.Minute, slept[0], "first sleep reaches today's 07:00")
	assert.Equal(t, 24*time.Hour, slept[1], "next sleep reaches tomorrow's 07:00")
}
