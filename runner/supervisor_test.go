package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingKill struct {
	calls atomic.Int32
	pid   atomic.Int32
	err   error
}

func (k *recordingKill) kill(pid int) error {
	k.calls.Add(1)
	k.pid.Store(int32(pid))
	return k.err
}

func TestSupervisorFiresAfterTimeout(t *testing.T) {
	k := &recordingKill{}
	s := NewSupervisor(k.kill)
	s.Watch(context.Background(), 4242, 50*time.Millisecond)

	require.Eventually(t, func() bool { return k.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	timedOut, cancelled, elapsed := s.Stop()
	assert.True(t, timedOut)
	assert.False(t, cancelled)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Equal(t, int32(4242), k.pid.Load())
}

func TestSupervisorStopBeforeDeadline(t *testing.T) {
	k := &recordingKill{}
	s := NewSupervisor(k.kill)
	s.Watch(context.Background(), 1, 200*time.Millisecond)

	timedOut, cancelled, elapsed := s.Stop()
	assert.False(t, timedOut)
	assert.False(t, cancelled)
	assert.Less(t, elapsed, 200*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), k.calls.Load(), "a stopped supervisor must never kill")

	// Stop is idempotent
	timedOut, _, _ = s.Stop()
	assert.False(t, timedOut)
}

func TestSupervisorCancellation(t *testing.T) {
	k := &recordingKill{}
	s := NewSupervisor(k.kill)
	ctx, cancel := context.WithCancel(context.Background())
	s.Watch(ctx, 7, time.Minute)

	cancel()
	require.Eventually(t, func() bool { return k.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	timedOut, cancelled, _ := s.Stop()
	assert.False(t, timedOut)
	assert.True(t, cancelled)
}

func TestSupervisorKillsOnce(t *testing.T) {
	k := &recordingKill{err: errors.New("no permission")}
	s := NewSupervisor(k.kill)
	ctx, cancel := context.WithCancel(context.Background())
	s.Watch(ctx, 7, 20*time.Millisecond)

	require.Eventually(t, func() bool { return k.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	timedOut, cancelled, _ := s.Stop()
	assert.True(t, timedOut)
	assert.False(t, cancelled)
	assert.Equal(t, int32(1), k.calls.Load())
	assert.EqualError(t, s.KillErr(), "no permission")
}

func TestSupervisorNoDeadline(t *testing.T) {
	k := &recordingKill{}
	s := NewSupervisor(k.kill)
	s.Watch(context.Background(), 7, 0)
	time.Sleep(20 * time.Millisecond)

	timedOut, cancelled, _ := s.Stop()
	assert.False(t, timedOut)
	assert.False(t, cancelled)
	assert.Equal(t, int32(0), k.calls.Load())
}

func TestSupervisorStopWaitsForKill(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewSupervisor(func(pid int) error {
		close(entered)
		<-release
		return nil
	})
	s.Watch(context.Background(), 7, 10*time.Millisecond)
	<-entered

	var stopped atomic.Bool
	go func() {
		s.Stop()
		stopped.Store(true)
	}()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, stopped.Load(), "Stop must not return while a kill is in flight")

	close(release)
	require.Eventually(t, stopped.Load, 2*time.Second, 5*time.Millisecond)
	timedOut, _, _ := s.Stop()
	assert.True(t, timedOut)
}
