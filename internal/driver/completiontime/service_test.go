package completiontime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/ldbc/driver/internal/driver/temporal"
)

func TestGlobalCompletionTime_InitiallyNegativeInfinity(t *testing.T) {
	s := NewService(clock.RealClock{})
	assert.Equal(t, temporal.MinTime, s.GlobalCompletionTime())

	_, err := s.RegisterLocalSource("w1")
	require.NoError(t, err)
	assert.Equal(t, temporal.MinTime, s.GlobalCompletionTime())
}

func TestRegisterLocalSource_Duplicate(t *testing.T) {
	s := NewService(clock.RealClock{})
	_, err := s.RegisterLocalSource("w1")
	require.NoError(t, err)
	_, err = s.RegisterLocalSource("w1")
	var dupErr *ErrSourceAlreadyRegistered
	assert.True(t, errors.As(err, &dupErr))
}

func TestSubmitLocalCompletedTime_UnknownSource(t *testing.T) {
	s := NewService(clock.RealClock{})
	err := s.SubmitLocalCompletedTime("missing", 10)
	var unknownErr *ErrUnknownSource
	assert.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, temporal.MinTime, s.GlobalCompletionTime())
}

func TestSubmitLocalCompletedTime_MonotonicallyNonDecreasing(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, err := s.RegisterLocalSource("w1")
	require.NoError(t, err)
	w2, err := s.RegisterLocalSource("w2")
	require.NoError(t, err)

	previous := s.GlobalCompletionTime()
	for i := 1; i <= 20; i++ {
		require.NoError(t, w1.SubmitCompletedTime(temporal.Time(i*10)))
		require.NoError(t, w2.SubmitCompletedTime(temporal.Time(i*7)))
		current := s.GlobalCompletionTime()
		assert.GreaterOrEqual(t, int64(current), int64(previous))
		previous = current
	}
	assert.Equal(t, temporal.Time(140), s.GlobalCompletionTime())
}

func TestSubmitLocalCompletedTime_OutOfOrderRejected(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, err := s.RegisterLocalSource("w1")
	require.NoError(t, err)

	require.NoError(t, w1.SubmitCompletedTime(100))
	assert.Equal(t, temporal.Time(100), s.GlobalCompletionTime())

	err = w1.SubmitCompletedTime(90)
	var outOfOrder *ErrOutOfOrderCompletionTime
	require.True(t, errors.As(err, &outOfOrder))
	assert.Equal(t, "w1", outOfOrder.SourceId)
	assert.Equal(t, temporal.Time(100), outOfOrder.Last)
	assert.Equal(t, temporal.Time(90), outOfOrder.Submitted)
	assert.Equal(t, temporal.Time(100), s.GlobalCompletionTime())

	// Equal values are not out of order
	assert.NoError(t, w1.SubmitCompletedTime(100))
	require.NoError(t, w1.SubmitCompletedTime(110))
	assert.Equal(t, temporal.Time(110), s.GlobalCompletionTime())
}

func TestGlobalCompletionTime_MinimumAcrossWorkers(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, _ := s.RegisterLocalSource("w1")
	w2, _ := s.RegisterLocalSource("w2")
	w3, _ := s.RegisterLocalSource("w3")
	w4, _ := s.RegisterLocalSource("w4")

	require.NoError(t, w1.SubmitCompletedTime(100))
	require.NoError(t, w2.SubmitCompletedTime(150))
	require.NoError(t, w3.SubmitCompletedTime(120))
	assert.Equal(t, temporal.Time(100), s.GlobalCompletionTime())

	// w4 contributes for the first time; w1 is still the minimum
	require.NoError(t, w4.SubmitCompletedTime(130))
	assert.Equal(t, temporal.Time(100), s.GlobalCompletionTime())

	require.NoError(t, w1.SubmitCompletedTime(130))
	assert.Equal(t, temporal.Time(120), s.GlobalCompletionTime())

	require.NoError(t, w3.SubmitCompletedTime(temporal.MaxTime))
	assert.Equal(t, temporal.Time(130), s.GlobalCompletionTime())
}

func TestGlobalCompletionTime_NeverRegressesWhenLateSourceReportsLow(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, _ := s.RegisterLocalSource("w1")
	require.NoError(t, w1.SubmitCompletedTime(100))

	late, _ := s.RegisterLocalSource("late")
	require.NoError(t, late.SubmitCompletedTime(50))
	assert.Equal(t, temporal.Time(100), s.GlobalCompletionTime())

	require.NoError(t, late.SubmitCompletedTime(200))
	require.NoError(t, w1.SubmitCompletedTime(300))
	assert.Equal(t, temporal.Time(200), s.GlobalCompletionTime())
}

func TestPeerCompletionTime(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, _ := s.RegisterLocalSource("w1")
	s.RegisterPeerSource("peer-a")

	require.NoError(t, w1.SubmitCompletedTime(100))
	// Silent registered peer holds the GCT back
	assert.Equal(t, temporal.MinTime, s.GlobalCompletionTime())
	assert.Equal(t, temporal.Time(100), s.LocalCompletionTime())

	require.NoError(t, s.SubmitPeerCompletedTime("peer-a", 80))
	assert.Equal(t, temporal.Time(80), s.GlobalCompletionTime())

	err := s.SubmitPeerCompletedTime("peer-a", 70)
	var outOfOrder *ErrOutOfOrderCompletionTime
	require.True(t, errors.As(err, &outOfOrder))
	assert.True(t, outOfOrder.Peer)
	assert.Equal(t, temporal.Time(80), s.GlobalCompletionTime())

	// Duplicate delivery is harmless
	require.NoError(t, s.SubmitPeerCompletedTime("peer-a", 80))

	// First submission from an unregistered peer is accepted
	require.NoError(t, s.SubmitPeerCompletedTime("peer-b", 500))
	require.NoError(t, s.SubmitPeerCompletedTime("peer-a", 400))
	assert.Equal(t, temporal.Time(100), s.GlobalCompletionTime())
}

func TestLocalCompletionTime_NoReports(t *testing.T) {
	s := NewService(clock.RealClock{})
	_, _ = s.RegisterLocalSource("w1")
	assert.Equal(t, temporal.MinTime, s.LocalCompletionTime())
}

func TestWaitForCompletionTimeAtLeast_AlreadyReached(t *testing.T) {
	s := NewServiceWithInitialTime(clock.RealClock{}, 1000)
	err := s.WaitForCompletionTimeAtLeast(context.Background(), 1000, time.Millisecond)
	assert.NoError(t, err)
}

func TestWaitForCompletionTimeAtLeast_Success(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, _ := s.RegisterLocalSource("w1")
	s.RegisterPeerSource("peer")

	done := make(chan error, 1)
	go func() {
		done <- s.WaitForCompletionTimeAtLeast(context.Background(), 100, 10*time.Second)
	}()

	require.NoError(t, w1.SubmitCompletedTime(150))
	select {
	case <-done:
		t.Fatal("wait returned before the peer reported")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, s.SubmitPeerCompletedTime("peer", 100))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after GCT was reached")
	}
}

func TestWaitForCompletionTimeAtLeast_Timeout(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(time.Now())
	s := NewService(fakeClock)
	w1, _ := s.RegisterLocalSource("w1")

	done := make(chan error, 1)
	go func() {
		done <- s.WaitForCompletionTimeAtLeast(context.Background(), 100, time.Second)
	}()
	require.Eventually(t, fakeClock.HasWaiters, 5*time.Second, time.Millisecond)

	// Unrelated submissions proceed while the waiter is blocked
	require.NoError(t, w1.SubmitCompletedTime(50))
	assert.Equal(t, temporal.Time(50), s.GlobalCompletionTime())

	fakeClock.Step(time.Second)
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrCompletionTimeWaitTimeout))
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not time out")
	}
	assert.Equal(t, 0, s.waiters.Len())
}

func TestWaitForCompletionTimeAtLeast_ContextCancelled(t *testing.T) {
	s := NewService(clock.RealClock{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.WaitForCompletionTimeAtLeast(ctx, 100, 0)
	}()
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestWaitForCompletionTimeAtLeast_ReleasesWaitersInOrder(t *testing.T) {
	s := NewService(clock.RealClock{})
	w1, _ := s.RegisterLocalSource("w1")

	results := make([]chan error, 5)
	for i := range results {
		results[i] = make(chan error, 1)
		threshold := temporal.Time((i + 1) * 10)
		go func(c chan error) {
			c <- s.WaitForCompletionTimeAtLeast(context.Background(), threshold, 10*time.Second)
		}(results[i])
	}
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.waiters.Len() == 5
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, w1.SubmitCompletedTime(30))
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-results[i])
	}
	s.mu.Lock()
	assert.Equal(t, 2, s.waiters.Len())
	s.mu.Unlock()

	require.NoError(t, w1.SubmitCompletedTime(50))
	for i := 3; i < 5; i++ {
		assert.NoError(t, <-results[i])
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	s := NewService(clock.RealClock{})
	const workers = 8
	const submissions = 500

	trackers := make([]*LocalCompletionTimeTracker, workers)
	for i := range trackers {
		tracker, err := s.RegisterLocalSource(fmt.Sprintf("w%d", i))
		require.NoError(t, err)
		trackers[i] = tracker
	}

	var wg sync.WaitGroup
	for _, tracker := range trackers {
		wg.Add(1)
		go func(tracker *LocalCompletionTimeTracker) {
			defer wg.Done()
			for j := 1; j <= submissions; j++ {
				assert.NoError(t, tracker.SubmitCompletedTime(temporal.Time(j)))
			}
		}(tracker)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- s.WaitForCompletionTimeAtLeast(context.Background(), submissions, 30*time.Second)
	}()

	wg.Wait()
	assert.NoError(t, <-waitErr)
	assert.Equal(t, temporal.Time(submissions), s.GlobalCompletionTime())
}
