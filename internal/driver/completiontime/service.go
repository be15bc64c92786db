// Package completiontime tracks how far the run has progressed.
//
// Every worker owns a local completion time source: the latest scheduled start time up to which it
// has finished everything it was given. Peers (other driver processes) advertise the same value for
// themselves. The global completion time (GCT) is the minimum over all of those and is the only
// cross-worker synchronisation point dependent operations may rely on.
package completiontime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/driver/temporal"
)

type source struct {
	id       string
	peer     bool
	latest   temporal.Time
	reported bool
}

func (src *source) accept(t temporal.Time) error {
	if src.reported && t < src.latest {
		return errors.WithStack(&ErrOutOfOrderCompletionTime{
			SourceId:  src.id,
			Peer:      src.peer,
			Last:      src.latest,
			Submitted: t,
		})
	}
	src.latest = t
	src.reported = true
	return nil
}

type waiter struct {
	threshold temporal.Time
	seq       uint64
	ch        chan struct{}
}

func waiterLess(a, b *waiter) bool {
	if a.threshold != b.threshold {
		return a.threshold < b.threshold
	}
	return a.seq < b.seq
}

// Service aggregates local and peer completion times into the global completion time.
//
// All updates go through a single critical section that applies the submission, recomputes the
// minimum and releases any waiters the new value satisfies. Readers of the GCT never take the lock.
type Service struct {
	clock clock.Clock

	mu      sync.Mutex
	local   map[string]*source
	peers   map[string]*source
	gct     temporal.Time
	waiters *btree.BTreeG[*waiter]
	seq     uint64

	published atomic.Int64
}

// NewService returns a service whose GCT starts at negative infinity.
func NewService(clk clock.Clock) *Service {
	return NewServiceWithInitialTime(clk, temporal.MinTime)
}

// NewServiceWithInitialTime returns a service whose GCT starts at initial, e.g. the run start time.
func NewServiceWithInitialTime(clk clock.Clock, initial temporal.Time) *Service {
	s := &Service{
		clock:   clk,
		local:   map[string]*source{},
		peers:   map[string]*source{},
		gct:     initial,
		waiters: btree.NewBTreeGOptions(waiterLess, btree.Options{NoLocks: true}),
	}
	s.published.Store(int64(initial))
	return s
}

// RegisterLocalSource adds a worker's slot. The slot does not hold the GCT back until the worker
// submits its first completion time.
func (s *Service) RegisterLocalSource(id string) (*LocalCompletionTimeTracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.local[id]; exists {
		return nil, errors.WithStack(&ErrSourceAlreadyRegistered{SourceId: id})
	}
	s.local[id] = &source{id: id}
	return &LocalCompletionTimeTracker{id: id, service: s}, nil
}

// RegisterPeerSource adds a peer's slot ahead of its first heartbeat. Until the peer reports, the GCT
// cannot advance: nothing is known about what the peer has completed.
func (s *Service) RegisterPeerSource(peerId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.peers[peerId]; !exists {
		s.peers[peerId] = &source{id: peerId, peer: true}
	}
}

func (s *Service) SubmitLocalCompletedTime(sourceId string, t temporal.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.local[sourceId]
	if !ok {
		return errors.WithStack(&ErrUnknownSource{SourceId: sourceId})
	}
	if err := src.accept(t); err != nil {
		return err
	}
	s.recompute()
	return nil
}

// SubmitPeerCompletedTime applies a watermark advertised by another driver process. The first value
// from a peer that was never registered is accepted unconditionally.
func (s *Service) SubmitPeerCompletedTime(peerId string, t temporal.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.peers[peerId]
	if !ok {
		src = &source{id: peerId, peer: true}
		s.peers[peerId] = src
	}
	if err := src.accept(t); err != nil {
		return err
	}
	s.recompute()
	return nil
}

// GlobalCompletionTime returns the current GCT without blocking.
func (s *Service) GlobalCompletionTime() temporal.Time {
	return temporal.Time(s.published.Load())
}

// LocalCompletionTime is the minimum over the local sources that have reported, i.e. the value this
// process advertises to its peers. It is MinTime until some local source reports.
func (s *Service) LocalCompletionTime() temporal.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	lct := temporal.MaxTime
	reported := false
	for _, src := range s.local {
		if src.reported {
			lct = temporal.Min(lct, src.latest)
			reported = true
		}
	}
	if !reported {
		return temporal.MinTime
	}
	return lct
}

// WaitForCompletionTimeAtLeast blocks until the GCT is at least t. It returns
// ErrCompletionTimeWaitTimeout if that does not happen within timeout (a non-positive timeout waits
// until ctx is done) and ctx.Err() if ctx is cancelled first. No lock is held while blocked.
func (s *Service) WaitForCompletionTimeAtLeast(ctx context.Context, t temporal.Time, timeout time.Duration) error {
	s.mu.Lock()
	if s.gct >= t {
		s.mu.Unlock()
		return nil
	}
	w := &waiter{threshold: t, seq: s.seq, ch: make(chan struct{})}
	s.seq++
	s.waiters.Set(w)
	s.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := s.clock.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C()
	}

	select {
	case <-w.ch:
		return nil
	case <-timeoutC:
		s.removeWaiter(w)
		if s.GlobalCompletionTime() >= t {
			return nil
		}
		return errors.Wrapf(ErrCompletionTimeWaitTimeout, "waiting %s for %s", timeout, t)
	case <-ctx.Done():
		s.removeWaiter(w)
		return ctx.Err()
	}
}

func (s *Service) removeWaiter(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters.Delete(w)
}

// recompute must be called with mu held.
func (s *Service) recompute() {
	candidate := temporal.MaxTime
	contributing := false
	for _, src := range s.local {
		if src.reported {
			candidate = temporal.Min(candidate, src.latest)
			contributing = true
		}
	}
	for _, src := range s.peers {
		if src.reported {
			candidate = temporal.Min(candidate, src.latest)
		} else {
			candidate = temporal.MinTime
		}
		contributing = true
	}
	// A source registered late may report below the current GCT; the published value never regresses.
	if !contributing || candidate <= s.gct {
		return
	}
	s.gct = candidate
	s.published.Store(int64(candidate))
	for {
		w, ok := s.waiters.Min()
		if !ok || w.threshold > s.gct {
			return
		}
		s.waiters.Delete(w)
		close(w.ch)
	}
}

// LocalCompletionTimeTracker is the handle a single worker uses to report its progress.
type LocalCompletionTimeTracker struct {
	id      string
	service *Service
}

func (t *LocalCompletionTimeTracker) Id() string {
	return t.id
}

// SubmitCompletedTime records that the worker has finished every operation scheduled at or before ct.
func (t *LocalCompletionTimeTracker) SubmitCompletedTime(ct temporal.Time) error {
	return t.service.SubmitLocalCompletedTime(t.id, ct)
}
