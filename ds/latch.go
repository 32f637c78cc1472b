package ds

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// LatchState models the latch proxy state machine (spec §4.3):
// Active -> (Counting, transient per countDown) -> Fired -> Removed.
// Counting is not a persisted state in this implementation: it exists only
// for the duration of one CountDown call and is not observable between
// calls, so it is omitted from the enum.
type LatchState int32

const (
	LatchActive LatchState = iota
	LatchFired
	LatchRemoved
)

// Latch is the local proxy for a count-down latch (spec §3, §4.3). It does
// not mutate its own locally-cached count directly on CountDown; the count
// and state transitions are driven exclusively by the Latch Notifier's
// commit-hook dispatch (notify.LatchNotifier), which calls OnUpdate/
// OnRemoved on every node holding a proxy for this latch — including the
// node that performed the write.
type Latch struct {
	base
	key          values.InternalKey
	view         cache.View[values.InternalKey, values.LatchValue]
	initialCount int32
	autoDelete   bool

	count atomic.Int32

	mu    sync.Mutex
	state LatchState
	fired chan struct{}
}

// NewLatch binds a proxy to an already-materialized LatchValue.
func NewLatch(name string, view cache.View[values.InternalKey, values.LatchValue], count, initialCount int32, autoDelete bool) *Latch {
	l := &Latch{
		base:         newBase(name, values.KindLatch),
		key:          values.InternalKey{Name: name},
		view:         view,
		initialCount: initialCount,
		autoDelete:   autoDelete,
		fired:        make(chan struct{}),
	}
	l.count.Store(count)
	if count == 0 {
		l.state = LatchFired
		close(l.fired)
	}
	return l
}

// Count returns the last count observed via the commit hook.
func (l *Latch) Count() int32 { return l.count.Load() }

// InitialCount returns the count the latch was created with.
func (l *Latch) InitialCount() int32 { return l.initialCount }

// AutoDelete reports whether this latch self-removes on reaching zero.
func (l *Latch) AutoDelete() bool { return l.autoDelete }

// State returns the current state-machine state.
func (l *Latch) State() LatchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// CountDown decrements the backing count by one, floored at zero, as a
// single-entry pessimistic transaction (spec §4.6). The observable effect
// on this proxy (and every other node's proxy for the same name) arrives
// through OnUpdate/OnRemoved, dispatched from the commit hook.
func (l *Latch) CountDown(ctx context.Context) error {
	if err := l.guard(); err != nil {
		return err
	}
	return runTxn(ctx, l.name, l.view.Begin, func(tx cache.Txn) error {
		_, ferr := l.view.TransformAsync(ctx, tx, l.key, func(old values.LatchValue, present bool) (values.LatchValue, bool, error) {
			if !present {
				return values.LatchValue{}, false, cmn.Removed(l.name)
			}
			if old.Count == 0 {
				return old, false, nil
			}
			old.Count--
			return old, false, nil
		})
		return ferr
	})
}

// Await blocks until the latch count reaches zero or ctx is done.
func (l *Latch) Await(ctx context.Context) error {
	if err := l.guard(); err != nil {
		return err
	}
	select {
	case <-l.fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnUpdate is invoked by the Latch Notifier on every committed write to
// this latch's backing entry (spec §4.3). Latch monotonicity (spec §8):
// count observed by any proxy is non-increasing until Removed.
func (l *Latch) OnUpdate(newCount int32) {
	l.count.Store(newCount)
	if newCount != 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == LatchActive {
		l.state = LatchFired
		close(l.fired)
	}
}

// OnRemoved is invoked by the Latch Notifier when the backing entry is
// deleted, whether by auto-delete on reaching zero or by an explicit
// removeLatch (spec §4.3). Transitions from Active are also possible here
// directly — an explicit removal can race ahead of a zero-count update.
func (l *Latch) OnRemoved() {
	l.markRemoved()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LatchRemoved {
		l.state = LatchRemoved
	}
	select {
	case <-l.fired:
	default:
		close(l.fired)
	}
}
