package ds

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// Queue is the local proxy for a bounded FIFO queue's header (spec §3,
// §4.4, §4.5, §4.6). The per-element data path itself (element key layout,
// batch removal) is an external collaborator out of scope here (spec §1
// non-goals); this proxy only names, sizes, and threads the queue.
type Queue interface {
	Proxy
	ID() uuid.UUID
	Header() values.QueueHeader
	Capacity() int32
	Collocated() bool
	Size(ctx context.Context) (int64, error)
	IsEmpty(ctx context.Context) (bool, error)
	TryEnqueue(ctx context.Context) (bool, error)
	TryDequeue(ctx context.Context) (bool, error)
	OnHeaderChanged(h values.QueueHeader)
	OnRemoved()
	OnKernalStop()
}

type queueBase struct {
	base
	id   uuid.UUID
	key  values.QueueHeaderKey
	view cache.View[values.QueueHeaderKey, values.QueueHeader]

	mu     sync.RWMutex
	header values.QueueHeader
}

func newQueueBase(name string, header values.QueueHeader, view cache.View[values.QueueHeaderKey, values.QueueHeader]) queueBase {
	return queueBase{
		base:   newBase(name, values.KindQueue),
		id:     header.ID,
		key:    values.QueueHeaderKey{Name: name},
		view:   view,
		header: header,
	}
}

func (q *queueBase) ID() uuid.UUID { return q.id }

func (q *queueBase) Header() values.QueueHeader {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.header
}

func (q *queueBase) Capacity() int32  { return q.Header().Capacity }
func (q *queueBase) Collocated() bool { return q.Header().Collocated }

// OnHeaderChanged updates the locally cached header (spec §4.4): the Queue
// Header Watcher calls this for every continuous-query delivery naming this
// queue.
func (q *queueBase) OnHeaderChanged(h values.QueueHeader) {
	q.mu.Lock()
	q.header = h
	q.mu.Unlock()
}

// OnRemoved marks this proxy as gone. Called directly by the Manager on a
// local removeQueue, by the header watcher when it is delivered a delete or
// a removed-flagged header for this queue, or by the watcher's removal probe
// (spec §4.4) once Size() has reported the queue gone.
func (q *queueBase) OnRemoved() { q.markRemoved() }

// OnKernalStop releases local resources on manager shutdown (spec §5). The
// header-only proxy holds no resources beyond its cached header, so this is
// a no-op placed here for parity with the manager's shutdown dispatch,
// which calls it on every queue proxy unconditionally.
func (q *queueBase) OnKernalStop() {}

// Size probes the backing header directly (not the local cache), the exact
// operation the header watcher's removal probe relies on (spec §4.4: "call
// size() on the proxy; if it raises QueueRemoved, drop the proxy"). A header
// that is missing, flagged removed, or carries a different ID than the one
// this proxy was bound to (the queue was recreated under the same name)
// reports QueueRemoved. Queue header invariants (spec §8): tail >= head >= 0,
// empty iff head == tail.
func (q *queueBase) Size(ctx context.Context) (int64, error) {
	if q.Removed() {
		return 0, cmn.QueueRemoved(q.name)
	}
	h, ok, err := q.view.Get(ctx, nil, q.key)
	if err != nil {
		return 0, cmn.CacheFailure(q.name, err)
	}
	if !ok || h.Removed || h.ID != q.id {
		return 0, cmn.QueueRemoved(q.name)
	}
	q.OnHeaderChanged(h)
	return h.Size(), nil
}

func (q *queueBase) IsEmpty(ctx context.Context) (bool, error) {
	sz, err := q.Size(ctx)
	if err != nil {
		return false, err
	}
	return sz == 0, nil
}

func enqueueTransform(name string, applied *bool) cache.TransformFunc[values.QueueHeader] {
	return func(old values.QueueHeader, present bool) (values.QueueHeader, bool, error) {
		if !present || old.Removed {
			return old, false, cmn.QueueRemoved(name)
		}
		if old.Size() >= int64(old.Capacity) {
			return old, false, nil
		}
		old.Tail++
		*applied = true
		return old, false, nil
	}
}

func dequeueTransform(name string, applied *bool) cache.TransformFunc[values.QueueHeader] {
	return func(old values.QueueHeader, present bool) (values.QueueHeader, bool, error) {
		if !present || old.Removed {
			return old, false, cmn.QueueRemoved(name)
		}
		if old.Empty() {
			return old, false, nil
		}
		old.Head++
		*applied = true
		return old, false, nil
	}
}

// TxnQueue is the queue proxy variant used over a transactional backing
// cache (spec §4.5): each header mutation runs inside a pessimistic
// transaction that the proxy opens for that one operation. It does not
// join a transaction supplied by the manager or the caller.
type TxnQueue struct{ queueBase }

func NewTxnQueue(name string, header values.QueueHeader, view cache.View[values.QueueHeaderKey, values.QueueHeader]) *TxnQueue {
	return &TxnQueue{queueBase: newQueueBase(name, header, view)}
}

func (q *TxnQueue) TryEnqueue(ctx context.Context) (bool, error) {
	if err := q.guard(); err != nil {
		return false, err
	}
	applied := false
	err := runTxn(ctx, q.name, q.view.Begin, func(tx cache.Txn) error {
		newH, ferr := q.view.TransformAsync(ctx, tx, q.key, enqueueTransform(q.name, &applied))
		if ferr != nil {
			return ferr
		}
		q.OnHeaderChanged(newH)
		return nil
	})
	return applied, err
}

func (q *TxnQueue) TryDequeue(ctx context.Context) (bool, error) {
	if err := q.guard(); err != nil {
		return false, err
	}
	applied := false
	err := runTxn(ctx, q.name, q.view.Begin, func(tx cache.Txn) error {
		newH, ferr := q.view.TransformAsync(ctx, tx, q.key, dequeueTransform(q.name, &applied))
		if ferr != nil {
			return ferr
		}
		q.OnHeaderChanged(newH)
		return nil
	})
	return applied, err
}

// AtomicQueue is the queue proxy variant used over an atomic backing cache
// (spec §4.5): header mutations run without a manager-supplied
// transaction, relying on the cache's own per-key atomicity.
type AtomicQueue struct{ queueBase }

func NewAtomicQueue(name string, header values.QueueHeader, view cache.View[values.QueueHeaderKey, values.QueueHeader]) *AtomicQueue {
	return &AtomicQueue{queueBase: newQueueBase(name, header, view)}
}

func (q *AtomicQueue) TryEnqueue(ctx context.Context) (bool, error) {
	if err := q.guard(); err != nil {
		return false, err
	}
	applied := false
	newH, err := q.view.TransformAsync(ctx, nil, q.key, enqueueTransform(q.name, &applied))
	if err != nil {
		return false, err
	}
	q.OnHeaderChanged(newH)
	return applied, nil
}

func (q *AtomicQueue) TryDequeue(ctx context.Context) (bool, error) {
	if err := q.guard(); err != nil {
		return false, err
	}
	applied := false
	newH, err := q.view.TransformAsync(ctx, nil, q.key, dequeueTransform(q.name, &applied))
	if err != nil {
		return false, err
	}
	q.OnHeaderChanged(newH)
	return applied, nil
}
