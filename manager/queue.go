package manager

import (
	"context"

	"github.com/golang/glog"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/ds"
	"github.com/hodiqual/griddata/values"
)

type queueOutcome struct {
	q       ds.Queue
	present bool
}

// Queue returns the bounded FIFO queue named name (spec §4.1, §4.4, §4.5).
// Collocation is only honored on a partitioned backing cache; every other
// mode is forced collocated (cmn.EffectiveCollocated). A name already bound
// to a queue of a different capacity or collocation flag is a conflict
// (spec §8 scenario: "queue conflict"), not a silent rebind. On a local
// miss, a pessimistic repeatable-read transaction reads the header: if it
// exists, this binds to it (after the shape check); if it does not and
// create is false, this returns absent (rollback) without creating
// anything (spec §4.5: "if create=false, read the header; on miss return
// absent").
func (m *Manager) Queue(ctx context.Context, name string, capacity int32, collocated, create bool) (ds.Queue, bool, error) {
	release, err := m.enter()
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := cmn.GuardQueue(name, m.mode); err != nil {
		return nil, false, err
	}
	if err := m.ensureQueueWatcher(); err != nil {
		return nil, false, err
	}

	requested := values.QueueHeader{Capacity: capacity, Collocated: cmn.EffectiveCollocated(m.mode, collocated)}
	m.mu.RLock()
	if q, ok := m.queues[name]; ok {
		m.mu.RUnlock()
		if !q.Header().SameShape(requested) {
			return nil, false, cmn.QueueConflict(name)
		}
		return q, true, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.create.Do("queue:"+name, func() (any, error) {
		m.mu.RLock()
		if q, ok := m.queues[name]; ok {
			m.mu.RUnlock()
			return queueOutcome{q: q, present: true}, nil
		}
		m.mu.RUnlock()

		effCollocated := cmn.EffectiveCollocated(m.mode, collocated)
		key := values.QueueHeaderKey{Name: name}
		wantShape := values.QueueHeader{Capacity: capacity, Collocated: effCollocated}

		var out queueOutcome
		txErr := runScoped(ctx, name, m.queueView.Begin, func(tx cache.Txn) error {
			existing, found, gerr := m.queueView.Get(ctx, tx, key)
			if gerr != nil {
				return cmn.CacheFailure(name, gerr)
			}

			var header values.QueueHeader
			if found {
				if !existing.SameShape(wantShape) {
					return cmn.QueueConflict(name)
				}
				header = existing
			} else {
				if !create {
					tx.SetRollbackOnly()
					out = queueOutcome{present: false}
					return nil
				}
				header = values.NewQueueHeader(capacity, effCollocated)
				if perr := m.queueView.Put(ctx, tx, key, header); perr != nil {
					return cmn.CacheFailure(name, perr)
				}
			}

			var q ds.Queue
			if m.mode.Atomic {
				q = ds.NewAtomicQueue(name, header, m.queueView)
			} else {
				q = ds.NewTxnQueue(name, header, m.queueView)
			}
			out = queueOutcome{q: q, present: true}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		if out.present {
			m.mu.Lock()
			m.queues[name] = out.q
			m.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(queueOutcome)
	if !out.present {
		return nil, false, nil
	}
	if !out.q.Header().SameShape(requested) {
		return nil, false, cmn.QueueConflict(name)
	}
	return out.q, true, nil
}

// RemoveQueue removes the named queue's header, reporting whether an entry
// was actually deleted (spec §4.1, §8 "idempotent removal"). batchSize
// governs how many residual elements the (out-of-scope) element data path
// should drain per round trip before the header itself is dropped; this
// manager only owns the header, so batchSize is accepted for API parity
// with the external batch-removal collaborator and logged, not acted on
// here (spec §1 non-goals: "the per-element data path ... is out of
// scope").
func (m *Manager) RemoveQueue(ctx context.Context, name string, batchSize int32) (bool, error) {
	release, err := m.enter()
	if err != nil {
		return false, err
	}
	defer release()

	if batchSize > 0 {
		glog.V(3).Infof("griddata: removeQueue(%q) batchSize=%d is advisory only; element drain is an external collaborator", name, batchSize)
	}

	key := values.QueueHeaderKey{Name: name}
	removed, rerr := m.queueView.Remove(ctx, nil, key)
	if rerr != nil {
		return false, cmn.CacheFailure(name, rerr)
	}
	if !removed {
		return false, nil
	}

	m.mu.Lock()
	q, ok := m.queues[name]
	if ok {
		delete(m.queues, name)
	}
	m.mu.Unlock()
	if ok {
		q.OnRemoved()
	}
	return true, nil
}
