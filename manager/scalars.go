package manager

import (
	"context"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/ds"
	"github.com/hodiqual/griddata/values"
)

// lookupOrConflict returns the already-registered proxy for name if one
// exists, raising TypeMismatch when it was created under a different kind
// (spec §4.1 step 3: "a name is bound to exactly one kind for its whole
// lifetime").
func (m *Manager) lookupOrConflict(name string, want values.Kind) (ds.Proxy, bool, error) {
	m.mu.RLock()
	p, ok := m.proxies[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if p.Kind() != want {
		return nil, false, cmn.TypeMismatch(name, string(want), string(p.Kind()))
	}
	return p, true, nil
}

type sequenceOutcome struct {
	seq     *ds.Sequence
	present bool
}

// Sequence returns the sequence generator named name (spec §4.1, §4.2). The
// local fast path returns any already-registered proxy regardless of
// create. On a local miss, a pessimistic repeatable-read transaction reads
// the backing entry: if it exists (another node created it first), this
// binds to it as-is; if it does not and create is false, this returns
// absent (found=false, rollback) without creating anything; if it does not
// and create is true, this seeds [initVal, initVal+reserveSize-1] and
// stores it. Concurrent creators of the same name are deduplicated via
// singleflight so exactly one reservation round trip happens for the
// winner, never one per racing caller (spec §8 "unique creation under
// race").
func (m *Manager) Sequence(ctx context.Context, name string, initVal int64, create bool) (*ds.Sequence, bool, error) {
	release, err := m.enter()
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := cmn.GuardScalar(name, m.mode); err != nil {
		return nil, false, err
	}
	if p, ok, err := m.lookupOrConflict(name, values.KindSequence); err != nil {
		return nil, false, err
	} else if ok {
		return p.(*ds.Sequence), true, nil
	}

	v, err, _ := m.create.Do("seq:"+name, func() (any, error) {
		if p, ok, lerr := m.lookupOrConflict(name, values.KindSequence); lerr != nil {
			return nil, lerr
		} else if ok {
			return sequenceOutcome{seq: p.(*ds.Sequence), present: true}, nil
		}

		reserveSize := m.mode.ReservationSize()
		key := values.InternalKey{Name: name}
		var out sequenceOutcome
		txErr := runScoped(ctx, name, m.sequenceView.Begin, func(tx cache.Txn) error {
			_, found, gerr := m.sequenceView.Get(ctx, tx, key)
			if gerr != nil {
				return cmn.CacheFailure(name, gerr)
			}
			if found {
				out = sequenceOutcome{seq: ds.NewSequence(name, m.sequenceView, reserveSize), present: true}
				return nil
			}
			if !create {
				tx.SetRollbackOnly()
				out = sequenceOutcome{present: false}
				return nil
			}
			seeded := values.SequenceValue{Next: initVal + reserveSize}
			if perr := m.sequenceView.Put(ctx, tx, key, seeded); perr != nil {
				return cmn.CacheFailure(name, perr)
			}
			seq := ds.NewSequence(name, m.sequenceView, reserveSize)
			seq.SeedRange(initVal, initVal+reserveSize-1)
			out = sequenceOutcome{seq: seq, present: true}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		if out.present {
			m.mu.Lock()
			m.proxies[name] = out.seq
			m.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(sequenceOutcome)
	if !out.present {
		return nil, false, nil
	}
	return out.seq, true, nil
}

// RemoveSequence removes the named sequence, reporting whether an entry was
// actually deleted (spec §4.1, §8 "idempotent removal").
func (m *Manager) RemoveSequence(ctx context.Context, name string) (bool, error) {
	return m.removeScalar(ctx, name, values.KindSequence)
}

type atomicLongOutcome struct {
	al      *ds.AtomicLong
	present bool
}

// AtomicLong returns the atomic counter named name (spec §4.1, §3),
// following the same local-fast-path / transactional-slow-path /
// create=false-returns-absent shape as Sequence.
func (m *Manager) AtomicLong(ctx context.Context, name string, initVal int64, create bool) (*ds.AtomicLong, bool, error) {
	release, err := m.enter()
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := cmn.GuardScalar(name, m.mode); err != nil {
		return nil, false, err
	}
	if p, ok, err := m.lookupOrConflict(name, values.KindAtomicLong); err != nil {
		return nil, false, err
	} else if ok {
		return p.(*ds.AtomicLong), true, nil
	}

	v, err, _ := m.create.Do("along:"+name, func() (any, error) {
		if p, ok, lerr := m.lookupOrConflict(name, values.KindAtomicLong); lerr != nil {
			return nil, lerr
		} else if ok {
			return atomicLongOutcome{al: p.(*ds.AtomicLong), present: true}, nil
		}

		key := values.InternalKey{Name: name}
		var out atomicLongOutcome
		txErr := runScoped(ctx, name, m.atomicLongView.Begin, func(tx cache.Txn) error {
			_, found, gerr := m.atomicLongView.Get(ctx, tx, key)
			if gerr != nil {
				return cmn.CacheFailure(name, gerr)
			}
			if found {
				out = atomicLongOutcome{al: ds.NewAtomicLong(name, m.atomicLongView), present: true}
				return nil
			}
			if !create {
				tx.SetRollbackOnly()
				out = atomicLongOutcome{present: false}
				return nil
			}
			if perr := m.atomicLongView.Put(ctx, tx, key, values.AtomicLongValue{V: initVal}); perr != nil {
				return cmn.CacheFailure(name, perr)
			}
			out = atomicLongOutcome{al: ds.NewAtomicLong(name, m.atomicLongView), present: true}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		if out.present {
			m.mu.Lock()
			m.proxies[name] = out.al
			m.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(atomicLongOutcome)
	if !out.present {
		return nil, false, nil
	}
	return out.al, true, nil
}

// RemoveAtomicLong removes the named atomic counter, reporting whether an
// entry was actually deleted (spec §4.1).
func (m *Manager) RemoveAtomicLong(ctx context.Context, name string) (bool, error) {
	return m.removeScalar(ctx, name, values.KindAtomicLong)
}

type latchOutcome struct {
	l       *ds.Latch
	present bool
}

// Latch returns the count-down latch named name (spec §4.1, §4.3). The
// returned proxy's observable count only moves once the Latch Notifier's
// commit-hook dispatch reaches it — see ds.Latch.
func (m *Manager) Latch(ctx context.Context, name string, count int32, autoDelete, create bool) (*ds.Latch, bool, error) {
	release, err := m.enter()
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := cmn.GuardScalar(name, m.mode); err != nil {
		return nil, false, err
	}
	if p, ok, err := m.lookupOrConflict(name, values.KindLatch); err != nil {
		return nil, false, err
	} else if ok {
		return p.(*ds.Latch), true, nil
	}

	v, err, _ := m.create.Do("latch:"+name, func() (any, error) {
		if p, ok, lerr := m.lookupOrConflict(name, values.KindLatch); lerr != nil {
			return nil, lerr
		} else if ok {
			return latchOutcome{l: p.(*ds.Latch), present: true}, nil
		}

		key := values.InternalKey{Name: name}
		var out latchOutcome
		txErr := runScoped(ctx, name, m.latchView.Begin, func(tx cache.Txn) error {
			existing, found, gerr := m.latchView.Get(ctx, tx, key)
			if gerr != nil {
				return cmn.CacheFailure(name, gerr)
			}
			if found {
				out = latchOutcome{
					l:       ds.NewLatch(name, m.latchView, existing.Count, existing.InitialCount, existing.AutoDelete),
					present: true,
				}
				return nil
			}
			if !create {
				tx.SetRollbackOnly()
				out = latchOutcome{present: false}
				return nil
			}
			seeded := values.LatchValue{Count: count, InitialCount: count, AutoDelete: autoDelete}
			if perr := m.latchView.Put(ctx, tx, key, seeded); perr != nil {
				return cmn.CacheFailure(name, perr)
			}
			out = latchOutcome{
				l:       ds.NewLatch(name, m.latchView, seeded.Count, seeded.InitialCount, seeded.AutoDelete),
				present: true,
			}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		if out.present {
			m.mu.Lock()
			m.proxies[name] = out.l
			m.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(latchOutcome)
	if !out.present {
		return nil, false, nil
	}
	return out.l, true, nil
}

// RemoveLatch removes the named latch, refusing with BusyLatch if its count
// is still non-zero (spec §4.1: "the removal additionally refuses ... to
// delete a latch whose count is still non-zero"). This is distinct from the
// count-reaches-zero auto-delete path, which the notifier drives and which
// never goes through this method.
func (m *Manager) RemoveLatch(ctx context.Context, name string) (bool, error) {
	return m.removeScalar(ctx, name, values.KindLatch)
}

// removeScalar is the shared read-check-remove path for every scalar
// primitive (spec §4.1 remove: a pessimistic repeatable-read transaction
// reads the stored value with a type-check, removes it if present, and
// commits; else rolls back). The stored value — not the local proxy — is
// the source of truth for the kind check: InternalKey is shared by every
// scalar kind, so a name with no locally-registered proxy can still hold a
// cross-node entry of the wrong kind, and that case is caught here too
// (spec §4.1: "fail with TypeMismatch if the stored entry exists but has
// the wrong kind"). For latches specifically, a non-zero stored count fails
// the removal with BusyLatch instead of deleting it. Idempotent: removing
// an already-gone name returns (false, nil) silently (spec §8 "idempotent
// removal").
func (m *Manager) removeScalar(ctx context.Context, name string, kind values.Kind) (bool, error) {
	release, err := m.enter()
	if err != nil {
		return false, err
	}
	defer release()

	key := values.InternalKey{Name: name}
	removed := false
	txErr := runScoped(ctx, name, m.scalarView.Begin, func(tx cache.Txn) error {
		raw, found, gerr := m.scalarView.Get(ctx, tx, key)
		if gerr != nil {
			return cmn.CacheFailure(name, gerr)
		}
		if !found {
			tx.SetRollbackOnly()
			return nil
		}
		kinded, ok := raw.(values.Kinded)
		if !ok {
			return cmn.TypeMismatch(name, string(kind), "unrecognized")
		}
		if kinded.Kind() != kind {
			return cmn.TypeMismatch(name, string(kind), string(kinded.Kind()))
		}
		if kind == values.KindLatch {
			if lv, ok := raw.(values.LatchValue); ok && lv.Count != 0 {
				return cmn.BusyLatch(name)
			}
		}
		ok, rerr := m.scalarView.Remove(ctx, tx, key)
		if rerr != nil {
			return cmn.CacheFailure(name, rerr)
		}
		removed = ok
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	if !removed {
		return false, nil
	}

	m.mu.Lock()
	p, ok := m.proxies[name]
	if ok {
		delete(m.proxies, name)
	}
	m.mu.Unlock()
	if ok {
		if lp, isLatch := p.(*ds.Latch); isLatch {
			lp.OnRemoved()
		} else {
			p.MarkRemoved()
		}
	}
	return true, nil
}
