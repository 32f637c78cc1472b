package manager

import (
	"context"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/ds"
	"github.com/hodiqual/griddata/values"
)

// AtomicReference returns the cache-resident reference of type T named
// name (spec §4.1, §4.6). A free function rather than a Manager method: Go
// methods cannot introduce their own type parameters, so every typed
// get-or-create that needs one follows cache.Projection's free-function
// shape instead of living on *Manager directly. Follows the same
// local-fast-path / transactional-slow-path / create=false-returns-absent
// shape as Manager.Sequence.
func AtomicReference[T any](ctx context.Context, m *Manager, name string, initVal T, create bool) (*ds.AtomicReference[T], bool, error) {
	release, err := m.enter()
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := cmn.GuardScalar(name, m.mode); err != nil {
		return nil, false, err
	}
	if p, ok, err := m.lookupOrConflict(name, values.KindAtomicReference); err != nil {
		return nil, false, err
	} else if ok {
		ref, cast := p.(*ds.AtomicReference[T])
		if !cast {
			return nil, false, cmn.TypeMismatch(name, string(values.KindAtomicReference), "atomic_reference<different T>")
		}
		return ref, true, nil
	}

	view := cache.Projection[values.InternalKey, values.AtomicReferenceValue[T]](m.store)
	key := values.InternalKey{Name: name}

	type outcome struct {
		ref     *ds.AtomicReference[T]
		present bool
	}

	result, err, _ := m.create.Do("aref:"+name, func() (any, error) {
		if p, ok, lerr := m.lookupOrConflict(name, values.KindAtomicReference); lerr != nil {
			return nil, lerr
		} else if ok {
			return outcome{ref: p.(*ds.AtomicReference[T]), present: true}, nil
		}

		var out outcome
		txErr := runScoped(ctx, name, view.Begin, func(tx cache.Txn) error {
			_, found, gerr := view.Get(ctx, tx, key)
			if gerr != nil {
				return cmn.CacheFailure(name, gerr)
			}
			if found {
				out = outcome{ref: ds.NewAtomicReference[T](name, view), present: true}
				return nil
			}
			if !create {
				tx.SetRollbackOnly()
				out = outcome{present: false}
				return nil
			}
			if perr := view.Put(ctx, tx, key, values.AtomicReferenceValue[T]{V: initVal}); perr != nil {
				return cmn.CacheFailure(name, perr)
			}
			out = outcome{ref: ds.NewAtomicReference[T](name, view), present: true}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		if out.present {
			m.mu.Lock()
			m.proxies[name] = out.ref
			m.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := result.(outcome)
	if !out.present {
		return nil, false, nil
	}
	return out.ref, true, nil
}

// RemoveAtomicReference removes the named atomic reference, regardless of
// T: deletion does not need to know the value's static type (spec §4.1).
func RemoveAtomicReference(ctx context.Context, m *Manager, name string) (bool, error) {
	return m.removeScalar(ctx, name, values.KindAtomicReference)
}

// AtomicStamped returns the cache-resident (value, stamp) pair of types
// (T, S) named name (spec §4.1, §4.6, §3), following the same shape as
// AtomicReference.
func AtomicStamped[T any, S any](ctx context.Context, m *Manager, name string, initVal T, initStamp S, create bool) (*ds.AtomicStamped[T, S], bool, error) {
	release, err := m.enter()
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := cmn.GuardScalar(name, m.mode); err != nil {
		return nil, false, err
	}
	if p, ok, err := m.lookupOrConflict(name, values.KindAtomicStamped); err != nil {
		return nil, false, err
	} else if ok {
		st, cast := p.(*ds.AtomicStamped[T, S])
		if !cast {
			return nil, false, cmn.TypeMismatch(name, string(values.KindAtomicStamped), "atomic_stamped<different T,S>")
		}
		return st, true, nil
	}

	view := cache.Projection[values.InternalKey, values.AtomicStampedValue[T, S]](m.store)
	key := values.InternalKey{Name: name}

	type outcome struct {
		st      *ds.AtomicStamped[T, S]
		present bool
	}

	result, err, _ := m.create.Do("astamp:"+name, func() (any, error) {
		if p, ok, lerr := m.lookupOrConflict(name, values.KindAtomicStamped); lerr != nil {
			return nil, lerr
		} else if ok {
			return outcome{st: p.(*ds.AtomicStamped[T, S]), present: true}, nil
		}

		var out outcome
		txErr := runScoped(ctx, name, view.Begin, func(tx cache.Txn) error {
			_, found, gerr := view.Get(ctx, tx, key)
			if gerr != nil {
				return cmn.CacheFailure(name, gerr)
			}
			if found {
				out = outcome{st: ds.NewAtomicStamped[T, S](name, view), present: true}
				return nil
			}
			if !create {
				tx.SetRollbackOnly()
				out = outcome{present: false}
				return nil
			}
			seeded := values.AtomicStampedValue[T, S]{V: initVal, Stamp: initStamp}
			if perr := view.Put(ctx, tx, key, seeded); perr != nil {
				return cmn.CacheFailure(name, perr)
			}
			out = outcome{st: ds.NewAtomicStamped[T, S](name, view), present: true}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		if out.present {
			m.mu.Lock()
			m.proxies[name] = out.st
			m.mu.Unlock()
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := result.(outcome)
	if !out.present {
		return nil, false, nil
	}
	return out.st, true, nil
}

// RemoveAtomicStamped removes the named atomic stamped reference,
// regardless of (T, S) (spec §4.1).
func RemoveAtomicStamped(ctx context.Context, m *Manager, name string) (bool, error) {
	return m.removeScalar(ctx, name, values.KindAtomicStamped)
}
