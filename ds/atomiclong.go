package ds

import (
	"context"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// AtomicLong is the local proxy for a cache-resident int64 counter (spec
// §3, §4.6).
type AtomicLong struct {
	base
	key  values.InternalKey
	view cache.View[values.InternalKey, values.AtomicLongValue]
}

// NewAtomicLong binds a proxy to an already-materialized backing entry.
func NewAtomicLong(name string, view cache.View[values.InternalKey, values.AtomicLongValue]) *AtomicLong {
	return &AtomicLong{
		base: newBase(name, values.KindAtomicLong),
		key:  values.InternalKey{Name: name},
		view: view,
	}
}

// Get returns the current value.
func (a *AtomicLong) Get(ctx context.Context) (int64, error) {
	if err := a.guard(); err != nil {
		return 0, err
	}
	v, ok, err := a.view.Get(ctx, nil, a.key)
	if err != nil {
		return 0, cmn.CacheFailure(a.name, err)
	}
	if !ok {
		return 0, cmn.Removed(a.name)
	}
	return v.V, nil
}

// Set unconditionally replaces the current value.
func (a *AtomicLong) Set(ctx context.Context, val int64) error {
	if err := a.guard(); err != nil {
		return err
	}
	if err := a.view.Put(ctx, nil, a.key, values.AtomicLongValue{V: val}); err != nil {
		return cmn.CacheFailure(a.name, err)
	}
	return nil
}

// AddAndGet atomically adds delta and returns the new value, as a
// single-entry pessimistic transaction (spec §4.6).
func (a *AtomicLong) AddAndGet(ctx context.Context, delta int64) (int64, error) {
	if err := a.guard(); err != nil {
		return 0, err
	}
	var result int64
	err := runTxn(ctx, a.name, a.view.Begin, func(tx cache.Txn) error {
		newVal, ferr := a.view.TransformAsync(ctx, tx, a.key, func(old values.AtomicLongValue, present bool) (values.AtomicLongValue, bool, error) {
			if !present {
				return values.AtomicLongValue{}, false, cmn.Removed(a.name)
			}
			return values.AtomicLongValue{V: old.V + delta}, false, nil
		})
		if ferr != nil {
			return ferr
		}
		result = newVal.V
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// IncrementAndGet is AddAndGet(1).
func (a *AtomicLong) IncrementAndGet(ctx context.Context) (int64, error) {
	return a.AddAndGet(ctx, 1)
}

// CompareAndSet atomically replaces the value with update iff it currently
// equals expect, reporting whether the swap happened (spec §4.6 — "becomes
// a single-entry pessimistic transaction").
func (a *AtomicLong) CompareAndSet(ctx context.Context, expect, update int64) (bool, error) {
	if err := a.guard(); err != nil {
		return false, err
	}
	matched := false
	err := runTxn(ctx, a.name, a.view.Begin, func(tx cache.Txn) error {
		_, ferr := a.view.TransformAsync(ctx, tx, a.key, func(old values.AtomicLongValue, present bool) (values.AtomicLongValue, bool, error) {
			if !present {
				return values.AtomicLongValue{}, false, cmn.Removed(a.name)
			}
			if old.V != expect {
				return old, false, nil
			}
			matched = true
			return values.AtomicLongValue{V: update}, false, nil
		})
		return ferr
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}
