package ds

import (
	"context"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// AtomicReference is the local proxy for a cache-resident reference of
// type T (spec §3, §4.6).
type AtomicReference[T any] struct {
	base
	key  values.InternalKey
	view cache.View[values.InternalKey, values.AtomicReferenceValue[T]]
}

func NewAtomicReference[T any](name string, view cache.View[values.InternalKey, values.AtomicReferenceValue[T]]) *AtomicReference[T] {
	return &AtomicReference[T]{
		base: newBase(name, values.KindAtomicReference),
		key:  values.InternalKey{Name: name},
		view: view,
	}
}

// Get returns the current value (spec §8: "round-trip" invariant).
func (a *AtomicReference[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := a.guard(); err != nil {
		return zero, err
	}
	v, ok, err := a.view.Get(ctx, nil, a.key)
	if err != nil {
		return zero, cmn.CacheFailure(a.name, err)
	}
	if !ok {
		return zero, cmn.Removed(a.name)
	}
	return v.V, nil
}

// Set unconditionally replaces the current value.
func (a *AtomicReference[T]) Set(ctx context.Context, val T) error {
	if err := a.guard(); err != nil {
		return err
	}
	if err := a.view.Put(ctx, nil, a.key, values.AtomicReferenceValue[T]{V: val}); err != nil {
		return cmn.CacheFailure(a.name, err)
	}
	return nil
}

// CompareAndSet atomically replaces the value with update iff it currently
// equals expect under eq, reporting whether the swap happened.
func (a *AtomicReference[T]) CompareAndSet(ctx context.Context, expect, update T, eq func(a, b T) bool) (bool, error) {
	if err := a.guard(); err != nil {
		return false, err
	}
	matched := false
	err := runTxn(ctx, a.name, a.view.Begin, func(tx cache.Txn) error {
		_, ferr := a.view.TransformAsync(ctx, tx, a.key, func(old values.AtomicReferenceValue[T], present bool) (values.AtomicReferenceValue[T], bool, error) {
			if !present {
				var zero values.AtomicReferenceValue[T]
				return zero, false, cmn.Removed(a.name)
			}
			if !eq(old.V, expect) {
				return old, false, nil
			}
			matched = true
			return values.AtomicReferenceValue[T]{V: update}, false, nil
		})
		return ferr
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}
