package ds

import (
	"context"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// AtomicStamped is the local proxy for a cache-resident (value, stamp) pair
// (spec §3, §4.6). The stamp lets compareAndSet detect an intermediate
// write-then-restore that comparing V alone would miss.
type AtomicStamped[T any, S any] struct {
	base
	key  values.InternalKey
	view cache.View[values.InternalKey, values.AtomicStampedValue[T, S]]
}

func NewAtomicStamped[T any, S any](name string, view cache.View[values.InternalKey, values.AtomicStampedValue[T, S]]) *AtomicStamped[T, S] {
	return &AtomicStamped[T, S]{
		base: newBase(name, values.KindAtomicStamped),
		key:  values.InternalKey{Name: name},
		view: view,
	}
}

// Get returns the current value and stamp.
func (a *AtomicStamped[T, S]) Get(ctx context.Context) (T, S, error) {
	var zeroV T
	var zeroS S
	if err := a.guard(); err != nil {
		return zeroV, zeroS, err
	}
	v, ok, err := a.view.Get(ctx, nil, a.key)
	if err != nil {
		return zeroV, zeroS, cmn.CacheFailure(a.name, err)
	}
	if !ok {
		return zeroV, zeroS, cmn.Removed(a.name)
	}
	return v.V, v.Stamp, nil
}

// Set unconditionally replaces the current value and stamp.
func (a *AtomicStamped[T, S]) Set(ctx context.Context, val T, stamp S) error {
	if err := a.guard(); err != nil {
		return err
	}
	if err := a.view.Put(ctx, nil, a.key, values.AtomicStampedValue[T, S]{V: val, Stamp: stamp}); err != nil {
		return cmn.CacheFailure(a.name, err)
	}
	return nil
}

// CompareAndSet atomically replaces (value, stamp) with (newVal, newStamp)
// iff the current pair equals (expectVal, expectStamp) under the supplied
// equality functions.
func (a *AtomicStamped[T, S]) CompareAndSet(
	ctx context.Context,
	expectVal T, expectStamp S,
	newVal T, newStamp S,
	eqVal func(a, b T) bool, eqStamp func(a, b S) bool,
) (bool, error) {
	if err := a.guard(); err != nil {
		return false, err
	}
	matched := false
	err := runTxn(ctx, a.name, a.view.Begin, func(tx cache.Txn) error {
		_, ferr := a.view.TransformAsync(ctx, tx, a.key, func(old values.AtomicStampedValue[T, S], present bool) (values.AtomicStampedValue[T, S], bool, error) {
			if !present {
				var zero values.AtomicStampedValue[T, S]
				return zero, false, cmn.Removed(a.name)
			}
			if !eqVal(old.V, expectVal) || !eqStamp(old.Stamp, expectStamp) {
				return old, false, nil
			}
			matched = true
			return values.AtomicStampedValue[T, S]{V: newVal, Stamp: newStamp}, false, nil
		})
		return ferr
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}
