package cache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hodiqual/griddata/cmn"
)

// Projection builds a typed View[K,V] over a Store (spec §6:
// "projection<K,V>(Kᴄ, Vᴄ) → View<K,V>"). Go interfaces cannot carry
// generic methods, so unlike a method on Store this is a free function —
// every value family (sequence, atomic long, atomic reference, atomic
// stamped, latch, queue header) gets its own Projection[K,V] call instead
// of a per-kind method on a single façade type.
//
// flagsOn(CLONE) semantics (spec §6): a value returned by Get/PutIfAbsent is
// a plain Go value, never a pointer into the Store's internal map, so it is
// already logically independent of whatever is stored.
func Projection[K comparable, V any](store *Store) View[K, V] {
	return &view[K, V]{store: store}
}

type view[K comparable, V any] struct {
	store *Store
}

func (v *view[K, V]) Mode() cmn.CacheMode { return v.store.Mode() }

func (v *view[K, V]) Begin(ctx context.Context) (Txn, error) {
	return v.store.Begin(ctx)
}

func (v *view[K, V]) Get(ctx context.Context, tx Txn, key K) (V, bool, error) {
	var zero V
	raw, ok, err := v.store.get(ctx, tx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	val, cast := raw.(V)
	if !cast {
		return zero, false, errors.Errorf("cache: value for key %v has unexpected type %T", key, raw)
	}
	return val, true, nil
}

func (v *view[K, V]) Put(ctx context.Context, tx Txn, key K, val V) error {
	return v.store.put(ctx, tx, key, val)
}

func (v *view[K, V]) Remove(ctx context.Context, tx Txn, key K) (bool, error) {
	return v.store.remove(ctx, tx, key)
}

func (v *view[K, V]) PutIfAbsent(ctx context.Context, tx Txn, key K, val V) (V, bool, error) {
	var zero V
	raw, stored, err := v.store.putIfAbsent(ctx, tx, key, val)
	if err != nil {
		return zero, false, err
	}
	actual, cast := raw.(V)
	if !cast {
		return zero, false, errors.Errorf("cache: value for key %v has unexpected type %T", key, raw)
	}
	return actual, stored, nil
}

func (v *view[K, V]) TransformAsync(ctx context.Context, tx Txn, key K, fn TransformFunc[V]) (V, error) {
	var zero V
	raw, err := v.store.transformAsync(ctx, tx, key, func(old any, present bool) (any, bool, error) {
		var oldVal V
		if present {
			var cast bool
			oldVal, cast = old.(V)
			if !cast {
				return nil, false, errors.Errorf("cache: value for key %v has unexpected type %T", key, old)
			}
		}
		newVal, remove, ferr := fn(oldVal, present)
		if ferr != nil {
			return nil, false, ferr
		}
		return newVal, remove, nil
	})
	if err != nil {
		return zero, err
	}
	val, cast := raw.(V)
	if !cast {
		// raw is nil when the transform removed the entry; report the zero value.
		return zero, nil
	}
	return val, nil
}
