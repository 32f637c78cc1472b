package ds

import (
	"context"
	"testing"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

func newTestView() cache.View[values.InternalKey, values.AtomicLongValue] {
	store := cache.NewStore(cmn.CacheMode{Transactional: true, NearEnabled: true})
	return cache.Projection[values.InternalKey, values.AtomicLongValue](store)
}

func TestAtomicLongGetSet(t *testing.T) {
	ctx := context.Background()
	view := newTestView()
	key := values.InternalKey{Name: "counter"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicLongValue{V: 0}); err != nil {
		t.Fatal(err)
	}
	al := NewAtomicLong("counter", view)

	v, err := al.Get(ctx)
	if err != nil || v != 0 {
		t.Fatalf("Get() = %d, err = %v", v, err)
	}

	if err := al.Set(ctx, 42); err != nil {
		t.Fatal(err)
	}
	v, err = al.Get(ctx)
	if err != nil || v != 42 {
		t.Fatalf("Get() after Set = %d, err = %v", v, err)
	}
}

func TestAtomicLongAddAndGet(t *testing.T) {
	ctx := context.Background()
	view := newTestView()
	key := values.InternalKey{Name: "counter"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicLongValue{V: 10}); err != nil {
		t.Fatal(err)
	}
	al := NewAtomicLong("counter", view)

	v, err := al.AddAndGet(ctx, 5)
	if err != nil || v != 15 {
		t.Fatalf("AddAndGet() = %d, err = %v", v, err)
	}
	v, err = al.IncrementAndGet(ctx)
	if err != nil || v != 16 {
		t.Fatalf("IncrementAndGet() = %d, err = %v", v, err)
	}
}

func TestAtomicLongCompareAndSet(t *testing.T) {
	ctx := context.Background()
	view := newTestView()
	key := values.InternalKey{Name: "counter"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicLongValue{V: 7}); err != nil {
		t.Fatal(err)
	}
	al := NewAtomicLong("counter", view)

	ok, err := al.CompareAndSet(ctx, 99, 100)
	if err != nil || ok {
		t.Fatalf("CompareAndSet with wrong expect: ok=%v err=%v", ok, err)
	}
	ok, err = al.CompareAndSet(ctx, 7, 100)
	if err != nil || !ok {
		t.Fatalf("CompareAndSet with correct expect: ok=%v err=%v", ok, err)
	}
	v, _ := al.Get(ctx)
	if v != 100 {
		t.Errorf("Get() after CAS = %d, want 100", v)
	}
}

func TestAtomicLongRejectsAfterRemoved(t *testing.T) {
	ctx := context.Background()
	view := newTestView()
	key := values.InternalKey{Name: "counter"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicLongValue{V: 1}); err != nil {
		t.Fatal(err)
	}
	al := NewAtomicLong("counter", view)
	al.MarkRemoved()

	if _, err := al.Get(ctx); cmn.KindOf(err) != cmn.KindRemoved {
		t.Errorf("Get() after MarkRemoved: err = %v, want KindRemoved", err)
	}
	if err := al.Set(ctx, 2); cmn.KindOf(err) != cmn.KindRemoved {
		t.Errorf("Set() after MarkRemoved: err = %v, want KindRemoved", err)
	}
}

func TestAtomicLongConcurrentAddAndGet(t *testing.T) {
	ctx := context.Background()
	view := newTestView()
	key := values.InternalKey{Name: "counter"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicLongValue{V: 0}); err != nil {
		t.Fatal(err)
	}
	al := NewAtomicLong("counter", view)

	const n = 100
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := al.AddAndGet(ctx, 1)
			done <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Errorf("AddAndGet error: %v", err)
		}
	}
	v, _ := al.Get(ctx)
	if v != n {
		t.Errorf("Get() = %d, want %d", v, n)
	}
}
