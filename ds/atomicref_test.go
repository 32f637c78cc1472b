package ds

import (
	"context"
	"sync"
	"testing"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

func newTestRefView() cache.View[values.InternalKey, values.AtomicReferenceValue[string]] {
	store := cache.NewStore(cmn.CacheMode{Transactional: true, NearEnabled: true})
	return cache.Projection[values.InternalKey, values.AtomicReferenceValue[string]](store)
}

func TestAtomicReferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	view := newTestRefView()
	key := values.InternalKey{Name: "ref"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicReferenceValue[string]{V: "z"}); err != nil {
		t.Fatal(err)
	}
	ref := NewAtomicReference[string]("ref", view)

	v, err := ref.Get(ctx)
	if err != nil || v != "z" {
		t.Fatalf("Get() = %q, err = %v", v, err)
	}

	if err := ref.Set(ctx, "y"); err != nil {
		t.Fatal(err)
	}
	v, err = ref.Get(ctx)
	if err != nil || v != "y" {
		t.Fatalf("Get() after Set = %q, err = %v", v, err)
	}
}

func TestAtomicReferenceCompareAndSet(t *testing.T) {
	ctx := context.Background()
	view := newTestRefView()
	key := values.InternalKey{Name: "ref"}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, values.AtomicReferenceValue[string]{V: "a"}); err != nil {
		t.Fatal(err)
	}
	ref := NewAtomicReference[string]("ref", view)
	eq := func(a, b string) bool { return a == b }

	ok, err := ref.CompareAndSet(ctx, "wrong", "b", eq)
	if err != nil || ok {
		t.Fatalf("CompareAndSet with wrong expect: ok=%v err=%v", ok, err)
	}
	ok, err = ref.CompareAndSet(ctx, "a", "b", eq)
	if err != nil || !ok {
		t.Fatalf("CompareAndSet with correct expect: ok=%v err=%v", ok, err)
	}
}

func TestAtomicReferenceCreateRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := cache.NewStore(cmn.CacheMode{Transactional: true, NearEnabled: true})
	view := cache.Projection[values.InternalKey, values.AtomicReferenceValue[string]](store)
	key := values.InternalKey{Name: "R"}

	const n = 100
	var wg sync.WaitGroup
	stored := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, isNew, err := view.PutIfAbsent(ctx, nil, key, values.AtomicReferenceValue[string]{V: "z"})
			if err != nil {
				t.Errorf("PutIfAbsent error: %v", err)
			}
			stored[i] = isNew
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, s := range stored {
		if s {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 CREATE write under race, got %d", winners)
	}
}
