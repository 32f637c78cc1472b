package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/hodiqual/griddata/cmn"
)

type fooKey struct{ name string }

type fooVal struct{ n int }

func newTestStore() *Store {
	return NewStore(cmn.CacheMode{Transactional: true, NearEnabled: true})
}

func TestPutIfAbsentOnlyStoresOnce(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	actual, stored, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: 1})
	if err != nil || !stored || actual.n != 1 {
		t.Fatalf("first PutIfAbsent: actual=%+v stored=%v err=%v", actual, stored, err)
	}

	actual, stored, err = view.PutIfAbsent(ctx, nil, key, fooVal{n: 2})
	if err != nil || stored || actual.n != 1 {
		t.Fatalf("second PutIfAbsent: actual=%+v stored=%v err=%v", actual, stored, err)
	}
}

func TestPutIfAbsentConcurrentRaceStoresOnce(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "race"}

	const n = 50
	var wg sync.WaitGroup
	storedCount := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, stored, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: i})
			if err != nil {
				t.Errorf("PutIfAbsent error: %v", err)
			}
			storedCount[i] = stored
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, s := range storedCount {
		if s {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 winning PutIfAbsent, got %d", winners)
	}
}

func TestTransformAsyncNonTransactional(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	if _, _, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: 10}); err != nil {
		t.Fatal(err)
	}

	newVal, err := view.TransformAsync(ctx, nil, key, func(old fooVal, present bool) (fooVal, bool, error) {
		if !present {
			t.Fatal("expected present=true")
		}
		return fooVal{n: old.n + 5}, false, nil
	})
	if err != nil {
		t.Fatalf("TransformAsync error = %v", err)
	}
	if newVal.n != 15 {
		t.Errorf("newVal.n = %d, want 15", newVal.n)
	}
}

func TestTransactionCommitAppliesAllWrites(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	k1, k2 := fooKey{name: "a"}, fooKey{name: "b"}

	tx, err := view.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := view.Put(ctx, tx, k1, fooVal{n: 1}); err != nil {
		t.Fatal(err)
	}
	if err := view.Put(ctx, tx, k2, fooVal{n: 2}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	v1, ok, _ := view.Get(ctx, nil, k1)
	if !ok || v1.n != 1 {
		t.Errorf("k1 = %+v, ok=%v", v1, ok)
	}
	v2, ok, _ := view.Get(ctx, nil, k2)
	if !ok || v2.n != 2 {
		t.Errorf("k2 = %+v, ok=%v", v2, ok)
	}
}

func TestTransactionRollbackOnlyDiscardsWrites(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	tx, err := view.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := view.Put(ctx, tx, key, fooVal{n: 99}); err != nil {
		t.Fatal(err)
	}
	tx.SetRollbackOnly()
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	_, ok, _ := view.Get(ctx, nil, key)
	if ok {
		t.Error("rolled-back write must not be visible")
	}
}

func TestTransactionCommitIsIdempotent(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	tx, err := view.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := view.Put(ctx, tx, key, fooVal{n: 1}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Errorf("second Commit() must be a no-op, got error: %v", err)
	}
}

func TestOnCommitFiresWithWriteEntries(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	var mu sync.Mutex
	var seen []WriteEntry
	unsub := store.OnCommit(func(entries []WriteEntry) {
		mu.Lock()
		seen = append(seen, entries...)
		mu.Unlock()
	})
	defer unsub()

	if _, _, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := view.Remove(ctx, nil, key); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 commit-hook entries, got %d", len(seen))
	}
	if seen[0].Op != OpCreate {
		t.Errorf("first entry Op = %v, want OpCreate", seen[0].Op)
	}
	if seen[1].Op != OpDelete {
		t.Errorf("second entry Op = %v, want OpDelete", seen[1].Op)
	}
}

func TestContinuousQueryFiltersAndDeliversRemoval(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "watched"}
	other := fooKey{name: "ignored"}

	var mu sync.Mutex
	var delivered []any
	cq, err := store.CreateContinuousQuery(func(k any) bool {
		fk, ok := k.(fooKey)
		return ok && fk.name == "watched"
	}, func(k any, v any) {
		mu.Lock()
		delivered = append(delivered, v)
		mu.Unlock()
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	defer cq.Close()

	if _, _, err := view.PutIfAbsent(ctx, nil, other, fooVal{n: 1}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := view.Remove(ctx, nil, key); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 2 {
		t.Fatalf("expected 2 filtered deliveries, got %d: %+v", len(delivered), delivered)
	}
	if delivered[0].(fooVal).n != 2 {
		t.Errorf("first delivery = %+v, want n=2", delivered[0])
	}
	if delivered[1] != nil {
		t.Errorf("second delivery (removal) = %+v, want nil", delivered[1])
	}
}

func TestContinuousQueryCloseStopsDelivery(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	var mu sync.Mutex
	count := 0
	cq, err := store.CreateContinuousQuery(func(any) bool { return true }, func(any, any) {
		mu.Lock()
		count++
		mu.Unlock()
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := cq.Close(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: 1}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("closed continuous query delivered %d events, want 0", count)
	}
}

func TestMarkObsoleteFailsOnVersionMismatch(t *testing.T) {
	store := newTestStore()
	view := Projection[fooKey, fooVal](store)
	ctx := context.Background()
	key := fooKey{name: "k"}

	var handle func(int64) error
	unsub := store.OnCommit(func(entries []WriteEntry) {
		for _, e := range entries {
			if e.Op == OpCreate {
				handle = e.MarkObsolete
			}
		}
	})
	defer unsub()

	if _, _, err := view.PutIfAbsent(ctx, nil, key, fooVal{n: 1}); err != nil {
		t.Fatal(err)
	}
	if handle == nil {
		t.Fatal("expected MarkObsolete handle from commit hook")
	}

	if _, err := view.TransformAsync(ctx, nil, key, func(old fooVal, present bool) (fooVal, bool, error) {
		return fooVal{n: old.n + 1}, false, nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := handle(1); err == nil {
		t.Error("MarkObsolete with a stale version must fail")
	}
}
