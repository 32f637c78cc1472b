package ds

import (
	"context"
	"testing"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

func newTestQueueView() (cache.View[values.QueueHeaderKey, values.QueueHeader], *cache.Store) {
	store := cache.NewStore(cmn.CacheMode{Transactional: true, NearEnabled: true})
	return cache.Projection[values.QueueHeaderKey, values.QueueHeader](store), store
}

func TestTxnQueueEnqueueDequeueRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	view, _ := newTestQueueView()
	key := values.QueueHeaderKey{Name: "Q"}
	header := values.NewQueueHeader(2, true)
	if err := view.Put(ctx, nil, key, header); err != nil {
		t.Fatal(err)
	}
	q := NewTxnQueue("Q", header, view)

	for i := 0; i < 2; i++ {
		ok, err := q.TryEnqueue(ctx)
		if err != nil || !ok {
			t.Fatalf("TryEnqueue() #%d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := q.TryEnqueue(ctx)
	if err != nil || ok {
		t.Fatalf("TryEnqueue() at capacity: ok=%v err=%v, want ok=false", ok, err)
	}

	sz, err := q.Size(ctx)
	if err != nil || sz != 2 {
		t.Fatalf("Size() = %d, err = %v, want 2", sz, err)
	}

	ok, err = q.TryDequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("TryDequeue(): ok=%v err=%v", ok, err)
	}
	empty, err := q.IsEmpty(ctx)
	if err != nil || empty {
		t.Fatalf("IsEmpty() = %v, err = %v, want false", empty, err)
	}
}

func TestQueueHeaderInvariantsHoldAcrossOps(t *testing.T) {
	ctx := context.Background()
	view, _ := newTestQueueView()
	key := values.QueueHeaderKey{Name: "Q"}
	header := values.NewQueueHeader(5, true)
	if err := view.Put(ctx, nil, key, header); err != nil {
		t.Fatal(err)
	}
	q := NewTxnQueue("Q", header, view)

	check := func() {
		h := q.Header()
		if h.Tail < h.Head || h.Head < 0 {
			t.Fatalf("invariant violated: head=%d tail=%d", h.Head, h.Tail)
		}
		if h.Empty() != (h.Head == h.Tail) {
			t.Fatalf("Empty() inconsistent with head==tail: %+v", h)
		}
	}

	check()
	q.TryEnqueue(ctx)
	check()
	q.TryEnqueue(ctx)
	check()
	q.TryDequeue(ctx)
	check()
	q.TryDequeue(ctx)
	check()
	// dequeue past empty must be a no-op, not go negative
	ok, err := q.TryDequeue(ctx)
	if err != nil || ok {
		t.Fatalf("TryDequeue() on empty queue: ok=%v err=%v, want false", ok, err)
	}
	check()
}

func TestAtomicQueueEnqueueDequeueWithoutTransaction(t *testing.T) {
	ctx := context.Background()
	view, _ := newTestQueueView()
	key := values.QueueHeaderKey{Name: "Q"}
	header := values.NewQueueHeader(3, true)
	if err := view.Put(ctx, nil, key, header); err != nil {
		t.Fatal(err)
	}
	q := NewAtomicQueue("Q", header, view)

	ok, err := q.TryEnqueue(ctx)
	if err != nil || !ok {
		t.Fatalf("TryEnqueue(): ok=%v err=%v", ok, err)
	}
	sz, err := q.Size(ctx)
	if err != nil || sz != 1 {
		t.Fatalf("Size() = %d, err = %v, want 1", sz, err)
	}
}

func TestQueueSizeReportsRemovedAfterHeaderDeleted(t *testing.T) {
	ctx := context.Background()
	view, _ := newTestQueueView()
	key := values.QueueHeaderKey{Name: "Q"}
	header := values.NewQueueHeader(3, true)
	if err := view.Put(ctx, nil, key, header); err != nil {
		t.Fatal(err)
	}
	q := NewTxnQueue("Q", header, view)

	if _, err := view.Remove(ctx, nil, key); err != nil {
		t.Fatal(err)
	}

	if _, err := q.Size(ctx); cmn.KindOf(err) != cmn.KindQueueRemoved {
		t.Errorf("Size() after header delete: err = %v, want KindQueueRemoved", err)
	}
}

func TestQueueOnHeaderChangedUpdatesLocalCache(t *testing.T) {
	view, _ := newTestQueueView()
	header := values.NewQueueHeader(10, true)
	q := NewTxnQueue("Q", header, view)

	updated := header
	updated.Tail = 7
	q.OnHeaderChanged(updated)

	if q.Header().Tail != 7 {
		t.Errorf("Header().Tail = %d, want 7", q.Header().Tail)
	}
}

func TestQueueOnRemovedMarksRemoved(t *testing.T) {
	view, _ := newTestQueueView()
	header := values.NewQueueHeader(10, true)
	q := NewTxnQueue("Q", header, view)

	q.OnRemoved()
	if !q.Removed() {
		t.Error("Removed() = false after OnRemoved")
	}
	ctx := context.Background()
	if _, err := q.TryEnqueue(ctx); cmn.KindOf(err) != cmn.KindRemoved {
		t.Errorf("TryEnqueue() after OnRemoved: err = %v, want KindRemoved", err)
	}
}
