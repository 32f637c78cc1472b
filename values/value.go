package values

import (
	"github.com/google/uuid"
)

// Kind tags a value/proxy pair so that a wrongly-kinded cache entry is
// caught as a decoding error rather than a runtime type assertion panic
// (design note §9: "dynamic type check via reflected class argument" is
// re-architected here as a tagged-variant discriminator).
type Kind string

const (
	KindSequence        Kind = "sequence"
	KindAtomicLong      Kind = "atomic_long"
	KindAtomicReference Kind = "atomic_reference"
	KindAtomicStamped   Kind = "atomic_stamped"
	KindLatch           Kind = "latch"
	KindQueue           Kind = "queue"
)

// Kinded is implemented by every scalar value record so a removal path can
// type-check a stored cache entry against the kind its caller expects, even
// when no local proxy has observed that entry yet — InternalKey is shared
// across all five scalar kinds, so the stored value itself is the only
// reliable source of truth for what is actually there (spec §4.1 remove:
// "fail with TypeMismatch if the stored entry exists but has the wrong
// kind").
type Kinded interface {
	Kind() Kind
}

// SequenceValue is the next unreserved global id for a sequence (spec §3).
type SequenceValue struct {
	Next int64 `json:"next"`
}

// Kind identifies this value as sequence-kind for a stored-entry type-check.
func (SequenceValue) Kind() Kind { return KindSequence }

// AtomicLongValue is the cache-resident value of an atomic long (spec §3).
type AtomicLongValue struct {
	V int64 `json:"v"`
}

// Kind identifies this value as atomic-long-kind for a stored-entry type-check.
func (AtomicLongValue) Kind() Kind { return KindAtomicLong }

// AtomicReferenceValue is the cache-resident value of an atomic reference
// (spec §3). T crosses the wire through the backing cache's own codec, so
// it must itself be serializable by that codec; T may be any type, since
// compareAndSet compares values through a caller-supplied equality function.
type AtomicReferenceValue[T any] struct {
	V T `json:"v"`
}

// Kind identifies this value as atomic-reference-kind for a stored-entry
// type-check, regardless of T.
func (AtomicReferenceValue[T]) Kind() Kind { return KindAtomicReference }

// AtomicStampedValue pairs a value with a stamp that changes independently
// of value identity (spec §3), letting compareAndSet detect an
// intermediate write-then-restore that plain value comparison would miss.
type AtomicStampedValue[T any, S any] struct {
	V     T `json:"v"`
	Stamp S `json:"stamp"`
}

// Kind identifies this value as atomic-stamped-kind for a stored-entry
// type-check, regardless of (T, S).
func (AtomicStampedValue[T, S]) Kind() Kind { return KindAtomicStamped }

// LatchValue is the cache-resident value of a count-down latch (spec §3).
// Invariant: 0 <= Count <= InitialCount.
type LatchValue struct {
	Count        int32 `json:"count"`
	InitialCount int32 `json:"initial_count"`
	AutoDelete   bool  `json:"auto_delete"`
}

// Kind identifies this value as latch-kind for a stored-entry type-check.
func (LatchValue) Kind() Kind { return KindLatch }

// Valid reports whether the latch invariant holds.
func (v LatchValue) Valid() bool {
	return v.Count >= 0 && v.Count <= v.InitialCount
}

// QueueHeader is the cache-resident value naming, sizing, and threading a
// bounded FIFO queue (spec §3). The element data path itself (element key
// layout, batch removal) is an external collaborator — out of scope here
// (spec §1 non-goals).
//
// Invariant: Tail >= Head >= 0. Empty iff Head == Tail. Size = Tail - Head.
type QueueHeader struct {
	ID         uuid.UUID `json:"id"`
	Capacity   int32     `json:"capacity"`
	Collocated bool      `json:"collocated"`
	Head       int64     `json:"head"`
	Tail       int64     `json:"tail"`
	Removed    bool      `json:"removed"`
}

// Empty reports whether the queue currently holds no elements.
func (h QueueHeader) Empty() bool { return h.Head == h.Tail }

// Size returns the number of elements currently in the queue.
func (h QueueHeader) Size() int64 { return h.Tail - h.Head }

// NewQueueHeader builds a fresh header for a queue being created for the
// first time (spec §4.5): a new identity, zeroed head/tail, not removed.
func NewQueueHeader(capacity int32, collocated bool) QueueHeader {
	return QueueHeader{
		ID:         uuid.New(),
		Capacity:   capacity,
		Collocated: collocated,
		Head:       0,
		Tail:       0,
		Removed:    false,
	}
}

// SameShape reports whether two headers agree on capacity and collocation,
// the two fields spec §4.1/§4.5 require to match on a create-race
// (mismatch is reported as QueueConflict).
func (h QueueHeader) SameShape(other QueueHeader) bool {
	return h.Capacity == other.Capacity && h.Collocated == other.Collocated
}
