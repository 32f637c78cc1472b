package cmn

import "fmt"

// WriteOrder mirrors the backing cache's atomic-mode write ordering
// configuration (config().atomicWriteOrderMode() in the external cache
// contract, spec §6). CLOCK ordering is refused for queues (spec §4.1,
// §8 scenario 6) because queue head/tail advancement requires writes to be
// observed in a stable, primary-ordered sequence across replicas.
type WriteOrder int

const (
	PrimaryOrder WriteOrder = iota
	ClockOrder
)

func (w WriteOrder) String() string {
	if w == ClockOrder {
		return "CLOCK"
	}
	return "PRIMARY"
}

// CacheMode is a snapshot of the backing cache's configuration, as surfaced
// by the external cache-inspection contract in spec §6
// (atomic/isLocal/isReplicated/isDht/transactional/nearEnabled/cacheMode/
// atomicWriteOrderMode/atomicSequenceReserveSize). The manager never talks
// to the real cache's config API directly; it asks a cache.View for its
// Mode() and validates it through the guards below.
type CacheMode struct {
	Atomic        bool
	Local         bool
	Replicated    bool
	Dht           bool // partitioned
	Collocated    bool
	Transactional bool
	NearEnabled   bool
	WriteOrder    WriteOrder
	ReserveSize   int64 // config().atomicSequenceReserveSize()
}

// ReservationSize returns the configured sequence reservation size, falling
// back to 1 (no batching) when unset.
func (m CacheMode) ReservationSize() int64 {
	if m.ReserveSize <= 0 {
		return 1
	}
	return m.ReserveSize
}

// GuardScalar enforces spec §4.1 step 2 for counter/reference/stamped/
// sequence/latch: the backing cache must be transactional with near-cache
// enabled, or be a replicated/local cache (which need no near-cache to be
// strongly consistent on a single node).
func GuardScalar(name string, m CacheMode) error {
	if m.Local || m.Replicated {
		return nil
	}
	if m.Transactional && m.NearEnabled {
		return nil
	}
	return ModeMismatch(name, "backing cache must be transactional with near-cache enabled, or local/replicated")
}

// GuardQueue enforces spec §4.1 step 2 for queues: atomic caches are
// permitted, but CLOCK write-order mode is refused outright.
func GuardQueue(name string, m CacheMode) error {
	if m.Atomic && m.WriteOrder == ClockOrder {
		return ModeMismatch(name, fmt.Sprintf("atomic cache with %s write order is not supported for queues", m.WriteOrder))
	}
	if m.Local || m.Replicated || m.Dht || m.Atomic || m.Transactional {
		return nil
	}
	return ModeMismatch(name, "backing cache mode is not recognized for queue use")
}

// EffectiveCollocated implements spec §4.5: collocation is taken as given on
// a partitioned cache, otherwise it is forced to true.
func EffectiveCollocated(m CacheMode, requested bool) bool {
	if m.Dht {
		return requested
	}
	return true
}
