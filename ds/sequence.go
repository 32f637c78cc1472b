package ds

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// ErrSequenceOverflow is returned when reserving the next range would carry
// SequenceValue.Next past math.MaxInt64 (design note §9: "implementers
// should either saturate or signal overflow — do not silently wrap"; this
// implementation signals rather than silently wrapping to a negative
// upBound+1).
var ErrSequenceOverflow = errors.New("sequence: reservation would overflow int64")

// Sequence is the local proxy for the monotonic sequence generator with
// local reservation (spec §3, §4.2). It serves increments out of a locally
// held [localCounter, upperBound] range, only talking to the cache when
// the range is exhausted.
type Sequence struct {
	base
	key         values.InternalKey
	view        cache.View[values.InternalKey, values.SequenceValue]
	reserveSize int64

	mu           sync.Mutex
	localCounter int64
	upperBound   int64 // localCounter > upperBound means the range is exhausted (or never seeded)
}

// NewSequence binds a proxy with an already-exhausted local range, forcing
// the first Next() call to reserve.
func NewSequence(name string, view cache.View[values.InternalKey, values.SequenceValue], reserveSize int64) *Sequence {
	if reserveSize < 1 {
		reserveSize = 1
	}
	return &Sequence{
		base:         newBase(name, values.KindSequence),
		key:          values.InternalKey{Name: name},
		view:         view,
		reserveSize:  reserveSize,
		localCounter: 0,
		upperBound:   -1,
	}
}

// SeedRange pre-loads the local range a creator already reserved while
// constructing the backing SequenceValue (spec §4.2: "during initial
// creation... the first range is [initVal, initVal+reserveSize-1]"),
// sparing it a redundant reservation round trip on the first Next() call.
// It only ever advances the range: two reservation round trips racing past
// an exhausted range can land their SeedRange calls out of order, and
// applying the lower of the two after the higher would move localCounter
// backward, breaking per-node monotonicity (spec §8). A stale range that
// loses this race is simply discarded — it was never seeded, so nothing it
// would have served is lost or duplicated.
func (s *Sequence) SeedRange(local, upper int64) {
	s.mu.Lock()
	if upper > s.upperBound {
		s.localCounter = local
		s.upperBound = upper
	}
	s.mu.Unlock()
}

// Next returns the next id in this node's local range, reserving a new
// range from the cache when the current one is exhausted (spec §4.2).
// Invariants (spec §8): strictly increasing per node; globally unique;
// never returned twice cluster-wide.
func (s *Sequence) Next(ctx context.Context) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	for {
		s.mu.Lock()
		if s.localCounter <= s.upperBound {
			v := s.localCounter
			s.localCounter++
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		// Concurrent callers may use up the freshly reserved range before
		// this one gets the lock back, so re-check it instead of taking
		// localCounter blindly.
		if err := s.reserve(ctx); err != nil {
			return 0, err
		}
	}
}

func (s *Sequence) reserve(ctx context.Context) error {
	var g, upBound int64
	err := runTxn(ctx, s.name, s.view.Begin, func(tx cache.Txn) error {
		_, ferr := s.view.TransformAsync(ctx, tx, s.key, func(old values.SequenceValue, present bool) (values.SequenceValue, bool, error) {
			if !present {
				return values.SequenceValue{}, false, cmn.Removed(s.name)
			}
			g = old.Next
			if s.reserveSize-1 > math.MaxInt64-g {
				return old, false, ErrSequenceOverflow
			}
			upBound = g + s.reserveSize - 1
			if upBound == math.MaxInt64 {
				return old, false, ErrSequenceOverflow
			}
			return values.SequenceValue{Next: upBound + 1}, false, nil
		})
		return ferr
	})
	if err != nil {
		return err
	}
	s.SeedRange(g, upBound)
	return nil
}
