// Package ds implements the local proxies bound to named cache-resident
// primitives (spec §4.6): atomic long, atomic reference, atomic stamped
// reference, the sequence generator with local reservation, the count-down
// latch, and the bounded FIFO queue. Every proxy mediates its operations
// through a cache.View and rejects calls once removed.
package ds

import (
	"context"

	"go.uber.org/atomic"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// Proxy is the common shape every local proxy satisfies (spec §4.6): a
// name, a kind tag for type-identity checks, and removal state.
type Proxy interface {
	Name() string
	Kind() values.Kind
	Removed() bool
	// MarkRemoved flags the proxy as removed for every primitive whose
	// removal needs no further local bookkeeping. Latch and Queue override
	// this behavior with their own OnRemoved, which also unwinds
	// notifier-driven state (fired channels, header caches); the manager
	// calls OnRemoved directly for those kinds instead of this method.
	MarkRemoved()
}

// base carries the fields and removal bookkeeping shared by every scalar
// proxy (spec §4.6). Queue proxies have their own base (queue.go) because
// they are addressed by header identity rather than name alone.
type base struct {
	name    string
	kind    values.Kind
	removed atomic.Bool
}

func newBase(name string, kind values.Kind) base {
	return base{name: name, kind: kind}
}

func (b *base) Name() string      { return b.name }
func (b *base) Kind() values.Kind { return b.kind }
func (b *base) Removed() bool     { return b.removed.Load() }
func (b *base) markRemoved()      { b.removed.Store(true) }

// MarkRemoved is markRemoved's exported form, satisfying Proxy for every
// scalar kind other than Latch and Queue (which override it with OnRemoved).
func (b *base) MarkRemoved() { b.markRemoved() }

func (b *base) guard() error {
	if b.Removed() {
		return cmn.Removed(b.name)
	}
	return nil
}

// runTxn opens a pessimistic repeatable-read transaction via begin, runs
// body, and commits on success or rolls back on any error — the
// "guaranteed release on all exit paths" contract (spec §6). The ds
// proxies' transactional operations use it; the manager's get-or-create and
// removeScalar paths (removeLatch included) use manager.runScoped instead,
// which has the same deferred rollback (design note §9's open question
// about removeLatch's rollback path).
func runTxn(ctx context.Context, name string, begin func(context.Context) (cache.Txn, error), body func(tx cache.Txn) error) error {
	tx, err := begin(ctx)
	if err != nil {
		return cmn.CacheFailure(name, err)
	}
	succeeded := false
	defer func() {
		if !succeeded {
			tx.SetRollbackOnly()
			_ = tx.Commit()
		}
	}()
	if err := body(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cmn.CacheFailure(name, err)
	}
	succeeded = true
	return nil
}
