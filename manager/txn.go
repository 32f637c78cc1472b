package manager

import (
	"context"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
)

// runScoped opens a pessimistic repeatable-read transaction via begin and
// runs body under it, committing on success and rolling back on any error
// or on an explicit SetRollbackOnly — the manager-level counterpart to
// ds.runTxn's "guaranteed release on every exit path" contract (spec §4.1
// step 4, §6), used for the get-or-create and remove transactions a
// get-or-create caller needs but a bound proxy never does.
func runScoped(ctx context.Context, name string, begin func(context.Context) (cache.Txn, error), body func(tx cache.Txn) error) error {
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
