package cache

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/hodiqual/griddata/cmn"
)

type entry struct {
	value   any
	version int64
}

// Store is an in-memory implementation of the cache façade contract (spec
// §6). It provides per-key pessimistic locking, repeatable-read
// transactions, a commit hook, and continuous queries — the same shape the
// real backing cache exposes, grounded in the teacher's
// ais/transaction.go registry (a mutex-guarded map of in-flight
// transactions, fired exactly once) and cluster/map.go's listener set.
type Store struct {
	mode cmn.CacheMode

	mu      sync.Mutex
	entries map[any]entry
	locks   map[any]*sync.Mutex
	version int64
	hooks   map[int]CommitFunc
	nextHk  int

	cqMu sync.Mutex
	cqs  map[*continuousQuery]struct{}
}

// NewStore constructs an in-memory Store configured with the given cache
// mode (spec §6 cache-mode inspection surface).
func NewStore(mode cmn.CacheMode) *Store {
	return &Store{
		mode:    mode,
		entries: make(map[any]entry),
		locks:   make(map[any]*sync.Mutex),
		hooks:   make(map[int]CommitFunc),
		cqs:     make(map[*continuousQuery]struct{}),
	}
}

func (s *Store) Mode() cmn.CacheMode { return s.mode }

func (s *Store) keyLock(key any) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[key] = lk
	}
	return lk
}

func (s *Store) unlockKey(key any) {
	s.mu.Lock()
	lk := s.locks[key]
	s.mu.Unlock()
	if lk != nil {
		lk.Unlock()
	}
}

// OnCommit registers fn to receive the write set of every committed
// transaction (spec §6 commit hook). The returned func unregisters it.
func (s *Store) OnCommit(fn CommitFunc) func() {
	s.mu.Lock()
	id := s.nextHk
	s.nextHk++
	s.hooks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.hooks, id)
		s.mu.Unlock()
	}
}

// CreateContinuousQuery installs a long-lived subscription matching filter
// (spec §4.4, §6). includeLocal is accepted for contract parity with the
// real cache's CQ.execute(nodesSelector, includeLocal); a single in-process
// Store has no remote nodes to exclude, so it is a no-op here.
func (s *Store) CreateContinuousQuery(filter CQFilter, cb CQCallback, includeLocal bool) (ContinuousQuery, error) {
	cq := &continuousQuery{store: s, filter: filter, cb: cb}
	s.cqMu.Lock()
	s.cqs[cq] = struct{}{}
	s.cqMu.Unlock()
	return cq, nil
}

type continuousQuery struct {
	store  *Store
	filter CQFilter
	cb     CQCallback
	closed atomic.Bool
}

func (cq *continuousQuery) Close() error {
	if cq.closed.Swap(true) {
		return nil
	}
	cq.store.cqMu.Lock()
	delete(cq.store.cqs, cq)
	cq.store.cqMu.Unlock()
	return nil
}

func (cq *continuousQuery) dispatch(entries []WriteEntry) {
	if cq.closed.Load() {
		return
	}
	for _, e := range entries {
		if !cq.filter(e.Key) {
			continue
		}
		if e.Op == OpDelete {
			cq.cb(e.Key, nil)
		} else {
			cq.cb(e.Key, e.Value)
		}
	}
}

func (s *Store) notify(entries []WriteEntry) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	hooks := make([]CommitFunc, 0, len(s.hooks))
	for _, h := range s.hooks {
		hooks = append(hooks, h)
	}
	s.mu.Unlock()
	for _, h := range hooks {
		h(entries)
	}

	s.cqMu.Lock()
	cqs := make([]*continuousQuery, 0, len(s.cqs))
	for cq := range s.cqs {
		cqs = append(cqs, cq)
	}
	s.cqMu.Unlock()
	for _, cq := range cqs {
		cq.dispatch(entries)
	}
}

// applyOne commits a single write to s.entries and builds the commit-hook
// entry for it, including the MarkObsolete handle (spec §4.3).
func (s *Store) applyOne(key any, remove bool, val any) WriteEntry {
	s.mu.Lock()
	prior, had := s.entries[key]
	_ = prior
	s.version++
	ver := s.version
	var op Op
	if remove {
		delete(s.entries, key)
		op = OpDelete
	} else {
		if had {
			op = OpUpdate
		} else {
			op = OpCreate
		}
		s.entries[key] = entry{value: val, version: ver}
	}
	s.mu.Unlock()
	we := WriteEntry{Op: op, Key: key, Version: ver, MarkObsolete: s.markObsoleteFunc(key, ver)}
	if !remove {
		we.Value = val
	}
	return we
}

func (s *Store) markObsoleteFunc(key any, version int64) func(int64) error {
	return func(expect int64) error {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			s.mu.Unlock()
			return nil
		}
		if e.version != expect {
			s.mu.Unlock()
			return errors.Errorf("entry for %v changed since commit (have version %d, want %d)", key, e.version, expect)
		}
		delete(s.entries, key)
		s.mu.Unlock()
		s.notify([]WriteEntry{{Op: OpDelete, Key: key}})
		return nil
	}
}

// --- transactions ---

type pendingWrite struct {
	remove bool
	value  any
}

type txn struct {
	store *Store

	mu         sync.Mutex
	lockedKeys []any
	locked     map[any]bool
	order      []any
	writes     map[any]pendingWrite

	rollbackOnly bool
	done         bool
}

func (s *Store) Begin(_ context.Context) (Txn, error) {
	return &txn{store: s, locked: make(map[any]bool), writes: make(map[any]pendingWrite)}, nil
}

func resolveTxn(tx Txn) (*txn, error) {
	if tx == nil {
		return nil, nil
	}
	t, ok := tx.(*txn)
	if !ok {
		return nil, errors.New("cache: transaction handle not issued by this store")
	}
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return nil, errors.New("cache: transaction already finished")
	}
	return t, nil
}

func (t *txn) touch(key any) {
	t.mu.Lock()
	already := t.locked[key]
	t.mu.Unlock()
	if already {
		return
	}
	t.store.keyLock(key).Lock()
	t.mu.Lock()
	t.locked[key] = true
	t.lockedKeys = append(t.lockedKeys, key)
	t.mu.Unlock()
}

// currentValue resolves key's logical value visible to this transaction:
// its own uncommitted write, if any, else the committed value.
func (t *txn) currentValue(key any) (any, bool) {
	t.mu.Lock()
	w, hasWrite := t.writes[key]
	t.mu.Unlock()
	if hasWrite {
		if w.remove {
			return nil, false
		}
		return w.value, true
	}
	t.store.mu.Lock()
	e, ok := t.store.entries[key]
	t.store.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (t *txn) record(key any, w pendingWrite) {
	t.mu.Lock()
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
	t.mu.Unlock()
}

func (t *txn) SetRollbackOnly() {
	t.mu.Lock()
	t.rollbackOnly = true
	t.mu.Unlock()
}

func (t *txn) Commit() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	rollback := t.rollbackOnly
	order := t.order
	writes := t.writes
	t.mu.Unlock()

	defer t.release()

	if rollback || len(order) == 0 {
		return nil
	}
	entries := make([]WriteEntry, 0, len(order))
	for _, key := range order {
		w := writes[key]
		entries = append(entries, t.store.applyOne(key, w.remove, w.value))
	}
	t.store.notify(entries)
	return nil
}

func (t *txn) release() {
	t.mu.Lock()
	keys := t.lockedKeys
	t.lockedKeys = nil
	t.mu.Unlock()
	for _, k := range keys {
		t.store.unlockKey(k)
	}
}

// --- untyped store operations, wrapped per-kind by Projection ---

func (s *Store) get(_ context.Context, tx Txn, key any) (any, bool, error) {
	t, err := resolveTxn(tx)
	if err != nil {
		return nil, false, err
	}
	if t != nil {
		t.touch(key)
		return t.currentValue(key)
	}
	lk := s.keyLock(key)
	lk.Lock()
	defer lk.Unlock()
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *Store) put(_ context.Context, tx Txn, key, val any) error {
	t, err := resolveTxn(tx)
	if err != nil {
		return err
	}
	if t != nil {
		t.touch(key)
		t.record(key, pendingWrite{value: val})
		return nil
	}
	lk := s.keyLock(key)
	lk.Lock()
	defer lk.Unlock()
	s.notify([]WriteEntry{s.applyOne(key, false, val)})
	return nil
}

func (s *Store) remove(_ context.Context, tx Txn, key any) (bool, error) {
	t, err := resolveTxn(tx)
	if err != nil {
		return false, err
	}
	if t != nil {
		t.touch(key)
		_, had := t.currentValue(key)
		t.record(key, pendingWrite{remove: true})
		return had, nil
	}
	lk := s.keyLock(key)
	lk.Lock()
	defer lk.Unlock()
	s.mu.Lock()
	_, had := s.entries[key]
	s.mu.Unlock()
	if !had {
		return false, nil
	}
	s.notify([]WriteEntry{s.applyOne(key, true, nil)})
	return true, nil
}

func (s *Store) putIfAbsent(_ context.Context, tx Txn, key, val any) (any, bool, error) {
	t, err := resolveTxn(tx)
	if err != nil {
		return nil, false, err
	}
	if t != nil {
		t.touch(key)
		if cur, ok := t.currentValue(key); ok {
			return cur, false, nil
		}
		t.record(key, pendingWrite{value: val})
		return val, true, nil
	}
	lk := s.keyLock(key)
	lk.Lock()
	defer lk.Unlock()
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if ok {
		return e.value, false, nil
	}
	s.notify([]WriteEntry{s.applyOne(key, false, val)})
	return val, true, nil
}

func (s *Store) transformAsync(_ context.Context, tx Txn, key any, fn func(old any, present bool) (any, bool, error)) (any, error) {
	t, err := resolveTxn(tx)
	if err != nil {
		return nil, err
	}
	if t != nil {
		t.touch(key)
		old, had := t.currentValue(key)
		newVal, remove, ferr := fn(old, had)
		if ferr != nil {
			return nil, ferr
		}
		t.record(key, pendingWrite{remove: remove, value: newVal})
		return newVal, nil
	}
	lk := s.keyLock(key)
	lk.Lock()
	defer lk.Unlock()
	s.mu.Lock()
	e, had := s.entries[key]
	s.mu.Unlock()
	var old any
	if had {
		old = e.value
	}
	newVal, remove, ferr := fn(old, had)
	if ferr != nil {
		return nil, ferr
	}
	s.notify([]WriteEntry{s.applyOne(key, remove, newVal)})
	return newVal, nil
}
