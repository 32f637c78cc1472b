// Package notify implements cross-node propagation of primitive state
// changes without polling (spec §1 concern 2, §4.3, §4.4): the Latch
// Notifier subscribes to the backing cache's commit hook, and the Queue
// Header Watcher owns a single continuous query over queue headers.
// Grounded in the teacher's ais/transaction.go commit-fired dispatch
// (iterate a registry under a lock, invoke each entry's callback exactly
// once) and cluster/map.go's listener fan-out.
package notify

import (
	"github.com/golang/glog"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/values"
)

// LatchProxy is the subset of ds.Latch the notifier depends on, declared
// locally to avoid a notify -> ds import cycle (ds already depends on
// cache and values, and the manager wires both together).
type LatchProxy interface {
	OnUpdate(newCount int32)
	OnRemoved()
}

// Registry looks up and removes locally registered latch proxies by key,
// and finalizes auto-delete. Implemented by the Manager.
type Registry interface {
	LookupLatch(key values.InternalKey) (LatchProxy, bool)
	DropLatch(key values.InternalKey)
	// TryEnter non-blockingly acquires the manager's busy-lock for read,
	// reporting false (and a nil release) if a shutdown is in progress
	// (spec §5, §8 "shutdown safety").
	TryEnter() (func(), bool)
}

// LatchNotifier subscribes to the backing Store's commit hook and dispatches
// onUpdate/onRemoved to local latch proxies (spec §4.3). Continuous-query
// and commit-hook callback failures are logged and swallowed (spec §7) —
// they must never poison the feed.
type LatchNotifier struct {
	registry Registry
}

// Attach installs the notifier's commit hook on store and returns an
// unsubscribe func for shutdown.
func Attach(store *cache.Store, registry Registry) func() {
	n := &LatchNotifier{registry: registry}
	return store.OnCommit(n.onCommit)
}

func (n *LatchNotifier) onCommit(entries []cache.WriteEntry) {
	release, ok := n.registry.TryEnter()
	if !ok {
		return
	}
	defer release()

	for _, e := range entries {
		key, ok := e.Key.(values.InternalKey)
		if !ok {
			continue
		}

		if e.Op == cache.OpDelete {
			if proxy, found := n.registry.LookupLatch(key); found {
				n.registry.DropLatch(key)
				proxy.OnRemoved()
			}
			continue
		}

		lv, ok := e.Value.(values.LatchValue)
		if !ok {
			// Not a latch-kind entry. If a latch proxy is registered under
			// this name, that is a type mismatch (a name reused across
			// kinds, which cannot happen through the Manager but is
			// defensively tolerated here): log, don't raise (spec §4.3).
			if _, found := n.registry.LookupLatch(key); found {
				glog.Warningf("griddata: latch %q: committed value has unexpected type %T", key.Name, e.Value)
			}
			continue
		}

		proxy, found := n.registry.LookupLatch(key)
		if !found {
			continue
		}
		proxy.OnUpdate(lv.Count)

		if lv.Count == 0 && lv.AutoDelete {
			if e.MarkObsolete == nil {
				glog.Warningf("griddata: latch %q reached zero but commit entry carries no obsolete handle", key.Name)
				continue
			}
			if err := e.MarkObsolete(e.Version); err != nil {
				glog.Warningf("griddata: latch %q auto-delete failed: %v", key.Name, err)
				continue
			}
			n.registry.DropLatch(key)
			proxy.OnRemoved()
		}
	}
}
