package notify

import (
	"context"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hodiqual/griddata/cache"
	"github.com/hodiqual/griddata/cmn"
	"github.com/hodiqual/griddata/values"
)

// QueueProxy is the subset of ds.Queue the watcher depends on.
type QueueProxy interface {
	ID() uuid.UUID
	Size(ctx context.Context) (int64, error)
	OnHeaderChanged(h values.QueueHeader)
	OnRemoved()
}

// QueueRegistry looks up and removes locally registered queue proxies by
// header key. Implemented by the Manager.
type QueueRegistry interface {
	LookupQueue(key values.QueueHeaderKey) (QueueProxy, bool)
	DropQueue(key values.QueueHeaderKey)
	// TryEnter non-blockingly acquires the manager's busy-lock for read,
	// reporting false (and a nil release) if a shutdown is in progress
	// (spec §5, §8 "shutdown safety").
	TryEnter() (func(), bool)
}

// QueueWatcher owns a single continuous query over queue headers and fans
// delivered changes out to every locally registered queue proxy (spec
// §4.4). A delete delivery, or a header flagged Removed, drops the proxy
// directly; no Size() probe is made for those. A queue recreated under the
// same name has a fresh QueueHeader.ID; when a delivered header's ID
// differs from the proxy's, the watcher does not trust that inference
// outright but confirms it with the proxy's own Size() removal probe —
// continuous-query delivery is at-least-once, never guaranteed-once (spec
// §7).
type QueueWatcher struct {
	registry QueueRegistry
	cq       cache.ContinuousQuery
}

// AttachQueueWatcher installs a continuous query on store filtered to queue
// header keys and returns a watcher whose Close stops it. Grounded on the
// teacher's cluster/map.go listener registration at bmd-change time,
// adapted to a push feed.
func AttachQueueWatcher(store *cache.Store, registry QueueRegistry) (*QueueWatcher, error) {
	w := &QueueWatcher{registry: registry}
	filter := func(key any) bool {
		_, ok := key.(values.QueueHeaderKey)
		return ok
	}
	cq, err := store.CreateContinuousQuery(filter, w.onEvent, true)
	if err != nil {
		return nil, cmn.CacheFailure("queue-header-watcher", err)
	}
	w.cq = cq
	return w, nil
}

func (w *QueueWatcher) onEvent(rawKey any, rawValue any) {
	release, ok := w.registry.TryEnter()
	if !ok {
		return
	}
	defer release()

	key, ok := rawKey.(values.QueueHeaderKey)
	if !ok {
		return
	}
	proxy, found := w.registry.LookupQueue(key)
	if !found {
		return
	}

	if rawValue == nil {
		w.finalizeRemoval(proxy, key)
		return
	}

	newHeader, ok := rawValue.(values.QueueHeader)
	if !ok {
		glog.Warningf("griddata: queue header watcher saw unexpected value type %T for %q", rawValue, key.Name)
		return
	}

	if newHeader.Removed {
		w.finalizeRemoval(proxy, key)
		return
	}

	if proxy.ID() != newHeader.ID {
		// A different queue now lives under this name: the one the proxy
		// was bound to is gone even though no delete event named it
		// directly (e.g. a dropped intermediate event). Confirm via the
		// probe rather than trusting this inference outright. The store
		// still holds this key's lock while it delivers the event, and the
		// probe reads the same key, so the probe runs on its own goroutine.
		go w.probeAndMaybeRemove(proxy, key)
		return
	}

	proxy.OnHeaderChanged(newHeader)
}

// probeAndMaybeRemove calls the proxy's own Size(), which reads the backing
// header directly rather than relying on the continuous-query feed (spec
// §4.4's removal probe). This resolves the ambiguity a feed gap or an
// out-of-order delivery can create. It takes the busy-lock itself, since it
// runs after the delivering callback has returned.
func (w *QueueWatcher) probeAndMaybeRemove(proxy QueueProxy, key values.QueueHeaderKey) {
	release, ok := w.registry.TryEnter()
	if !ok {
		return
	}
	defer release()
	if _, err := proxy.Size(context.Background()); err != nil {
		if cmn.KindOf(err) == cmn.KindQueueRemoved {
			w.finalizeRemoval(proxy, key)
			return
		}
		glog.Warningf("griddata: queue header probe for %q failed: %v", key.Name, err)
	}
}

func (w *QueueWatcher) finalizeRemoval(proxy QueueProxy, key values.QueueHeaderKey) {
	w.registry.DropQueue(key)
	proxy.OnRemoved()
}

// Close stops the underlying continuous query (spec §5 shutdown). Errors
// are logged, not propagated: shutdown must proceed regardless.
func (w *QueueWatcher) Close() {
	if w.cq == nil {
		return
	}
	if err := w.cq.Close(); err != nil {
		glog.Warningf("griddata: queue header watcher close: %v", err)
	}
}
