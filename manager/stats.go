package manager

import (
	"github.com/golang/glog"

	"github.com/hodiqual/griddata/values"
)

// PrimitiveStat is one named primitive's diagnostic snapshot (spec §12,
// supplementing the distilled spec with the original's memory/usage
// diagnostic surface).
type PrimitiveStat struct {
	Name    string      `json:"name"`
	Kind    values.Kind `json:"kind"`
	Removed bool        `json:"removed"`
}

// ManagerStats is a point-in-time snapshot of every locally registered
// proxy, scalar and queue alike.
type ManagerStats struct {
	ScalarCount int             `json:"scalar_count"`
	QueueCount  int             `json:"queue_count"`
	Primitives  []PrimitiveStat `json:"primitives"`
}

// Stats returns a snapshot of every locally registered primitive (spec
// §12). Grounded in the teacher's printMemoryStats-style periodic
// diagnostic dump, adapted here to the manager's own registries instead of
// host memory counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := ManagerStats{
		ScalarCount: len(m.proxies),
		QueueCount:  len(m.queues),
		Primitives:  make([]PrimitiveStat, 0, len(m.proxies)+len(m.queues)),
	}
	for name, p := range m.proxies {
		st.Primitives = append(st.Primitives, PrimitiveStat{Name: name, Kind: p.Kind(), Removed: p.Removed()})
	}
	for name, q := range m.queues {
		st.Primitives = append(st.Primitives, PrimitiveStat{Name: name, Kind: values.KindQueue, Removed: q.Removed()})
	}
	return st
}

// LogStats renders the current snapshot through the backing cache's own
// record codec and writes it at verbosity level 2 (spec §12): the same
// wire encoding a cache entry would cross the network with, used here
// purely for a human-readable diagnostic line rather than storage.
func (m *Manager) LogStats() {
	snap := m.Stats()
	blob, err := values.Encode(snap)
	if err != nil {
		glog.Warningf("griddata: stats encode failed: %v", err)
		return
	}
	glog.V(2).Infof("griddata: stats %s", blob)
}
