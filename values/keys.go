// Package values defines the cache-resident records of the data-structures
// manager (spec §3): the key types addressing them and the value types
// stored under those keys. Every type here crosses the wire through the
// backing cache's own serialization discipline, so field orderings are
// fixed and fields are exported with stable json tags (spec §6).
package values

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// InternalKey addresses a scalar primitive (counter, reference, stamped
// reference, sequence, latch). Equality and hash are based solely on Name,
// per spec §3 — two InternalKeys with the same Name are the same cache
// entry regardless of any other field, so InternalKey carries no other
// field.
type InternalKey struct {
	Name string `json:"name"`
}

func (k InternalKey) String() string { return "ik:" + k.Name }

// QueueHeaderKey addresses a queue header. It is a distinct type from
// InternalKey so that a queue and a scalar primitive registered under the
// same Name never collide in the backing cache (spec §3).
type QueueHeaderKey struct {
	Name string `json:"name"`
}

func (k QueueHeaderKey) String() string { return "qhk:" + k.Name }
