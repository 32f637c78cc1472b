package values

// Encode serializes a cache-resident record the same way the backing cache
// would before shipping it across the wire (spec §6). Used by
// Manager.LogStats to render the registry snapshot.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode is Encode's inverse, used by tests to round-trip a value through
// the same codec the backing cache would apply (spec §8 "round-trip"
// invariant).
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
