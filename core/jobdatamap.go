package core

// JobDataMap carries the keyed payload a trigger hands to the job it
// fires. It is lazily constructed — a nil map is a valid, empty
// JobDataMap — and should not be mutated by the job during execution:
// mutations made inside a firing are not re-persisted.
type JobDataMap map[string]interface{}

// Get returns the raw value for key and whether it was present.
func (m JobDataMap) Get(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// GetString returns the string value for key, or "" if absent or not a string.
func (m JobDataMap) GetString(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Put sets key to value, allocating the underlying map if needed. Put
// returns the (possibly newly allocated) map so callers can chain
// assignment: m = m.Put("k", v).
func (m JobDataMap) Put(key string, value interface{}) JobDataMap {
	if m == nil {
		m = JobDataMap{}
	}
	m[key] = value
	return m
}

// Clone returns an independent copy so a listener or job instance cannot
// mutate the trigger's own map.
func (m JobDataMap) Clone() JobDataMap {
	if m == nil {
		return nil
	}
	clone := make(JobDataMap, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Merge layers override on top of a clone of m, giving per-fire overrides
// (e.g. the trigger's map over the job detail's map) without touching
// either source map.
func (m JobDataMap) Merge(override JobDataMap) JobDataMap {
	merged := m.Clone()
	for k, v := range override {
		merged = merged.Put(k, v)
	}
	return merged
}
