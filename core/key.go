package core

import "fmt"

// DefaultGroup is the sentinel group name substituted whenever a group is
// left blank, for both triggers and jobs.
const DefaultGroup = "DEFAULT"

// Key identifies a trigger or a job by its (group, name) pair. Job stores
// address triggers and jobs uniquely by Key; equal keys must hash equal.
type Key struct {
	Name  string
	Group string
}

// NewKey builds a Key, substituting DefaultGroup for a blank group.
func NewKey(name, group string) Key {
	if group == "" {
		group = DefaultGroup
	}
	return Key{Name: name, Group: group}
}

// FullName renders the key as "group.name", the form used for hashing and
// log output.
func (k Key) FullName() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

func (k Key) String() string {
	return k.FullName()
}

// Equals reports whether two keys address the same trigger/job.
func (k Key) Equals(other Key) bool {
	return k.Name == other.Name && k.Group == other.Group
}

// Hash returns a value such that Equals(a, b) implies Hash(a) == Hash(b).
func (k Key) Hash() string {
	return k.FullName()
}
