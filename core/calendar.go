package core

import "time"

// Calendar is an external predicate on instants used to mask out otherwise
// eligible fire times. Concrete triggers consult a named Calendar, resolved
// through the job store, when computing fire times; this package never
// resolves calendar names itself.
type Calendar interface {
	// IsTimeIncluded reports whether t is NOT excluded by this calendar.
	IsTimeIncluded(t time.Time) bool

	// NextIncludedTime returns a time greater than or equal to t that this
	// calendar does not exclude. It is not necessarily the earliest such
	// time: an implementation may keep t's time of day and move only the
	// date.
	NextIncludedTime(t time.Time) time.Time

	// Description is an opaque human-readable label for the calendar.
	Description() string
}
