// Package archive decides when a jar is archived and runs the archive
// sequence.
package archive

import (
	"time"
)

// DefaultCapacity is the jar size that must be exceeded before the capacity
// trigger fires.
const DefaultCapacity = 21

// Trigger names the condition that started an archive.
type Trigger string

const (
	TriggerNone     Trigger = ""
	TriggerCapacity Trigger = "capacity"
	TriggerCalendar Trigger = "calendar"
	TriggerManual   Trigger = "manual"
)

// Policy holds the archive trigger rules. All calendar arithmetic happens
// in Location.
type Policy struct {
	Capacity int
	Weekday  time.Weekday
	Location *time.Location
}

// DefaultPolicy archives past 21 stickers or on Sundays, in UTC.
func DefaultPolicy() Policy {
	return Policy{Capacity: DefaultCapacity, Weekday: time.Sunday, Location: time.UTC}
}

// Zone returns the policy location, UTC when unset.
func (p Policy) Zone() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// CapacityDue reports whether a jar of size n is over capacity.
func (p Policy) CapacityDue(n int) bool {
	return n > p.EffectiveCapacity()
}

// EffectiveCapacity returns Capacity, or DefaultCapacity when unset.
func (p Policy) EffectiveCapacity() int {
	if p.Capacity <= 0 {
		return DefaultCapacity
	}
	return p.Capacity
}

// CalendarDue reports whether the weekly archive is due at now. It fires on
// the archive weekday when no archive has completed since the start of the
// previous occurrence of that weekday, so at most once per week and never
// twice on the same day.
func (p Policy) CalendarDue(now, last time.Time, hasLast bool) bool {
	local := now.In(p.Zone())
	if local.Weekday() != p.Weekday {
		return false
	}
	if !hasLast {
		return true
	}
	today := StartOfDay(local)
	previous := today.AddDate(0, 0, -7)
	return last.Before(previous)
}

// Due evaluates both triggers. Capacity wins when both hold.
func (p Policy) Due(size int, now, last time.Time, hasLast bool) Trigger {
	if p.CapacityDue(size) {
		return TriggerCapacity
	}
	if size > 0 && p.CalendarDue(now, last, hasLast) {
		return TriggerCalendar
	}
	return TriggerNone
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
