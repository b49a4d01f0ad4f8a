// Package ivl implements a half-open-interval algebra: trim, intersect,
// subtract, and in-place update over [start, end) UTC-ms ranges. No pack
// library models this; it is a small, pure, invariant-heavy leaf
// appropriately left on the standard library (see DESIGN.md).
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package ivl

// Interval is a half-open range [Start, End) in UTC milliseconds.
type Interval struct {
	Start int64
	End   int64
}

// Empty reports whether the interval contains no instants.
func (i Interval) Empty() bool { return i.Start >= i.End }

// Bounds clips an interval to an optional [StartAt, EndAt) window.
type Bounds struct {
	StartAt *int64
	EndAt   *int64
}

// Trim clips i to bounds, returning (clipped, ok). ok is false when the
// clip is empty.
func Trim(i Interval, b Bounds) (Interval, bool) {
	start, end := i.Start, i.End
	if b.StartAt != nil && *b.StartAt > start {
		start = *b.StartAt
	}
	if b.EndAt != nil && *b.EndAt < end {
		end = *b.EndAt
	}
	out := Interval{Start: start, End: end}
	return out, !out.Empty()
}

// Intersect returns (a ∩ b, ok); ok is false when the intersection is empty.
func Intersect(a, b Interval) (Interval, bool) {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	out := Interval{Start: start, End: end}
	return out, !out.Empty()
}

// Subtract returns a minus b as 0, 1, or 2 ordered, non-empty intervals.
func Subtract(a, b Interval) []Interval {
	inter, ok := Intersect(a, b)
	if !ok {
		return []Interval{a}
	}
	var out []Interval
	if left := (Interval{a.Start, inter.Start}); !left.Empty() {
		out = append(out, left)
	}
	if right := (Interval{inter.End, a.End}); !right.Empty() {
		out = append(out, right)
	}
	return out
}

// SubtractAll subtracts every interval in bs from a, in order, folding the
// growing remainder list through each subtraction. Used by timeline
// recomputation (package model) to carve a reservation (or several) out of
// a listing window.
func SubtractAll(a Interval, bs []Interval) []Interval {
	rem := []Interval{a}
	for _, b := range bs {
		var next []Interval
		for _, r := range rem {
			next = append(next, Subtract(r, b)...)
		}
		rem = next
	}
	return rem
}

// Updatable is satisfied by any entity whose visibility window can be
// mutated in place — TimelineEntry being the only implementer in this
// repo. UpdateInterval mutates start/end directly rather than replacing
// the entity, preserving its identity for callers holding a reference
// (e.g. mid-transaction accumulation buffers).
type Updatable interface {
	SetInterval(start, end int64)
}

// UpdateInterval mutates e's start/end in place to i.
func UpdateInterval(e Updatable, i Interval) {
	e.SetInterval(i.Start, i.End)
}
