package tracker

import "math"

// ResolveActive returns the last statement whose timecode is at or before
// position, or nil if position precedes the first statement. statements must
// be sorted by timecode.
func ResolveActive(position float64, statements []Statement) *Statement {
	var active *Statement
	for i := range statements {
		if statements[i].Timecode > position {
			break
		}
		active = &statements[i]
	}
	return active
}

// NextAfter returns the first statement whose timecode is after position.
func NextAfter(position float64, statements []Statement) *Statement {
	for i := range statements {
		if statements[i].Timecode > position {
			return &statements[i]
		}
	}
	return nil
}

// Countdown returns whole seconds until the next statement, or until the end
// of the media when there is none. An unknown duration counts as zero.
func Countdown(position float64, next *Statement, duration float64) int {
	target := duration
	if next != nil {
		target = next.Timecode
	}
	remaining := math.Ceil(target - position)
	if remaining < 0 || math.IsNaN(remaining) {
		return 0
	}
	return int(remaining)
}

// Progress returns how far position is through the active statement's span,
// clamped to [0,1]. Before the first statement it is the fraction of time
// elapsed toward that statement.
func Progress(position float64, active, next *Statement, duration float64) float64 {
	start := 0.0
	if active != nil {
		start = active.Timecode
	}
	end := duration
	if next != nil {
		end = next.Timecode
	}
	span := end - start
	if span <= 0 {
		return 0
	}
	return clamp01((position - start) / span)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
