package sim

import (
	"math"
	"strconv"
	"time"
)

// Time is a simulation timestamp in ticks. One tick is one microsecond.
type Time int64

const (
	// NegInf is the time of an object that has not been updated yet, and the
	// start time of a simulation with no configured start.
	NegInf Time = math.MinInt64
	// PosInf is the valid-until time of an object that never needs updating.
	PosInf Time = math.MaxInt64

	// Tick is the wall-clock duration of one tick.
	Tick = time.Microsecond
)

// FromDuration converts a duration to ticks.
func FromDuration(d time.Duration) Time {
	return Time(d / Tick)
}

// Duration converts t to a duration. Sentinels saturate.
func (t Time) Duration() time.Duration {
	switch t {
	case NegInf:
		return time.Duration(math.MinInt64)
	case PosInf:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(t) * Tick
}

// IsFinite reports whether t is neither sentinel.
func (t Time) IsFinite() bool {
	return t != NegInf && t != PosInf
}

// Add returns t+d, saturating at the sentinels.
func (t Time) Add(d Time) Time {
	if !t.IsFinite() {
		return t
	}
	if d > 0 && t > PosInf-d {
		return PosInf
	}
	if d < 0 && t < NegInf-d {
		return NegInf
	}
	return t + d
}

func (t Time) String() string {
	switch t {
	case NegInf:
		return "-inf"
	case PosInf:
		return "+inf"
	}
	return strconv.FormatInt(int64(t), 10)
}
