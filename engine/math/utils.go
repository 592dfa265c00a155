package math

import (
	"math"

	"golang.org/x/exp/constraints"
)

const TwoPi = 2 * math.Pi

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// WrapRadians maps an angle into [0, 2π).
func WrapRadians[T constraints.Float](angle T) T {
	wrapped := T(math.Mod(float64(angle), TwoPi))
	if wrapped < 0 {
		wrapped += TwoPi
	}
	return wrapped
}
