package math

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	for _, tc := range []struct{ v, want float32 }{
		{-2, -1.5},
		{0.3, 0.3},
		{9, 1.5},
	} {
		if have := Clamp(tc.v, -1.5, 1.5); have != tc.want {
			t.Fatalf("Clamp(%v):\nhave %v\nwant %v", tc.v, have, tc.want)
		}
	}
	if have := Clamp[uint32](4000, 1, 2048); have != 2048 {
		t.Fatalf("Clamp uint32:\nhave %d\nwant 2048", have)
	}
}

func TestWrapRadians(t *testing.T) {
	for _, tc := range []struct{ v, want float64 }{
		{0, 0},
		{-0.5, TwoPi - 0.5},
		{TwoPi + 1, 1},
	} {
		if have := WrapRadians(tc.v); math.Abs(have-tc.want) > 1e-9 {
			t.Fatalf("WrapRadians(%v):\nhave %v\nwant %v", tc.v, have, tc.want)
		}
	}
}
