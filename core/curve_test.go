package core

import (
	"math"
	"testing"
)

func TestCurveIntensity_Endpoints(t *testing.T) {
	if got := CurveIntensity(0, 24); got != 0 {
		t.Fatalf("CurveIntensity(0, 24) = %v, want 0", got)
	}
	if got := CurveIntensity(24, 24); got != 0 {
		t.Fatalf("CurveIntensity(24, 24) = %v, want 0", got)
	}
}

func TestCurveIntensity_PeaksAtMidpoint(t *testing.T) {
	if got := CurveIntensity(12, 24); got != 1.0 {
		t.Fatalf("CurveIntensity(12, 24) = %v, want exactly 1.0", got)
	}

	// Every other sample must stay strictly below the midpoint peak.
	for h := 1; h < 24; h++ {
		if h == 12 {
			continue
		}
		if got := CurveIntensity(h, 24); got >= 1.0 {
			t.Fatalf("CurveIntensity(%d, 24) = %v, want < 1.0", h, got)
		}
	}
}

func TestCurveIntensity_SymmetricAboutMidpoint(t *testing.T) {
	const d = 36
	for h := 0; h <= d; h++ {
		a := CurveIntensity(h, d)
		b := CurveIntensity(d-h, d)
		if math.Abs(a-b) > 1e-12 {
			t.Fatalf("CurveIntensity(%d, %d) = %v but CurveIntensity(%d, %d) = %v", h, d, a, d-h, d, b)
		}
	}
}

func TestCurveIntensity_ClampsHour(t *testing.T) {
	if got := CurveIntensity(-5, 24); got != 0 {
		t.Fatalf("CurveIntensity(-5, 24) = %v, want 0", got)
	}
	if got := CurveIntensity(99, 24); got != 0 {
		t.Fatalf("CurveIntensity(99, 24) = %v, want 0", got)
	}
}

func TestCurveIntensity_ZeroDurationIsNoOp(t *testing.T) {
	for _, h := range []int{0, 1, 10} {
		if got := CurveIntensity(h, 0); got != 0 {
			t.Fatalf("CurveIntensity(%d, 0) = %v, want 0", h, got)
		}
	}
	if got := CurveIntensity(3, -7); got != 0 {
		t.Fatalf("CurveIntensity(3, -7) = %v, want 0", got)
	}
}
