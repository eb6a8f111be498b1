package geo

import (
	"math"
	"testing"
)

func TestHaversineKM(t *testing.T) {
	// Two points roughly 0.01 degrees of latitude apart, about 1.11 km.
	d := HaversineKM(-9.6500, -35.7200, -9.6400, -35.7200)
	if math.Abs(d-1.11) > 0.05 {
		t.Fatalf("expected ~1.11 km, got %f", d)
	}
	if HaversineKM(-9.65, -35.72, -9.65, -35.72) != 0 {
		t.Fatalf("expected zero distance for identical points")
	}
}

func TestInterpolate(t *testing.T) {
	lat, lon := Interpolate(0, 0, 10, 20, 0.5)
	if lat != 5 || lon != 10 {
		t.Fatalf("expected midpoint (5, 10), got (%f, %f)", lat, lon)
	}
	lat, lon = Interpolate(0, 0, 10, 20, 1.5)
	if lat != 10 || lon != 20 {
		t.Fatalf("expected clamp to end point, got (%f, %f)", lat, lon)
	}
	lat, lon = Interpolate(0, 0, 10, 20, -1)
	if lat != 0 || lon != 0 {
		t.Fatalf("expected clamp to start point, got (%f, %f)", lat, lon)
	}
}
