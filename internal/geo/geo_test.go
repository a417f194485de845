package geo

import (
	"errors"
	"math"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"
)

func TestValidateLngLat_Valid(t *testing.T) {
	for _, c := range [][2]float64{{0, 0}, {180, 90}, {-180, -90}, {108.9, 34.2}} {
		if err := ValidateLngLat(c[0], c[1]); err != nil {
			t.Errorf("expected %v to be valid, got %v", c, err)
		}
	}
}

func TestValidateLngLat_Invalid(t *testing.T) {
	cases := [][2]float64{
		{181, 0},
		{0, -91},
		{math.NaN(), 0},
		{0, math.Inf(1)},
	}
	for _, c := range cases {
		if err := ValidateLngLat(c[0], c[1]); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("expected ErrInvalidCoordinates for %v, got %v", c, err)
		}
	}
}

func TestLngLatFromString_Valid(t *testing.T) {
	lng, lat, err := LngLatFromString("108.9, 34.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lng != 108.9 {
		t.Errorf("expected lng=108.9, got %f", lng)
	}
	if lat != 34.2 {
		t.Errorf("expected lat=34.2, got %f", lat)
	}
}

func TestLngLatFromString_Invalid(t *testing.T) {
	for _, s := range []string{"", "100.5", "abc,1", "1,xyz", "200,0"} {
		if _, _, err := LngLatFromString(s); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("expected ErrInvalidCoordinates for %q, got %v", s, err)
		}
	}
}

func TestBounds_Empty(t *testing.T) {
	env, err := Bounds(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.IsEmpty() {
		t.Error("expected empty envelope for no input")
	}
	if _, _, ok := Center(env); ok {
		t.Error("expected no center for empty envelope")
	}
}

func TestBounds_CoversAllPoints(t *testing.T) {
	env, err := Bounds([]geom.XY{{X: -10, Y: 5}, {X: 20, Y: -5}, {X: 0, Y: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	minXY, maxXY, ok := env.MinMaxXYs()
	if !ok {
		t.Fatal("expected non-empty envelope")
	}
	if minXY.X != -10 || minXY.Y != -5 {
		t.Errorf("unexpected min %v", minXY)
	}
	if maxXY.X != 20 || maxXY.Y != 5 {
		t.Errorf("unexpected max %v", maxXY)
	}
	lng, lat, ok := Center(env)
	if !ok || lng != 5 || lat != 0 {
		t.Errorf("expected center (5, 0), got (%f, %f, %v)", lng, lat, ok)
	}
}

func TestCoords3857From4326_Origin(t *testing.T) {
	point, err := Coords3857From4326(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	// At (0, 0) in 4326, the 3857 coordinates should also be (0, 0)
	if math.Abs(coords.X) > 1e-6 || math.Abs(coords.Y) > 1e-6 {
		t.Errorf("expected origin, got (%f, %f)", coords.X, coords.Y)
	}
}

func TestCoords3857From4326_Hemispheres(t *testing.T) {
	x, y := To3857(-45, -30)
	if x >= 0 {
		t.Errorf("expected negative X for western hemisphere, got %f", x)
	}
	if y >= 0 {
		t.Errorf("expected negative Y for southern hemisphere, got %f", y)
	}

	x, y = To3857(10, 10)
	if x <= 0 || y <= 0 {
		t.Errorf("expected positive values, got (%f, %f)", x, y)
	}
}

func TestTo3857_ClipsPoles(t *testing.T) {
	_, yPole := To3857(0, 90)
	_, yLimit := To3857(0, mercatorMaxLat)
	if math.IsInf(yPole, 0) || math.IsNaN(yPole) {
		t.Fatalf("expected finite Y at the pole, got %f", yPole)
	}
	if yPole != yLimit {
		t.Errorf("expected pole to clip to %f, got %f", yLimit, yPole)
	}
}

func TestParsePoints(t *testing.T) {
	points, err := ParsePoints(`[[0,0,10],[108.9,34.2],[1,2,3.5]]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Value != 10 {
		t.Errorf("expected value 10, got %f", points[0].Value)
	}
	if points[1].Value != 0 {
		t.Errorf("expected missing value to default to 0, got %f", points[1].Value)
	}
	if points[2].Lng != 1 || points[2].Lat != 2 || points[2].Value != 3.5 {
		t.Errorf("unexpected point %+v", points[2])
	}
}

func TestParsePoints_Errors(t *testing.T) {
	for _, in := range []string{`not json`, `[[1]]`, `[[400,0,1]]`} {
		if _, err := ParsePoints(in); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestParsePoints_Empty(t *testing.T) {
	points, err := ParsePoints(`[]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("expected no points, got %d", len(points))
	}
}

func TestBounds_NonFiniteRejected(t *testing.T) {
	_, err := Bounds([]geom.XY{{X: 1, Y: 1}, {X: math.NaN(), Y: 0}})
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}
