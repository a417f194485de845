package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Coordinates are WGS84 longitude/latitude pairs (EPSG:4326) everywhere in
// the controller. Only the snapshot engine projects them to Web Mercator
// (EPSG:3857) to lay them out on a flat chart.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// mercatorMaxLat is the latitude where EPSG:3857 is clipped.
const mercatorMaxLat = 85.05112878

// ValidateLngLat checks that the pair is finite and inside WGS84 bounds.
func ValidateLngLat(lng, lat float64) error {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return ErrInvalidCoordinates
	}
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return ErrInvalidCoordinates
	}
	return nil
}

// LngLatFromString parses a string in the format "long,lat" into a pair.
func LngLatFromString(coords string) (lng, lat float64, err error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return 0, 0, ErrInvalidCoordinates
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	if err := ValidateLngLat(lng, lat); err != nil {
		return 0, 0, err
	}
	return lng, lat, nil
}

// Bounds returns the envelope covering all given pairs. An empty input
// yields an empty envelope.
func Bounds(xys []geom.XY) (geom.Envelope, error) {
	var env geom.Envelope
	for _, xy := range xys {
		var err error
		if env, err = env.ExtendToIncludeXY(xy); err != nil {
			return geom.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
		}
	}
	return env, nil
}

// Center returns the midpoint of a non-empty envelope.
func Center(env geom.Envelope) (lng, lat float64, ok bool) {
	minXY, maxXY, ok := env.MinMaxXYs()
	if !ok {
		return 0, 0, false
	}
	return (minXY.X + maxXY.X) / 2, (minXY.Y + maxXY.Y) / 2, true
}

// To3857 projects a WGS84 pair to Web Mercator metres. Latitudes beyond the
// Mercator limit are clipped.
func To3857(lng, lat float64) (x, y float64) {
	lat = math.Max(-mercatorMaxLat, math.Min(mercatorMaxLat, lat))
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(lng, lat, 0)
	return x, y
}

// Coords3857From4326 creates a Web Mercator point from a longitude and latitude
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	if err := ValidateLngLat(longitude, latitude); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	x, y := To3857(longitude, latitude)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
}
