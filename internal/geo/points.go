package geo

import (
	"encoding/json"
	"fmt"

	"github.com/carbonlab/mapviz/pkg/core"
)

// ParsePoints parses a JSON array of observations into data points.
// Input format: "[[lng1,lat1,value1],[lng2,lat2,value2],...]". A missing
// value defaults to 0.
func ParsePoints(input string) ([]core.DataPoint, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse points JSON: %w", err)
	}

	points := make([]core.DataPoint, 0, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		if err := ValidateLngLat(coord[0], coord[1]); err != nil {
			return nil, fmt.Errorf("coordinate %d: %w", i, err)
		}
		p := core.DataPoint{Lng: coord[0], Lat: coord[1]}
		if len(coord) > 2 {
			p.Value = coord[2]
		}
		points = append(points, p)
	}

	return points, nil
}
