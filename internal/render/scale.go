package render

import "math"

// linear maps [domainMin, domainMax] onto [rangeMin, rangeMax], clamping
// inputs outside the domain.
type linear struct {
	domainMin, domainMax float64
	rangeMin, rangeMax   float64
}

func (s linear) at(v float64) float64 {
	span := s.domainMax - s.domainMin
	if span <= 0 {
		return s.rangeMin
	}
	t := (v - s.domainMin) / span
	t = math.Max(0, math.Min(1, t))
	return s.rangeMin + t*(s.rangeMax-s.rangeMin)
}

// quantize picks the color bucket for a normalized value in [0, 1].
// Colors are evenly spaced unless positions are given, in which case the
// last stop whose position is <= t wins.
func quantize(colors []string, positions []float64, t float64) string {
	if len(colors) == 0 {
		return ""
	}
	t = math.Max(0, math.Min(1, t))
	if len(positions) == len(colors) {
		idx := 0
		for i, p := range positions {
			if t >= p {
				idx = i
			}
		}
		return colors[idx]
	}
	idx := int(t * float64(len(colors)))
	if idx >= len(colors) {
		idx = len(colors) - 1
	}
	return colors[idx]
}
