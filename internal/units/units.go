package units

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when a numeric input cannot be converted (NaN, ±Inf).
var ErrInvalidInput = errors.New("invalid input")

// Direction is one of the 16 compass points.
type Direction string

// compassPoints is ordered clockwise from north; each covers 22.5 degrees.
var compassPoints = [16]Direction{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
}

const sectorDegrees = 360.0 / 16

// WindUnit is the native unit a provider reports wind speed in.
type WindUnit string

const (
	WindUnitKph WindUnit = "kph"
	WindUnitMps WindUnit = "mps"
	WindUnitMph WindUnit = "mph"
)

// CToF converts Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*9/5 + 32
}

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32) * 5 / 9
}

// MpsToKph converts metres per second to kilometres per hour.
func MpsToKph(v float64) float64 {
	return v * 3.6
}

// WindToKph converts a wind speed from the given unit to kph.
func WindToKph(v float64, from WindUnit) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: wind speed %v", ErrInvalidInput, v)
	}
	switch from {
	case WindUnitKph, "":
		return v, nil
	case WindUnitMps:
		return MpsToKph(v), nil
	case WindUnitMph:
		return v * 1.609344, nil
	default:
		return 0, fmt.Errorf("%w: unknown wind unit %q", ErrInvalidInput, from)
	}
}

// BucketCompass maps a bearing in degrees to one of 16 compass points.
// Input is normalized into [0,360) first. A bearing exactly on a sector boundary
// belongs to the lower sector: 11.25 is N, 11.26 is NNE.
func BucketCompass(degrees float64) (Direction, error) {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return "", fmt.Errorf("%w: bearing %v", ErrInvalidInput, degrees)
	}
	d := NormalizeDegrees(degrees)
	// round half down: ceil(x - 0.5)
	idx := int(math.Ceil(d/sectorDegrees-0.5)) % len(compassPoints)
	if idx < 0 {
		idx += len(compassPoints)
	}
	return compassPoints[idx], nil
}

// NormalizeDegrees folds any finite bearing into [0,360).
func NormalizeDegrees(degrees float64) float64 {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// CompassPoints returns the 16 labels in clockwise order.
func CompassPoints() []Direction {
	out := make([]Direction, len(compassPoints))
	copy(out, compassPoints[:])
	return out
}

// ClampPercent clamps v to [0,100].
func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// NonNegative returns v, or 0 when v is negative or NaN.
func NonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
