// Package units converts navigation quantities from SI to display units.
package units

import (
	"fmt"
	"strings"
)

// Speed units.
const (
	MPS   = "mps"
	KMPH  = "kmph"
	KPH   = "kph"
	MPH   = "mph"
	Knots = "kt"
)

// Distance units.
const (
	Metres      = "m"
	Centimetres = "cm"
	Feet        = "ft"
)

// ValidSpeedUnits contains all accepted speed units.
var ValidSpeedUnits = []string{MPS, KMPH, KPH, MPH, Knots}

// ValidDistanceUnits contains all accepted distance units.
var ValidDistanceUnits = []string{Metres, Centimetres, Feet}

var speedFactors = map[string]float64{
	MPS:   1,
	KMPH:  3.6,
	KPH:   3.6,
	MPH:   2.23694,
	Knots: 1.94384,
}

var distanceFactors = map[string]float64{
	Metres:      1,
	Centimetres: 100,
	Feet:        3.28084,
}

// IsValidSpeed reports whether unit is an accepted speed unit.
func IsValidSpeed(unit string) bool {
	_, ok := speedFactors[unit]
	return ok
}

// IsValidDistance reports whether unit is an accepted distance unit.
func IsValidDistance(unit string) bool {
	_, ok := distanceFactors[unit]
	return ok
}

// ConvertSpeed converts metres per second to unit. Unknown units are left
// in m/s.
func ConvertSpeed(mps float64, unit string) float64 {
	if f, ok := speedFactors[unit]; ok {
		return mps * f
	}
	return mps
}

// ConvertDistance converts metres to unit. Unknown units are left in
// metres.
func ConvertDistance(m float64, unit string) float64 {
	if f, ok := distanceFactors[unit]; ok {
		return m * f
	}
	return m
}

// ConvertSpeeds converts each component of a velocity vector.
func ConvertSpeeds(mps [3]float64, unit string) [3]float64 {
	return [3]float64{ConvertSpeed(mps[0], unit), ConvertSpeed(mps[1], unit), ConvertSpeed(mps[2], unit)}
}

// ConvertDistances converts each component of a position vector.
func ConvertDistances(m [3]float64, unit string) [3]float64 {
	return [3]float64{ConvertDistance(m[0], unit), ConvertDistance(m[1], unit), ConvertDistance(m[2], unit)}
}

// ParseSpeed validates a speed unit, defaulting an empty string to m/s.
func ParseSpeed(unit string) (string, error) {
	if unit == "" {
		return MPS, nil
	}
	if !IsValidSpeed(unit) {
		return "", fmt.Errorf("invalid speed unit %q, valid options: %s", unit, strings.Join(ValidSpeedUnits, ", "))
	}
	return unit, nil
}

// ParseDistance validates a distance unit, defaulting an empty string to
// metres.
func ParseDistance(unit string) (string, error) {
	if unit == "" {
		return Metres, nil
	}
	if !IsValidDistance(unit) {
		return "", fmt.Errorf("invalid distance unit %q, valid options: %s", unit, strings.Join(ValidDistanceUnits, ", "))
	}
	return unit, nil
}
