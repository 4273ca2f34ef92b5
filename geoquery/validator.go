package geoquery

import (
	"errors"
	"fmt"
)

// DefaultMaxRadiusKm caps search radii when the caller does not supply
// its own maximum.
const DefaultMaxRadiusKm = 50.0

var (
	ErrInvalidLatitude  = errors.New("latitude out of range [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude out of range [-180, 180]")
	ErrInvalidRadius    = errors.New("invalid search radius")
)

// ValidateCoordinates is the boundary check run before anything touches
// the engine; the transform and index assume it already happened.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: %v", ErrInvalidLatitude, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: %v", ErrInvalidLongitude, lng)
	}
	return nil
}

// ValidateRadius rejects non-positive radii and radii beyond the maximum
// (DefaultMaxRadiusKm unless an explicit maximum is given).
func ValidateRadius(radiusKm float64, maxKm ...float64) error {
	maximum := DefaultMaxRadiusKm
	if len(maxKm) > 0 {
		maximum = maxKm[0]
	}
	if radiusKm <= 0 {
		return fmt.Errorf("%w: %v must be positive", ErrInvalidRadius, radiusKm)
	}
	if radiusKm > maximum {
		return fmt.Errorf("%w: %v exceeds maximum %v", ErrInvalidRadius, radiusKm, maximum)
	}
	return nil
}
