package domain

import (
	"math"
	"time"
)

// DefaultCoordinateEpsilon is the no-op threshold for verified coordinate
// writes, in degrees. Fixes within this distance of the baseline on both
// axes are not recorded. Configurable via COORDINATE_EPSILON.
const DefaultCoordinateEpsilon = 1e-7

// VerifiedCoordinate is one append-only ledger row: a field-confirmed GPS
// fix for an address. The current verified coordinate for an address is the
// row with the greatest CreatedAt.
type VerifiedCoordinate struct {
	AddressID int64
	Lat       float64
	Lon       float64
	CreatedAt time.Time
}

// NewVerifiedCoordinate stamps a ledger row for an address.
func NewVerifiedCoordinate(addressID int64, lat, lon float64) VerifiedCoordinate {
	return VerifiedCoordinate{
		AddressID: addressID,
		Lat:       lat,
		Lon:       lon,
		CreatedAt: clock.Now(),
	}
}

// CoordinatesDiffer reports whether two coordinates differ by more than
// epsilon on either axis.
func CoordinatesDiffer(lat1, lon1, lat2, lon2, epsilon float64) bool {
	return math.Abs(lat1-lat2) > epsilon || math.Abs(lon1-lon2) > epsilon
}

// ResolvedCoordinate is the single answer to "which coordinate wins" for an
// address: the most recent verified fix when one exists, otherwise the
// geocoder estimate.
type ResolvedCoordinate struct {
	Lat      float64
	Lng      float64
	Verified bool
}

// ResolveCoordinate applies the precedence policy. verified is the current
// ledger row, or nil when the address has none. All callers route through
// this function; the precedence is not re-implemented elsewhere.
func ResolveCoordinate(verified *VerifiedCoordinate, googleLat, googleLng float64) ResolvedCoordinate {
	if verified != nil {
		return ResolvedCoordinate{Lat: verified.Lat, Lng: verified.Lon, Verified: true}
	}
	return ResolvedCoordinate{Lat: googleLat, Lng: googleLng, Verified: false}
}

// RoundCoordinate rounds a coordinate to 7 decimal places, the precision the
// epsilon comparison operates at. Fleet-reported fixes are rounded before
// being compared or recorded.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
