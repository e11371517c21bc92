package domain

import "context"

// AddressValidator converts free-text addresses into structured, geocoded
// results via an external validation API.
type AddressValidator interface {
	// Validate resolves a raw address string. Implementations return a
	// *GeocodingError on network or API failure.
	Validate(ctx context.Context, address string) (ValidatedAddress, error)
}
