package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Address component types returned by the validation API.
const (
	ComponentRoute        = "route"
	ComponentStreetNumber = "street_number"
	ComponentLocality     = "locality"
	ComponentPostalCode   = "postal_code"
	ComponentCountry      = "country"
)

// NormalizeAddress collapses newlines and repeated whitespace into single
// spaces and trims the result. Case is preserved; this is the display form.
// Normalization is idempotent.
func NormalizeAddress(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalFormattedAddress is the storage and hashing form: normalized and
// uppercased. Two addresses are the same identity iff their canonical forms
// are byte-equal.
func CanonicalFormattedAddress(s string) string {
	return strings.ToUpper(NormalizeAddress(s))
}

// AddressID derives the content-addressed identity of a formatted address:
// the first 15 hex characters of its SHA-256 digest parsed as a base-16
// integer (60 bits, always non-negative). The input is canonicalized first,
// so callers may pass either form. Collisions map distinct strings to the
// same identity; that is the dedup mechanism, not an error.
func AddressID(formattedAddress string) int64 {
	canonical := CanonicalFormattedAddress(formattedAddress)
	sum := sha256.Sum256([]byte(canonical))
	digest := hex.EncodeToString(sum[:])
	id, err := strconv.ParseInt(digest[:15], 16, 64)
	if err != nil {
		// Unreachable: 15 hex chars always fit in an int64.
		panic("domain: address id parse: " + err.Error())
	}
	return id
}

// AddressComponent is one structured piece of a validated address: the
// English-translated text paired with the validation API's confirmation
// level for that component type (e.g. CONFIRMED, UNCONFIRMED_BUT_PLAUSIBLE).
type AddressComponent struct {
	Type              string
	Value             string
	ConfirmationLevel string
}

// ValidatedAddress is the merged output of the address validation call:
// the English/Latin formatted address, components carrying English text with
// the original response's confirmation levels, and the geocoded estimate.
type ValidatedAddress struct {
	FormattedAddress string
	Components       []AddressComponent
	Lat              float64
	Lng              float64
}

// CanonicalAddress is the single deduplicated record for one real-world
// formatted address. Created once on first successful geocode, never mutated.
type CanonicalAddress struct {
	AddressID        int64
	FormattedAddress string

	Street                 string
	StreetConfirmation     string
	Number                 string
	NumberConfirmation     string
	City                   string
	CityConfirmation       string
	PostalCode             string
	PostalCodeConfirmation string
	Country                string
	CountryConfirmation    string

	GoogleLat float64
	GoogleLng float64
	CreatedAt time.Time
}

// NewCanonicalAddress mints a CanonicalAddress from a validation result.
// The address_id is computable before persistence, so callers can continue
// optimistically while the insert sits in a buffer. Component values are
// stored uppercase.
func NewCanonicalAddress(v ValidatedAddress) CanonicalAddress {
	formatted := CanonicalFormattedAddress(v.FormattedAddress)
	addr := CanonicalAddress{
		AddressID:        AddressID(formatted),
		FormattedAddress: formatted,
		GoogleLat:        v.Lat,
		GoogleLng:        v.Lng,
		CreatedAt:        clock.Now(),
	}

	for _, c := range v.Components {
		value := strings.ToUpper(c.Value)
		switch c.Type {
		case ComponentRoute:
			addr.Street = value
			addr.StreetConfirmation = c.ConfirmationLevel
		case ComponentStreetNumber:
			addr.Number = value
			addr.NumberConfirmation = c.ConfirmationLevel
		case ComponentLocality:
			addr.City = value
			addr.CityConfirmation = c.ConfirmationLevel
		case ComponentPostalCode:
			addr.PostalCode = value
			addr.PostalCodeConfirmation = c.ConfirmationLevel
		case ComponentCountry:
			addr.Country = value
			addr.CountryConfirmation = c.ConfirmationLevel
		}
	}
	return addr
}

// AddressInput maps one raw input string, exactly as typed or extracted, to a
// canonical address. Lookups are exact-match on the raw text; no
// normalization is applied at lookup time.
type AddressInput struct {
	InputAddress string
	AddressID    int64
	CreatedAt    time.Time
}

// NewAddressInput links a raw input string to an address id.
func NewAddressInput(raw string, addressID int64) AddressInput {
	return AddressInput{
		InputAddress: raw,
		AddressID:    addressID,
		CreatedAt:    clock.Now(),
	}
}

// InputMatch is a cache hit on the address_inputs table joined to its
// canonical address.
type InputMatch struct {
	AddressID        int64
	FormattedAddress string
	GoogleLat        float64
	GoogleLng        float64
}

// UnverifiedAddress is a dispatched task whose address has no verified
// coordinate yet; input to the reconciliation pass.
type UnverifiedAddress struct {
	TaskID           string
	AddressID        int64
	FormattedAddress string
}
