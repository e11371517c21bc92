package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"already clean", "123 Main St, Springfield", "123 Main St, Springfield"},
		{"newlines", "123 Main St,\nSpringfield", "123 Main St, Springfield"},
		{"repeated spaces", "123  Main   St", "123 Main St"},
		{"tabs and trim", "\t123 Main St  ", "123 Main St"},
		{"windows newlines", "123 Main St,\r\nSpringfield", "123 Main St, Springfield"},
		{"case preserved", "123 main st", "123 main st"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.input))
		})
	}
}

func TestNormalizeAddress_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"123 Main St,\nSpringfield",
		"  spaced \t out \n text  ",
		"already normal",
	}
	for _, s := range inputs {
		once := NormalizeAddress(s)
		assert.Equal(t, once, NormalizeAddress(once), "normalize should be idempotent for %q", s)
	}
}

func TestCanonicalFormattedAddress(t *testing.T) {
	got := CanonicalFormattedAddress("123 Main St,\nSpringfield")
	assert.Equal(t, "123 MAIN ST, SPRINGFIELD", got)
}

func TestAddressID_Deterministic(t *testing.T) {
	a := AddressID("123 MAIN ST, SPRINGFIELD, IL 62704, USA")
	b := AddressID("123 MAIN ST, SPRINGFIELD, IL 62704, USA")
	assert.Equal(t, a, b)
}

func TestAddressID_CanonicalizesInput(t *testing.T) {
	upper := AddressID("123 MAIN ST, SPRINGFIELD, IL 62704, USA")
	messy := AddressID("123 Main St,\nSpringfield,  IL 62704, USA")
	assert.Equal(t, upper, messy, "id must be a function of the canonical form")
}

func TestAddressID_DistinctAddresses(t *testing.T) {
	a := AddressID("123 MAIN ST, SPRINGFIELD, IL 62704, USA")
	b := AddressID("124 MAIN ST, SPRINGFIELD, IL 62704, USA")
	assert.NotEqual(t, a, b)
}

func TestAddressID_FitsIn60Bits(t *testing.T) {
	id := AddressID("ANY ADDRESS AT ALL")
	assert.GreaterOrEqual(t, id, int64(0))
	assert.Less(t, id, int64(1)<<60)
}

func TestNewCanonicalAddress(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	v := ValidatedAddress{
		FormattedAddress: "123 Main St,\nSpringfield, IL 62704, USA",
		Components: []AddressComponent{
			{Type: ComponentStreetNumber, Value: "123", ConfirmationLevel: "CONFIRMED"},
			{Type: ComponentRoute, Value: "Main St", ConfirmationLevel: "CONFIRMED"},
			{Type: ComponentLocality, Value: "Springfield", ConfirmationLevel: "UNCONFIRMED_BUT_PLAUSIBLE"},
			{Type: ComponentPostalCode, Value: "62704", ConfirmationLevel: "CONFIRMED"},
			{Type: ComponentCountry, Value: "USA", ConfirmationLevel: "CONFIRMED"},
			{Type: "administrative_area_level_1", Value: "IL", ConfirmationLevel: "CONFIRMED"},
		},
		Lat: 39.7990175,
		Lng: -89.6439575,
	}

	addr := NewCanonicalAddress(v)

	assert.Equal(t, "123 MAIN ST, SPRINGFIELD, IL 62704, USA", addr.FormattedAddress)
	assert.Equal(t, AddressID("123 MAIN ST, SPRINGFIELD, IL 62704, USA"), addr.AddressID)

	assert.Equal(t, "MAIN ST", addr.Street)
	assert.Equal(t, "CONFIRMED", addr.StreetConfirmation)
	assert.Equal(t, "123", addr.Number)
	assert.Equal(t, "SPRINGFIELD", addr.City)
	assert.Equal(t, "UNCONFIRMED_BUT_PLAUSIBLE", addr.CityConfirmation)
	assert.Equal(t, "62704", addr.PostalCode)
	assert.Equal(t, "USA", addr.Country)

	assert.Equal(t, 39.7990175, addr.GoogleLat)
	assert.Equal(t, -89.6439575, addr.GoogleLng)
	assert.Equal(t, fake.Now(), addr.CreatedAt)
}

func TestNewCanonicalAddress_MissingComponents(t *testing.T) {
	addr := NewCanonicalAddress(ValidatedAddress{FormattedAddress: "SOMEWHERE"})
	assert.Empty(t, addr.Street)
	assert.Empty(t, addr.City)
	require.NotZero(t, addr.AddressID)
}

func TestNewAddressInput_PreservesRawText(t *testing.T) {
	fake := clockwork.NewFakeClock()
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	raw := "123 Main St,\nSpringfield"
	in := NewAddressInput(raw, 42)

	assert.Equal(t, raw, in.InputAddress, "raw input is stored verbatim")
	assert.Equal(t, int64(42), in.AddressID)
	assert.Equal(t, fake.Now(), in.CreatedAt)
}
