// Package resolver implements the address resolution core: the deduplicating
// mapping from raw address text to canonical geocoded records, the verified
// coordinate ledger, and the coordinate precedence policy.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haulware/dispatch-task-service/internal/buffer"
	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
)

// Store is the lookup surface the resolver needs from the backing store.
// Lookups see only flushed rows; rows sitting in the write buffers are
// invisible until loaded. Within one session window that can geocode the
// same brand-new raw text twice, but content addressing converges both
// results onto the same address_id, so the duplicate insert is harmless.
type Store interface {
	// FindInput is the exact-match lookup on the raw input cache, joined to
	// the canonical address. Returns nil on miss.
	FindInput(ctx context.Context, raw string) (*domain.InputMatch, error)

	// FindCanonical looks up a canonical address by its uppercased,
	// normalized formatted address. Returns nil on miss.
	FindCanonical(ctx context.Context, formatted string) (*domain.CanonicalAddress, error)

	// CurrentVerified returns the most recent verified coordinate for an
	// address, or nil when the ledger has none.
	CurrentVerified(ctx context.Context, addressID int64) (*domain.VerifiedCoordinate, error)

	// GoogleCoordinates returns the geocoder estimate stored for an address.
	// found is false when the address is unknown (or not yet flushed).
	GoogleCoordinates(ctx context.Context, addressID int64) (lat, lng float64, found bool, err error)

	// UnverifiedAddresses lists dispatched tasks whose addresses lack any
	// verified coordinate.
	UnverifiedAddresses(ctx context.Context) ([]domain.UnverifiedAddress, error)
}

// Resolution is the answer to "where is this address": the canonical
// identity plus the winning coordinate.
type Resolution struct {
	AddressID        int64
	FormattedAddress string
	Lat              float64
	Lng              float64
	Verified         bool

	// The geocoder's own estimate, regardless of which coordinate won.
	GoogleLat float64
	GoogleLng float64
}

// Resolver owns the resolution pipeline. A nil validator disables fresh
// geocoding: cache misses then fail with domain.ErrValidationRequired. A nil
// publisher disables the event stream.
type Resolver struct {
	store     Store
	buffers   *buffer.Set
	validator domain.AddressValidator
	publisher domain.EventPublisher
	epsilon   float64
	logger    *slog.Logger
	metrics   *observability.Metrics

	// pending overlays the store's verified ledger with fixes still sitting
	// in the coordinate buffer, so repeated recordings within one session
	// window are suppressed before the buffer ever flushes.
	mu      sync.Mutex
	pending map[int64]domain.VerifiedCoordinate
}

// New creates a Resolver. epsilon <= 0 falls back to the default no-op
// threshold.
func New(store Store, buffers *buffer.Set, validator domain.AddressValidator, publisher domain.EventPublisher, epsilon float64, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if epsilon <= 0 {
		epsilon = domain.DefaultCoordinateEpsilon
	}
	return &Resolver{
		store:     store,
		buffers:   buffers,
		validator: validator,
		publisher: publisher,
		epsilon:   epsilon,
		logger:    logger,
		metrics:   metrics,
		pending:   make(map[int64]domain.VerifiedCoordinate),
	}
}

// currentFix returns the effective current verified coordinate for an
// address: a buffered, not-yet-flushed fix when one exists, otherwise the
// store's most recent ledger row, otherwise nil.
func (r *Resolver) currentFix(ctx context.Context, addressID int64) (*domain.VerifiedCoordinate, error) {
	r.mu.Lock()
	fix, ok := r.pending[addressID]
	r.mu.Unlock()
	if ok {
		return &fix, nil
	}

	current, err := r.store.CurrentVerified(ctx, addressID)
	if err != nil {
		return nil, fmt.Errorf("verified lookup: %w", err)
	}
	return current, nil
}

// ResolveAddress maps raw address text to a canonical address and its best
// coordinate. The lookup order is strict: input cache, then canonical cache,
// then a fresh geocode; reordering would spend a paid validation call on
// text the store already knows. A geocoder failure commits no partial state.
func (r *Resolver) ResolveAddress(ctx context.Context, raw string) (Resolution, error) {
	input, err := r.store.FindInput(ctx, raw)
	if err != nil {
		return Resolution{}, fmt.Errorf("input lookup: %w", err)
	}
	if input != nil {
		r.metrics.AddressResolutions.WithLabelValues("input_cache").Inc()
		return r.resolveKnown(ctx, input.AddressID, input.FormattedAddress, input.GoogleLat, input.GoogleLng)
	}

	if r.validator == nil {
		return Resolution{}, domain.ErrValidationRequired
	}

	validated, err := r.validator.Validate(ctx, raw)
	if err != nil {
		return Resolution{}, err
	}

	formatted := domain.CanonicalFormattedAddress(validated.FormattedAddress)

	// A different raw string may geocode to an address the store already
	// has; link the new raw text instead of minting a duplicate.
	canonical, err := r.store.FindCanonical(ctx, formatted)
	if err != nil {
		return Resolution{}, fmt.Errorf("canonical lookup: %w", err)
	}
	if canonical != nil {
		if err := r.linkInput(ctx, raw, canonical.AddressID); err != nil {
			return Resolution{}, err
		}
		r.metrics.AddressResolutions.WithLabelValues("canonical_cache").Inc()
		return r.resolveKnown(ctx, canonical.AddressID, canonical.FormattedAddress, canonical.GoogleLat, canonical.GoogleLng)
	}

	addr := domain.NewCanonicalAddress(validated)
	if err := r.buffers.Addresses.Append(ctx, addr); err != nil {
		return Resolution{}, err
	}
	if err := r.linkInput(ctx, raw, addr.AddressID); err != nil {
		return Resolution{}, err
	}
	r.metrics.AddressResolutions.WithLabelValues("geocoder").Inc()

	r.publish(ctx, addressCreatedEvent(addr))

	// A just-minted address cannot have verified coordinates yet.
	return Resolution{
		AddressID:        addr.AddressID,
		FormattedAddress: addr.FormattedAddress,
		Lat:              addr.GoogleLat,
		Lng:              addr.GoogleLng,
		GoogleLat:        addr.GoogleLat,
		GoogleLng:        addr.GoogleLng,
	}, nil
}

// RecordFieldCoordinate appends a field-reported fix to the verified ledger,
// unless it matches the comparison baseline within epsilon on both axes.
// The baseline is the current verified fix when one exists, otherwise the
// geocoder estimate. Returns true iff a row was appended.
func (r *Resolver) RecordFieldCoordinate(ctx context.Context, addressID int64, lat, lng float64) (bool, error) {
	current, err := r.currentFix(ctx, addressID)
	if err != nil {
		return false, err
	}

	if current != nil {
		if !domain.CoordinatesDiffer(current.Lat, current.Lon, lat, lng, r.epsilon) {
			r.metrics.CoordinateWrites.WithLabelValues("unchanged").Inc()
			return false, nil
		}
	} else {
		googleLat, googleLng, found, err := r.store.GoogleCoordinates(ctx, addressID)
		if err != nil {
			return false, fmt.Errorf("google coordinates lookup: %w", err)
		}
		if found && !domain.CoordinatesDiffer(googleLat, googleLng, lat, lng, r.epsilon) {
			r.metrics.CoordinateWrites.WithLabelValues("unchanged").Inc()
			return false, nil
		}
	}

	fix := domain.NewVerifiedCoordinate(addressID, lat, lng)
	if err := r.buffers.Coordinates.Append(ctx, fix); err != nil {
		return false, err
	}
	r.mu.Lock()
	r.pending[addressID] = fix
	r.mu.Unlock()
	r.metrics.CoordinateWrites.WithLabelValues("recorded").Inc()

	r.publish(ctx, coordinateVerifiedEvent(fix))
	return true, nil
}

// EnqueueTask buffers the order row for a submitted task.
func (r *Resolver) EnqueueTask(ctx context.Context, order domain.Order) error {
	return r.buffers.Orders.Append(ctx, order)
}

// ListAddressesMissingVerification returns the task/address pairs awaiting a
// field fix, the input of the reconciliation pass.
func (r *Resolver) ListAddressesMissingVerification(ctx context.Context) ([]domain.UnverifiedAddress, error) {
	return r.store.UnverifiedAddresses(ctx)
}

// FlushAll drains every write buffer; call at session end to guarantee
// durability of rows below the threshold.
func (r *Resolver) FlushAll(ctx context.Context) error {
	return r.buffers.FlushAll(ctx)
}

// resolveKnown applies the coordinate precedence policy for an address that
// already exists in the store.
func (r *Resolver) resolveKnown(ctx context.Context, addressID int64, formatted string, googleLat, googleLng float64) (Resolution, error) {
	current, err := r.currentFix(ctx, addressID)
	if err != nil {
		return Resolution{}, err
	}

	coord := domain.ResolveCoordinate(current, googleLat, googleLng)
	return Resolution{
		AddressID:        addressID,
		FormattedAddress: formatted,
		Lat:              coord.Lat,
		Lng:              coord.Lng,
		Verified:         coord.Verified,
		GoogleLat:        googleLat,
		GoogleLng:        googleLng,
	}, nil
}

// linkInput idempotently records the raw→canonical mapping.
func (r *Resolver) linkInput(ctx context.Context, raw string, addressID int64) error {
	return r.buffers.Inputs.Append(ctx, domain.NewAddressInput(raw, addressID))
}

// publish emits change events best-effort; a stream failure never fails the
// request that produced the event.
func (r *Resolver) publish(ctx context.Context, event domain.ChangeEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.metrics.EventsPublished.WithLabelValues("error").Inc()
		r.logger.Warn("event publish failed", "kind", event.Kind, "error", err)
		return
	}
	r.metrics.EventsPublished.WithLabelValues("success").Inc()
}

func addressCreatedEvent(addr domain.CanonicalAddress) domain.ChangeEvent {
	e := domain.NewChangeEvent(domain.EventAddressCreated)
	e.AddressID = addr.AddressID
	e.FormattedAddress = addr.FormattedAddress
	e.Lat = addr.GoogleLat
	e.Lng = addr.GoogleLng
	return e
}

func coordinateVerifiedEvent(fix domain.VerifiedCoordinate) domain.ChangeEvent {
	e := domain.NewChangeEvent(domain.EventCoordinateVerified)
	e.AddressID = fix.AddressID
	e.Lat = fix.Lat
	e.Lng = fix.Lon
	return e
}
