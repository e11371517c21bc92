// Package sqlite implements the backing store on SQLite: the canonical
// address table, the raw-input cache, the append-only verified coordinate
// ledger, and the order history. Bulk loads run in a single transaction per
// batch; the content-addressed primary keys make replayed rows no-ops.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/haulware/dispatch-task-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS addresses (
	address_id INTEGER PRIMARY KEY,
	formatted_address TEXT NOT NULL,
	street TEXT,
	street_confirmation TEXT,
	number TEXT,
	number_confirmation TEXT,
	city TEXT,
	city_confirmation TEXT,
	postal_code TEXT,
	postal_code_confirmation TEXT,
	country TEXT,
	country_confirmation TEXT,
	google_lat REAL,
	google_lng REAL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_addresses_formatted ON addresses(formatted_address);

CREATE TABLE IF NOT EXISTS address_inputs (
	input_address TEXT PRIMARY KEY,
	address_id INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS verified_coordinates (
	address_id INTEGER NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verified_address ON verified_coordinates(address_id, created_at);

CREATE TABLE IF NOT EXISTS orders (
	task_id TEXT PRIMARY KEY,
	address_id INTEGER NOT NULL,
	local_id TEXT NOT NULL,
	device_number TEXT NOT NULL,
	location_name TEXT,
	logist_comment TEXT,
	action_tag TEXT,
	action_tag_subtype TEXT,
	parcel_weight REAL,
	date DATE,
	time_comment TEXT,
	refuel_volume REAL,
	refuel_full_tank BOOLEAN,
	adblue_volume REAL,
	adblue_full_tank BOOLEAN,
	temperature_info TEXT,
	driver_atch_tags TEXT,
	driver_atch_tags_visit_disabled BOOLEAN,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_address ON orders(address_id);
`

// Store is the SQLite-backed store. It serves both the lookup surface used
// by the resolver and the bulk-load surface used by the write buffers.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the database at path and applies the schema.
// WAL keeps readers unblocked during batch loads.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindInput looks up a raw input string in the input cache, joined to its
// canonical address. Exact match only; returns nil on miss.
func (s *Store) FindInput(ctx context.Context, raw string) (*domain.InputMatch, error) {
	const q = `
		SELECT a.address_id, a.formatted_address, a.google_lat, a.google_lng
		FROM address_inputs i
		JOIN addresses a ON a.address_id = i.address_id
		WHERE i.input_address = ?`

	var m domain.InputMatch
	err := s.db.QueryRowContext(ctx, q, raw).Scan(&m.AddressID, &m.FormattedAddress, &m.GoogleLat, &m.GoogleLng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find input: %w", err)
	}
	return &m, nil
}

// FindCanonical looks up a canonical address by its formatted text. Returns
// nil on miss.
func (s *Store) FindCanonical(ctx context.Context, formatted string) (*domain.CanonicalAddress, error) {
	const q = `
		SELECT address_id, formatted_address,
			COALESCE(street, ''), COALESCE(street_confirmation, ''),
			COALESCE(number, ''), COALESCE(number_confirmation, ''),
			COALESCE(city, ''), COALESCE(city_confirmation, ''),
			COALESCE(postal_code, ''), COALESCE(postal_code_confirmation, ''),
			COALESCE(country, ''), COALESCE(country_confirmation, ''),
			google_lat, google_lng, created_at
		FROM addresses
		WHERE formatted_address = ?`

	var a domain.CanonicalAddress
	err := s.db.QueryRowContext(ctx, q, formatted).Scan(
		&a.AddressID, &a.FormattedAddress,
		&a.Street, &a.StreetConfirmation,
		&a.Number, &a.NumberConfirmation,
		&a.City, &a.CityConfirmation,
		&a.PostalCode, &a.PostalCodeConfirmation,
		&a.Country, &a.CountryConfirmation,
		&a.GoogleLat, &a.GoogleLng, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find canonical: %w", err)
	}
	return &a, nil
}

// CurrentVerified returns the most recent verified coordinate for an
// address, or nil when the ledger has none. Ties on created_at break toward
// the later insert.
func (s *Store) CurrentVerified(ctx context.Context, addressID int64) (*domain.VerifiedCoordinate, error) {
	const q = `
		SELECT address_id, lat, lon, created_at
		FROM verified_coordinates
		WHERE address_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	var v domain.VerifiedCoordinate
	err := s.db.QueryRowContext(ctx, q, addressID).Scan(&v.AddressID, &v.Lat, &v.Lon, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current verified: %w", err)
	}
	return &v, nil
}

// GoogleCoordinates returns the geocoder estimate stored for an address.
func (s *Store) GoogleCoordinates(ctx context.Context, addressID int64) (float64, float64, bool, error) {
	const q = `SELECT google_lat, google_lng FROM addresses WHERE address_id = ?`

	var lat, lng float64
	err := s.db.QueryRowContext(ctx, q, addressID).Scan(&lat, &lng)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("google coordinates: %w", err)
	}
	return lat, lng, true, nil
}

// UnverifiedAddresses lists dispatched tasks whose addresses have no
// verified coordinate yet.
func (s *Store) UnverifiedAddresses(ctx context.Context) ([]domain.UnverifiedAddress, error) {
	const q = `
		SELECT DISTINCT o.task_id, o.address_id, a.formatted_address
		FROM orders o
		JOIN addresses a ON a.address_id = o.address_id
		WHERE o.address_id NOT IN (SELECT address_id FROM verified_coordinates)`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("unverified addresses: %w", err)
	}
	defer rows.Close()

	var out []domain.UnverifiedAddress
	for rows.Next() {
		var u domain.UnverifiedAddress
		if err := rows.Scan(&u.TaskID, &u.AddressID, &u.FormattedAddress); err != nil {
			return nil, fmt.Errorf("scan unverified address: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unverified addresses: %w", err)
	}
	return out, nil
}

// LoadAddresses bulk-inserts canonical addresses. Replayed ids are ignored;
// the first write of a content-addressed row wins.
func (s *Store) LoadAddresses(ctx context.Context, rows []domain.CanonicalAddress) error {
	const q = `
		INSERT OR IGNORE INTO addresses (
			address_id, formatted_address,
			street, street_confirmation, number, number_confirmation,
			city, city_confirmation, postal_code, postal_code_confirmation,
			country, country_confirmation,
			google_lat, google_lng, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.inTx(ctx, q, len(rows), func(stmt *sql.Stmt, i int) error {
		r := rows[i]
		_, err := stmt.ExecContext(ctx,
			r.AddressID, r.FormattedAddress,
			r.Street, r.StreetConfirmation, r.Number, r.NumberConfirmation,
			r.City, r.CityConfirmation, r.PostalCode, r.PostalCodeConfirmation,
			r.Country, r.CountryConfirmation,
			r.GoogleLat, r.GoogleLng, r.CreatedAt,
		)
		return err
	})
}

// LoadAddressInputs bulk-inserts raw-input mappings, ignoring replays.
func (s *Store) LoadAddressInputs(ctx context.Context, rows []domain.AddressInput) error {
	const q = `
		INSERT OR IGNORE INTO address_inputs (input_address, address_id, created_at)
		VALUES (?, ?, ?)`

	return s.inTx(ctx, q, len(rows), func(stmt *sql.Stmt, i int) error {
		r := rows[i]
		_, err := stmt.ExecContext(ctx, r.InputAddress, r.AddressID, r.CreatedAt)
		return err
	})
}

// LoadVerifiedCoordinates appends to the coordinate ledger. Plain INSERT:
// the ledger is append-only and every row is a distinct observation.
func (s *Store) LoadVerifiedCoordinates(ctx context.Context, rows []domain.VerifiedCoordinate) error {
	const q = `
		INSERT INTO verified_coordinates (address_id, lat, lon, created_at)
		VALUES (?, ?, ?, ?)`

	return s.inTx(ctx, q, len(rows), func(stmt *sql.Stmt, i int) error {
		r := rows[i]
		_, err := stmt.ExecContext(ctx, r.AddressID, r.Lat, r.Lon, r.CreatedAt)
		return err
	})
}

// LoadOrders bulk-inserts order rows, ignoring replayed task ids.
func (s *Store) LoadOrders(ctx context.Context, rows []domain.Order) error {
	const q = `
		INSERT OR IGNORE INTO orders (
			task_id, address_id, local_id, device_number,
			location_name, logist_comment, action_tag, action_tag_subtype,
			parcel_weight, date, time_comment,
			refuel_volume, refuel_full_tank, adblue_volume, adblue_full_tank,
			temperature_info, driver_atch_tags, driver_atch_tags_visit_disabled,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.inTx(ctx, q, len(rows), func(stmt *sql.Stmt, i int) error {
		r := rows[i]
		_, err := stmt.ExecContext(ctx,
			r.TaskID, r.AddressID, r.LocalID, r.DeviceNumber,
			r.LocationName, r.LogistComment, r.ActionTag, r.ActionTagSubtype,
			r.ParcelWeight, r.Date, r.TimeComment,
			r.RefuelVolume, r.RefuelFullTank, r.AdblueVolume, r.AdblueFullTank,
			r.TemperatureInfo, r.DriverAtchTags, r.DriverAtchTagsVisitDisabled,
			r.CreatedAt,
		)
		return err
	})
}

// inTx runs n executions of one prepared statement inside a transaction.
// Any failure rolls the whole batch back, so the buffer's retry re-sends a
// batch the store never partially applied.
func (s *Store) inTx(ctx context.Context, query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	if n == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range n {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("exec row %d: %w", i, err)
		}
	}
	return tx.Commit()
}
