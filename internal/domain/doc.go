// Package domain models the address identity and dispatch task data for the
// dispatch task service.
//
// # Address Identity
//
// Free-text addresses arrive from three places: manual entry, CSV uploads,
// and PDF shipping documents. The same real-world address shows up in many
// textual variants, so identity is content-addressed:
//
//	raw input          →  kept verbatim in address_inputs (exact-match cache)
//	formatted address  →  newlines collapsed, whitespace squeezed, uppercased
//	address_id         →  int64 from the first 15 hex chars of
//	                      SHA-256(formatted address)
//
// The 15-hex-char truncation yields a 60-bit key. Two sessions that geocode
// the same formatted address independently compute the same address_id, so a
// duplicate bulk insert is idempotent at the storage layer (the loader uses
// INSERT OR IGNORE on the primary key) and no cross-session lock is needed.
// The non-zero collision probability at scale is an accepted tradeoff:
// widening the key would orphan every persisted row. See [AddressID].
//
// # Coordinate Sources
//
// Every canonical address carries the geocoder's own estimate
// (google_lat/google_lng). Field devices later report where the vehicle
// actually stopped; those fixes land in the append-only verified_coordinates
// ledger. Resolution precedence is fixed: the most recent verified fix wins
// over the geocoder estimate, always. See [ResolveCoordinate].
//
// A new ledger row is appended only when the reported fix differs from the
// comparison baseline by more than an epsilon (default 1e-7 degrees) in
// either axis. The baseline is the current verified fix when one exists,
// otherwise the geocoder estimate. Both "GPS matches the last fix" and
// "GPS matches the geocoder" are no-ops, keeping ledger growth proportional
// to genuine drift and correction events rather than reconciliation polls.
//
// # Address Components
//
// The validation API returns two parallel component lists: the original
// address (carrying per-component confirmation levels) and the
// English/Latin transliteration (carrying the text we store). Components are
// merged by component type: English text, original confirmation level.
//
// # Tasks
//
// A task is one pickup or delivery action tied to a canonical address and a
// fleet device. Task payloads sent to the dispatch API are camelCase with
// empty optional fields omitted and dates encoded as YYYYMMDD. The dispatch
// API assigns the task_id, which is backfilled before the order row is
// persisted. Orders are write-once.
package domain
