// Package store owns the persisted record layout: tokens, stations, modules
// and measures. The SQLite implementation is the production store; the
// in-memory one backs tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atmosync/atmosync/internal/netatmo"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// TokenStore persists OAuth token records keyed by name. At most one record
// exists per name.
type TokenStore interface {
	// Token returns the named token or ErrNotFound.
	Token(ctx context.Context, name string) (netatmo.Token, error)

	// SaveTokenPair upserts both tokens in one transaction: both are written
	// or neither is.
	SaveTokenPair(ctx context.Context, auth, refresh netatmo.Token) error

	// DeleteToken removes the named token. Deleting an absent token is a
	// no-op.
	DeleteToken(ctx context.Context, name string) error
}

// DeviceStore persists the discovered device hierarchy. Ensure methods
// create a record only when the id is unseen and always return the stored
// row: re-discovering a device never overwrites its name or type.
type DeviceStore interface {
	EnsureStation(ctx context.Context, s netatmo.Station) (netatmo.Station, error)
	Station(ctx context.Context, id string) (netatmo.Station, error)
	Stations(ctx context.Context) ([]netatmo.Station, error)

	EnsureModule(ctx context.Context, m netatmo.Module) (netatmo.Module, error)
	ModulesOf(ctx context.Context, stationID string) ([]netatmo.Module, error)
}

// MeasureFilter selects measures for one device. ModuleID empty scopes the
// query to the station's own samples. The [From, To] range is inclusive.
type MeasureFilter struct {
	StationID string
	ModuleID  string
	Types     []netatmo.MeasureType
	From      time.Time
	To        time.Time
	Ascending bool
}

// MeasureStore persists telemetry samples. Measures are append-only.
type MeasureStore interface {
	// InsertMeasure writes one sample unless a record with the same
	// (station, module, type, timestamp) identity already exists. It reports
	// whether a row was actually written.
	InsertMeasure(ctx context.Context, m netatmo.Measure) (bool, error)

	// LastMeasureTime returns the newest timestamp stored for the device,
	// or ok=false when the device has no samples yet.
	LastMeasureTime(ctx context.Context, stationID, moduleID string) (time.Time, bool, error)

	// Measures returns the samples matching the filter, sorted by timestamp
	// in the requested direction.
	Measures(ctx context.Context, f MeasureFilter) ([]netatmo.Measure, error)
}

// Store is the full record store contract.
type Store interface {
	TokenStore
	DeviceStore
	MeasureStore
}
