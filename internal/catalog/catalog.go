// Package catalog discovers the account's station/module hierarchy and keeps
// the stored copy of it current.
package catalog

import (
	"context"
	"fmt"
	"log"

	"github.com/atmosync/atmosync/internal/auth"
	"github.com/atmosync/atmosync/internal/netatmo"
	"github.com/atmosync/atmosync/internal/netatmo/client"
	"github.com/atmosync/atmosync/internal/store"
)

// Catalog resolves known stations and modules. Device records are created on
// first discovery and never overwritten on re-discovery.
type Catalog struct {
	store  store.DeviceStore
	client *client.Client
	auth   *auth.Manager
}

// New creates a Catalog.
func New(st store.DeviceStore, cl *client.Client, am *auth.Manager) *Catalog {
	return &Catalog{
		store:  st,
		client: cl,
		auth:   am,
	}
}

// Refresh fetches the device list from the cloud, upserts every station and
// module, and returns the stations seen in this call. Parsing is strict: an
// entry missing a required field fails the whole refresh.
func (c *Catalog) Refresh(ctx context.Context) ([]netatmo.Station, error) {
	token, err := c.auth.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.DeviceList(ctx, token)
	if err != nil {
		return nil, err
	}

	// Validate the whole payload first so a bad entry never leaves a
	// partially applied catalog behind.
	for _, d := range resp.Body.Devices {
		if d.ID == "" || d.Name == "" || d.Type == "" {
			return nil, fmt.Errorf("%w: device entry missing required field", netatmo.ErrCatalogParse)
		}
	}
	for _, m := range resp.Body.Modules {
		if m.ID == "" || m.Name == "" || m.Type == "" || m.MainDevice == "" {
			return nil, fmt.Errorf("%w: module entry missing required field", netatmo.ErrCatalogParse)
		}
	}

	stations := make([]netatmo.Station, 0, len(resp.Body.Devices))
	for _, d := range resp.Body.Devices {
		st, err := c.store.EnsureStation(ctx, netatmo.Station{ID: d.ID, Name: d.Name, Type: d.Type})
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}

	for _, m := range resp.Body.Modules {
		if _, err := c.store.EnsureModule(ctx, netatmo.Module{
			ID:        m.ID,
			Name:      m.Name,
			Type:      m.Type,
			StationID: m.MainDevice,
		}); err != nil {
			return nil, err
		}
	}

	log.Printf("catalog: refreshed %d stations, %d modules", len(stations), len(resp.Body.Modules))
	return stations, nil
}

// Stations returns all stored stations. No network.
func (c *Catalog) Stations(ctx context.Context) ([]netatmo.Station, error) {
	return c.store.Stations(ctx)
}

// Station returns one stored station by id. No network.
func (c *Catalog) Station(ctx context.Context, id string) (netatmo.Station, error) {
	return c.store.Station(ctx, id)
}

// ModulesOf returns the stored modules attached to a station. No network.
func (c *Catalog) ModulesOf(ctx context.Context, stationID string) ([]netatmo.Module, error) {
	return c.store.ModulesOf(ctx, stationID)
}

// MeasurementTypesFor is the fixed device-type lookup. Unknown device types
// yield an empty set, not an error.
func MeasurementTypesFor(deviceType string) []netatmo.MeasureType {
	return netatmo.TypesForDevice(deviceType)
}
