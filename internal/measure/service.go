// Package measure is the idempotent ingestion and retrieval layer for
// telemetry samples.
package measure

import (
	"context"
	"log"
	"time"

	"github.com/atmosync/atmosync/internal/metrics"
	"github.com/atmosync/atmosync/internal/netatmo"
	"github.com/atmosync/atmosync/internal/netatmo/client"
	"github.com/atmosync/atmosync/internal/store"
)

// DefaultLookback seeds the first sync window of a device that has no
// stored samples yet.
const DefaultLookback = 24 * time.Hour

// Service ingests getmeasure payloads and answers range queries.
type Service struct {
	store    store.MeasureStore
	metrics  *metrics.Metrics
	lookback time.Duration
}

// NewService creates a Service. A non-positive lookback selects
// DefaultLookback; metrics may be nil.
func NewService(st store.MeasureStore, m *metrics.Metrics, lookback time.Duration) *Service {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Service{
		store:    st,
		metrics:  m,
		lookback: lookback,
	}
}

// Ingest writes the samples of one getmeasure response for the given device.
// module is nil when the payload belongs to the station itself. Samples whose
// (timestamp, type) identity already exists for the device are skipped, so
// re-ingesting a previously seen payload is a no-op. Returns the counts of
// written and skipped samples.
func (s *Service) Ingest(ctx context.Context, resp *client.MeasureResponse, station netatmo.Station, module *netatmo.Module) (int, int, error) {
	types := station.MeasurementTypes()
	moduleID := ""
	if module != nil {
		types = module.MeasurementTypes()
		moduleID = module.ID
	}

	var ingested, skipped int
	for _, block := range resp.Body {
		for row, values := range block.Value {
			ts := time.Unix(block.BegTime+int64(row)*block.StepTime, 0)

			for i, t := range types {
				if i >= len(values) {
					break
				}
				v, ok := values[i].(float64)
				if !ok {
					// null or non-numeric slot
					continue
				}

				written, err := s.store.InsertMeasure(ctx, netatmo.Measure{
					StationID: station.ID,
					ModuleID:  moduleID,
					Type:      t,
					Value:     v,
					Timestamp: ts,
				})
				if err != nil {
					return ingested, skipped, err
				}
				if written {
					ingested++
					s.metrics.MeasureIngested()
				} else {
					skipped++
					s.metrics.MeasureSkipped()
				}
			}
		}
	}

	if skipped > 0 {
		log.Printf("measure: ingested %d samples, skipped %d duplicates for station %s module %q",
			ingested, skipped, station.ID, moduleID)
	}
	return ingested, skipped, nil
}

// LastMeasureTime returns the newest stored sample timestamp for the device,
// or now minus the configured lookback when the device has none. Never an
// error path for the empty case.
func (s *Service) LastMeasureTime(ctx context.Context, station netatmo.Station, module *netatmo.Module) (time.Time, error) {
	moduleID := ""
	if module != nil {
		moduleID = module.ID
	}

	ts, ok, err := s.store.LastMeasureTime(ctx, station.ID, moduleID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Now().Add(-s.lookback), nil
	}
	return ts, nil
}

// Query returns the stored samples of one device filtered by type and the
// inclusive [from, to] range, sorted by timestamp in the requested
// direction.
func (s *Service) Query(ctx context.Context, station netatmo.Station, module *netatmo.Module, types []netatmo.MeasureType, from, to time.Time, ascending bool) ([]netatmo.Measure, error) {
	moduleID := ""
	if module != nil {
		moduleID = module.ID
	}

	return s.store.Measures(ctx, store.MeasureFilter{
		StationID: station.ID,
		ModuleID:  moduleID,
		Types:     types,
		From:      from,
		To:        to,
		Ascending: ascending,
	})
}
