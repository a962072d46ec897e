// Package syncer drives a full synchronization pass: token, catalog refresh,
// then one measurement window per device, strictly one at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmosync/atmosync/internal/auth"
	"github.com/atmosync/atmosync/internal/catalog"
	"github.com/atmosync/atmosync/internal/measure"
	"github.com/atmosync/atmosync/internal/metrics"
	"github.com/atmosync/atmosync/internal/netatmo"
	"github.com/atmosync/atmosync/internal/netatmo/client"
)

// ErrPassInProgress is returned when a sync pass is requested while another
// one is still running. Passes never overlap.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Window bounds an explicit synchronization range.
type Window struct {
	From time.Time
	To   time.Time
}

// Syncer composes the token manager, the catalog and the measurement store
// into the end-to-end flow. At most one measurement fetch is in flight at
// any time; the remote API is not safe under concurrent multi-fetch from a
// single account.
type Syncer struct {
	auth     *auth.Manager
	catalog  *catalog.Catalog
	measures *measure.Service
	client   *client.Client
	metrics  *metrics.Metrics

	// login credentials for auto-authentication; empty disables it
	username string
	password string

	passMu   sync.Mutex
	fetchSem chan struct{}
}

// New creates a Syncer. username/password may be empty, in which case a pass
// fails fast when no valid token is cached.
func New(am *auth.Manager, cat *catalog.Catalog, ms *measure.Service, cl *client.Client, m *metrics.Metrics, username, password string) *Syncer {
	return &Syncer{
		auth:     am,
		catalog:  cat,
		measures: ms,
		client:   cl,
		metrics:  m,
		username: username,
		password: password,
		fetchSem: make(chan struct{}, 1),
	}
}

// SyncAll runs one full pass. window == nil selects the incremental mode
// where each device continues from its last stored sample. Authentication
// failure aborts the pass immediately; a single device's fetch failure does
// not block the remaining devices. All per-device failures are collected and
// returned together.
func (s *Syncer) SyncAll(ctx context.Context, window *Window) error {
	if !s.passMu.TryLock() {
		return ErrPassInProgress
	}
	defer s.passMu.Unlock()

	passID := uuid.NewString()
	log.Printf("syncer: pass %s started", passID)

	if err := s.ensureToken(ctx); err != nil {
		return err
	}

	stations, err := s.catalog.Refresh(ctx)
	if err != nil {
		return err
	}

	var failures []error
	for _, station := range stations {
		if err := s.fetchDevice(ctx, station, nil, window); err != nil {
			if abortsPass(err) {
				return err
			}
			failures = append(failures, fmt.Errorf("station %s: %w", station.ID, err))
		}

		modules, err := s.catalog.ModulesOf(ctx, station.ID)
		if err != nil {
			return err
		}
		for _, module := range modules {
			module := module
			if err := s.fetchDevice(ctx, station, &module, window); err != nil {
				if abortsPass(err) {
					return err
				}
				failures = append(failures, fmt.Errorf("module %s: %w", module.ID, err))
			}
		}
	}

	if len(failures) > 0 {
		log.Printf("syncer: pass %s finished with %d device failures", passID, len(failures))
		return errors.Join(failures...)
	}

	s.metrics.SyncCompleted(time.Now().Unix())
	log.Printf("syncer: pass %s completed", passID)
	return nil
}

// abortsPass reports whether a device failure must end the whole pass: lost
// authentication, or the pass context cancelled or timed out.
func abortsPass(err error) bool {
	return errors.Is(err, netatmo.ErrAuthRequired) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Syncer) ensureToken(ctx context.Context) error {
	if s.username != "" {
		_, err := s.auth.Authenticate(ctx, s.username, s.password)
		return err
	}
	_, err := s.auth.ValidToken(ctx)
	return err
}

func (s *Syncer) fetchDevice(ctx context.Context, station netatmo.Station, module *netatmo.Module, window *Window) error {
	if window != nil {
		return s.FetchDeviceWindow(ctx, station, module, window.From, window.To)
	}
	return s.FetchDeviceIncremental(ctx, station, module)
}

// FetchDeviceWindow fetches and ingests one measurement window for a single
// device. The call blocks while another fetch is in flight. Failures are
// returned to the caller; nothing is retried here.
func (s *Syncer) FetchDeviceWindow(ctx context.Context, station netatmo.Station, module *netatmo.Module, from, to time.Time) error {
	select {
	case s.fetchSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.fetchSem }()

	token, err := s.auth.ValidToken(ctx)
	if err != nil {
		return err
	}

	types := station.MeasurementTypes()
	moduleID := ""
	if module != nil {
		types = module.MeasurementTypes()
		moduleID = module.ID
	}
	if len(types) == 0 {
		// unsupported device kind, nothing to fetch
		return nil
	}

	s.metrics.DeviceFetch()
	resp, err := s.client.GetMeasure(ctx, client.MeasureParams{
		AccessToken: token,
		DeviceID:    station.ID,
		ModuleID:    moduleID,
		Types:       types,
		Begin:       from,
		End:         to,
	})
	if err != nil {
		s.metrics.FetchFailure()
		return err
	}

	if _, _, err := s.measures.Ingest(ctx, resp, station, module); err != nil {
		s.metrics.FetchFailure()
		return err
	}
	return nil
}

// FetchDeviceIncremental fetches from the device's last stored sample up to
// now.
func (s *Syncer) FetchDeviceIncremental(ctx context.Context, station netatmo.Station, module *netatmo.Module) error {
	from, err := s.measures.LastMeasureTime(ctx, station, module)
	if err != nil {
		return err
	}
	return s.FetchDeviceWindow(ctx, station, module, from, time.Now())
}
