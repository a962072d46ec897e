package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atmosync/atmosync/internal/netatmo"
)

type measureKey struct {
	stationID string
	moduleID  string
	typ       netatmo.MeasureType
	tsUnix    int64
}

// MemoryStore is a concurrency-safe in-memory implementation of Store. It
// mirrors the SQLite store's semantics and backs the test suites.
type MemoryStore struct {
	mu sync.RWMutex

	tokens   map[string]netatmo.Token
	stations map[string]netatmo.Station
	modules  map[string]netatmo.Module
	measures map[measureKey]netatmo.Measure
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]netatmo.Token),
		stations: make(map[string]netatmo.Station),
		modules:  make(map[string]netatmo.Module),
		measures: make(map[measureKey]netatmo.Measure),
	}
}

func (s *MemoryStore) Token(_ context.Context, name string) (netatmo.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[name]
	if !ok {
		return netatmo.Token{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) SaveTokenPair(_ context.Context, auth, refresh netatmo.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[auth.Name] = auth
	s.tokens[refresh.Name] = refresh
	return nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, name)
	return nil
}

func (s *MemoryStore) EnsureStation(_ context.Context, st netatmo.Station) (netatmo.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.stations[st.ID]; ok {
		return existing, nil
	}
	s.stations[st.ID] = st
	return st, nil
}

func (s *MemoryStore) Station(_ context.Context, id string) (netatmo.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[id]
	if !ok {
		return netatmo.Station{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) Stations(_ context.Context) ([]netatmo.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]netatmo.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) EnsureModule(_ context.Context, m netatmo.Module) (netatmo.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.modules[m.ID]; ok {
		return existing, nil
	}
	s.modules[m.ID] = m
	return m, nil
}

func (s *MemoryStore) ModulesOf(_ context.Context, stationID string) ([]netatmo.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []netatmo.Module
	for _, m := range s.modules {
		if m.StationID == stationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) InsertMeasure(_ context.Context, m netatmo.Measure) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := measureKey{
		stationID: m.StationID,
		moduleID:  m.ModuleID,
		typ:       m.Type,
		tsUnix:    m.Timestamp.UTC().Unix(),
	}
	if _, exists := s.measures[key]; exists {
		return false, nil
	}
	s.measures[key] = m
	return true, nil
}

func (s *MemoryStore) LastMeasureTime(_ context.Context, stationID, moduleID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last int64
	found := false
	for key := range s.measures {
		if key.stationID != stationID || key.moduleID != moduleID {
			continue
		}
		if !found || key.tsUnix > last {
			last = key.tsUnix
			found = true
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return time.Unix(last, 0), true, nil
}

func (s *MemoryStore) Measures(_ context.Context, f MeasureFilter) ([]netatmo.Measure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantType := make(map[netatmo.MeasureType]bool, len(f.Types))
	for _, t := range f.Types {
		wantType[t] = true
	}

	fromUnix := f.From.UTC().Unix()
	toUnix := f.To.UTC().Unix()

	var out []netatmo.Measure
	for key, m := range s.measures {
		if key.stationID != f.StationID || key.moduleID != f.ModuleID {
			continue
		}
		if !wantType[key.typ] {
			continue
		}
		if key.tsUnix < fromUnix || key.tsUnix > toUnix {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
