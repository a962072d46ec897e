package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atmosync/atmosync/internal/netatmo"
)

// each named constructor returns a fresh empty Store
func storeImpls(t *testing.T) map[string]Store {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlStore := NewSQLStore(db)
	if err := sqlStore.InitDB(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return map[string]Store{
		"sqlite": sqlStore,
		"memory": NewMemoryStore(),
	}
}

func TestNewDBUnreachableFile(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "missing-dir", "test.db"))
	if err == nil {
		db.Close()
		t.Fatal("expected an error for a database file in a missing directory")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Token(ctx, netatmo.TokenNameAuth); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for fresh store, got %v", err)
			}

			expires := time.Now().Add(time.Hour)
			err := s.SaveTokenPair(ctx,
				netatmo.Token{Name: netatmo.TokenNameAuth, Value: "at1", ExpiresAt: expires},
				netatmo.Token{Name: netatmo.TokenNameRefresh, Value: "rt1", ExpiresAt: expires},
			)
			if err != nil {
				t.Fatalf("save pair: %v", err)
			}

			got, err := s.Token(ctx, netatmo.TokenNameAuth)
			if err != nil {
				t.Fatalf("read token: %v", err)
			}
			if got.Value != "at1" {
				t.Fatalf("token value = %q, want at1", got.Value)
			}

			// replacing updates in place, no second record to trip on
			err = s.SaveTokenPair(ctx,
				netatmo.Token{Name: netatmo.TokenNameAuth, Value: "at2", ExpiresAt: expires},
				netatmo.Token{Name: netatmo.TokenNameRefresh, Value: "rt2", ExpiresAt: expires},
			)
			if err != nil {
				t.Fatalf("second save: %v", err)
			}
			got, err = s.Token(ctx, netatmo.TokenNameRefresh)
			if err != nil {
				t.Fatalf("read refresh token: %v", err)
			}
			if got.Value != "rt2" {
				t.Fatalf("refresh token = %q, want rt2", got.Value)
			}

			if err := s.DeleteToken(ctx, netatmo.TokenNameAuth); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Token(ctx, netatmo.TokenNameAuth); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			// deleting again is a no-op
			if err := s.DeleteToken(ctx, netatmo.TokenNameAuth); err != nil {
				t.Fatalf("second delete: %v", err)
			}
			// refresh token untouched
			if _, err := s.Token(ctx, netatmo.TokenNameRefresh); err != nil {
				t.Fatalf("refresh token should survive auth delete: %v", err)
			}
		})
	}
}

func TestEnsureStationNeverOverwrites(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.EnsureStation(ctx, netatmo.Station{ID: "st1", Name: "Living Room", Type: "NAMain"})
			if err != nil {
				t.Fatalf("ensure: %v", err)
			}
			if first.Name != "Living Room" {
				t.Fatalf("stored name = %q", first.Name)
			}

			again, err := s.EnsureStation(ctx, netatmo.Station{ID: "st1", Name: "Renamed", Type: "NAModule1"})
			if err != nil {
				t.Fatalf("re-ensure: %v", err)
			}
			if again.Name != "Living Room" || again.Type != "NAMain" {
				t.Fatalf("re-discovery must not overwrite, got %+v", again)
			}

			stations, err := s.Stations(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(stations) != 1 {
				t.Fatalf("expected 1 station, got %d", len(stations))
			}
		})
	}
}

func TestModulesOf(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.EnsureStation(ctx, netatmo.Station{ID: "st1", Name: "Base", Type: "NAMain"}); err != nil {
				t.Fatalf("station: %v", err)
			}
			if _, err := s.EnsureStation(ctx, netatmo.Station{ID: "st2", Name: "Other", Type: "NAMain"}); err != nil {
				t.Fatalf("station: %v", err)
			}
			if _, err := s.EnsureModule(ctx, netatmo.Module{ID: "m1", Name: "Outdoor", Type: "NAModule1", StationID: "st1"}); err != nil {
				t.Fatalf("module: %v", err)
			}
			if _, err := s.EnsureModule(ctx, netatmo.Module{ID: "m2", Name: "Rain", Type: "NAModule3", StationID: "st2"}); err != nil {
				t.Fatalf("module: %v", err)
			}

			modules, err := s.ModulesOf(ctx, "st1")
			if err != nil {
				t.Fatalf("modulesOf: %v", err)
			}
			if len(modules) != 1 || modules[0].ID != "m1" {
				t.Fatalf("unexpected modules for st1: %+v", modules)
			}
		})
	}
}

func TestInsertMeasureDeduplicates(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.Unix(1000, 0)

			m := netatmo.Measure{StationID: "st1", Type: netatmo.Temperature, Value: 21.5, Timestamp: ts}
			written, err := s.InsertMeasure(ctx, m)
			if err != nil || !written {
				t.Fatalf("first insert: written=%v err=%v", written, err)
			}

			// same identity, different value: ignored, no update
			m.Value = 99
			written, err = s.InsertMeasure(ctx, m)
			if err != nil {
				t.Fatalf("duplicate insert: %v", err)
			}
			if written {
				t.Fatal("duplicate (timestamp,type) must not be written")
			}

			// same timestamp and type on a module of the same station is a
			// different device scope and must be stored
			written, err = s.InsertMeasure(ctx, netatmo.Measure{
				StationID: "st1", ModuleID: "m1", Type: netatmo.Temperature, Value: 18, Timestamp: ts,
			})
			if err != nil || !written {
				t.Fatalf("module-scoped insert: written=%v err=%v", written, err)
			}

			got, err := s.Measures(ctx, MeasureFilter{
				StationID: "st1",
				Types:     []netatmo.MeasureType{netatmo.Temperature},
				From:      ts,
				To:        ts,
				Ascending: true,
			})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 station-scoped measure, got %d", len(got))
			}
			if got[0].Value != 21.5 {
				t.Fatalf("value = %v, want the first write preserved", got[0].Value)
			}
		})
	}
}

func TestLastMeasureTime(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.LastMeasureTime(ctx, "st1", ""); err != nil || ok {
				t.Fatalf("empty device: ok=%v err=%v", ok, err)
			}

			for _, unix := range []int64{1000, 4000, 2000} {
				if _, err := s.InsertMeasure(ctx, netatmo.Measure{
					StationID: "st1", Type: netatmo.Temperature, Value: 1, Timestamp: time.Unix(unix, 0),
				}); err != nil {
					t.Fatalf("insert: %v", err)
				}
			}
			// another scope, newer; must not leak into st1 station scope
			if _, err := s.InsertMeasure(ctx, netatmo.Measure{
				StationID: "st1", ModuleID: "m1", Type: netatmo.Temperature, Value: 1, Timestamp: time.Unix(9000, 0),
			}); err != nil {
				t.Fatalf("insert: %v", err)
			}

			ts, ok, err := s.LastMeasureTime(ctx, "st1", "")
			if err != nil || !ok {
				t.Fatalf("last: ok=%v err=%v", ok, err)
			}
			if ts.Unix() != 4000 {
				t.Fatalf("last = %d, want 4000", ts.Unix())
			}
		})
	}
}

func TestMeasuresRangeAndOrder(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, unix := range []int64{1000, 2000, 3000, 4000} {
				if _, err := s.InsertMeasure(ctx, netatmo.Measure{
					StationID: "st1", Type: netatmo.Temperature, Value: float64(unix), Timestamp: time.Unix(unix, 0),
				}); err != nil {
					t.Fatalf("insert: %v", err)
				}
			}
			if _, err := s.InsertMeasure(ctx, netatmo.Measure{
				StationID: "st1", Type: netatmo.CO2, Value: 600, Timestamp: time.Unix(2000, 0),
			}); err != nil {
				t.Fatalf("insert: %v", err)
			}

			// inclusive bounds, type filtered, ascending
			got, err := s.Measures(ctx, MeasureFilter{
				StationID: "st1",
				Types:     []netatmo.MeasureType{netatmo.Temperature},
				From:      time.Unix(2000, 0),
				To:        time.Unix(4000, 0),
				Ascending: true,
			})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 measures, got %d", len(got))
			}
			for i, wantUnix := range []int64{2000, 3000, 4000} {
				if got[i].Timestamp.Unix() != wantUnix {
					t.Errorf("asc[%d] = %d, want %d", i, got[i].Timestamp.Unix(), wantUnix)
				}
			}

			// descending
			got, err = s.Measures(ctx, MeasureFilter{
				StationID: "st1",
				Types:     []netatmo.MeasureType{netatmo.Temperature, netatmo.CO2},
				From:      time.Unix(1000, 0),
				To:        time.Unix(2000, 0),
				Ascending: false,
			})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 measures, got %d", len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i].Timestamp.After(got[i-1].Timestamp) {
					t.Fatalf("descending order violated at %d", i)
				}
			}
		})
	}
}
