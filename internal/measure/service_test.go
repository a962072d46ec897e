package measure

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/atmosync/atmosync/internal/netatmo"
	"github.com/atmosync/atmosync/internal/netatmo/client"
	"github.com/atmosync/atmosync/internal/store"
)

var (
	mainStation = netatmo.Station{ID: "st1", Name: "Base", Type: "NAMain"}
	rainModule  = netatmo.Module{ID: "m1", Name: "Garden", Type: "NAModule3", StationID: "st1"}
)

func newService() (*Service, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewService(st, nil, 0), st
}

func TestIngestComputesTimestampsFromStep(t *testing.T) {
	svc, _ := newService()

	station := netatmo.Station{ID: "st1", Name: "Rain base", Type: "NAModule3"}
	payload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: 1000, StepTime: 300, Value: [][]any{{21.5}, {22.0}}},
	}}

	ingested, skipped, err := svc.Ingest(context.Background(), payload, station, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ingested != 2 || skipped != 0 {
		t.Fatalf("ingested=%d skipped=%d, want 2/0", ingested, skipped)
	}

	got, err := svc.Query(context.Background(), station, nil,
		[]netatmo.MeasureType{netatmo.Rain}, time.Unix(0, 0), time.Unix(5000, 0), true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 measures, got %d", len(got))
	}
	if got[0].Timestamp.Unix() != 1000 || got[0].Value != 21.5 {
		t.Fatalf("first sample = %+v", got[0])
	}
	if got[1].Timestamp.Unix() != 1300 || got[1].Value != 22.0 {
		t.Fatalf("second sample = %+v", got[1])
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	svc, _ := newService()

	payload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: 1000, StepTime: 300, Value: [][]any{
			{20.0, 450.0, 55.0, 1013.0, 38.0},
			{20.5, 460.0, 54.0, 1013.5, 40.0},
		}},
	}}

	first, _, err := svc.Ingest(context.Background(), payload, mainStation, nil)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first != 10 {
		t.Fatalf("first ingest wrote %d, want 10", first)
	}

	second, skipped, err := svc.Ingest(context.Background(), payload, mainStation, nil)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second != 0 || skipped != 10 {
		t.Fatalf("re-ingest wrote %d, skipped %d; want 0/10", second, skipped)
	}
}

func TestIngestZipsAgainstDeviceTypeOrder(t *testing.T) {
	svc, _ := newService()

	// NAMain order: Temperature, CO2, Humidity, Pressure, Noise
	payload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: 2000, Value: [][]any{{19.5, 480.0, 61.0, 1008.0, 35.0}}},
	}}

	if _, _, err := svc.Ingest(context.Background(), payload, mainStation, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	tests := []struct {
		typ  netatmo.MeasureType
		want float64
	}{
		{netatmo.Temperature, 19.5},
		{netatmo.CO2, 480.0},
		{netatmo.Humidity, 61.0},
		{netatmo.Pressure, 1008.0},
		{netatmo.Noise, 35.0},
	}
	for _, tc := range tests {
		got, err := svc.Query(context.Background(), mainStation, nil,
			[]netatmo.MeasureType{tc.typ}, time.Unix(2000, 0), time.Unix(2000, 0), true)
		if err != nil {
			t.Fatalf("query %s: %v", tc.typ, err)
		}
		if len(got) != 1 || got[0].Value != tc.want {
			t.Fatalf("%s = %+v, want value %v", tc.typ, got, tc.want)
		}
	}
}

func TestIngestSkipsNullAndNonNumericSlots(t *testing.T) {
	svc, _ := newService()

	payload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: 3000, Value: [][]any{{nil, "n/a", 60.0, 1010.0, 30.0}}},
	}}

	ingested, _, err := svc.Ingest(context.Background(), payload, mainStation, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ingested != 3 {
		t.Fatalf("ingested %d, want 3 (null and non-numeric slots skipped)", ingested)
	}

	got, err := svc.Query(context.Background(), mainStation, nil,
		[]netatmo.MeasureType{netatmo.Temperature, netatmo.CO2}, time.Unix(3000, 0), time.Unix(3000, 0), true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("skipped slots must not be stored, got %+v", got)
	}
}

func TestIngestModuleOverridesStationTypes(t *testing.T) {
	svc, _ := newService()

	payload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: 4000, Value: [][]any{{1.2}}},
	}}

	if _, _, err := svc.Ingest(context.Background(), payload, mainStation, &rainModule); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// the sample is typed by the module (Rain), scoped to the module
	got, err := svc.Query(context.Background(), mainStation, &rainModule,
		[]netatmo.MeasureType{netatmo.Rain}, time.Unix(4000, 0), time.Unix(4000, 0), true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Value != 1.2 || got[0].ModuleID != rainModule.ID {
		t.Fatalf("unexpected module measures: %+v", got)
	}
}

func TestDeviceScoping(t *testing.T) {
	svc, _ := newService()
	ts := time.Unix(5000, 0)

	stationPayload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: ts.Unix(), Value: [][]any{{20.0, 400.0, 50.0, 1000.0, 30.0}}},
	}}
	if _, _, err := svc.Ingest(context.Background(), stationPayload, mainStation, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// a station-owned measure is never visible through a module scope
	got, err := svc.Query(context.Background(), mainStation, &rainModule,
		[]netatmo.MeasureType{netatmo.Temperature, netatmo.Rain}, time.Unix(0, 0), time.Unix(9000, 0), true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("station measures leaked into module scope: %+v", got)
	}

	modulePayload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: ts.Unix(), Value: [][]any{{3.4}}},
	}}
	if _, _, err := svc.Ingest(context.Background(), modulePayload, mainStation, &rainModule); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// and a module measure is never visible through the station scope
	got, err = svc.Query(context.Background(), mainStation, nil,
		[]netatmo.MeasureType{netatmo.Rain}, time.Unix(0, 0), time.Unix(9000, 0), true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("module measures leaked into station scope: %+v", got)
	}
}

func TestLastMeasureTimeFloor(t *testing.T) {
	svc, _ := newService()

	before := time.Now().Add(-DefaultLookback)
	got, err := svc.LastMeasureTime(context.Background(), mainStation, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := time.Now().Add(-DefaultLookback)

	if got.Before(before.Add(-time.Second)) || got.After(after.Add(time.Second)) {
		t.Fatalf("floor = %v, want ~now-24h", got)
	}
}

func TestLastMeasureTimeReturnsNewestSample(t *testing.T) {
	svc, _ := newService()

	payload := &client.MeasureResponse{Body: []client.MeasureBlock{
		{BegTime: 1000, StepTime: 500, Value: [][]any{{20.0, 400.0, 50.0, 1000.0, 30.0}, {21.0, 410.0, 51.0, 1001.0, 31.0}}},
	}}
	if _, _, err := svc.Ingest(context.Background(), payload, mainStation, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, err := svc.LastMeasureTime(context.Background(), mainStation, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Unix() != 1500 {
		t.Fatalf("last = %d, want 1500", got.Unix())
	}
}

// TestQueryRangeProperty generates random measure sets and checks the range
// query against a straightforward filter of the same data.
func TestQueryRangeProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		svc, _ := newService()
		station := netatmo.Station{ID: "st1", Name: "Base", Type: "NAMain"}
		types := station.MeasurementTypes()

		type sample struct {
			ts  int64
			typ netatmo.MeasureType
			val float64
		}
		seen := map[[2]int64]bool{}
		var samples []sample
		for i := 0; i < 100; i++ {
			s := sample{
				ts:  int64(rng.Intn(10000)),
				typ: types[rng.Intn(len(types))],
				val: rng.Float64() * 100,
			}
			key := [2]int64{s.ts, int64(s.typ)}
			if seen[key] {
				continue
			}
			seen[key] = true
			samples = append(samples, s)

			if _, err := svc.store.InsertMeasure(context.Background(), netatmo.Measure{
				StationID: station.ID,
				Type:      s.typ,
				Value:     s.val,
				Timestamp: time.Unix(s.ts, 0),
			}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		from := int64(rng.Intn(5000))
		to := from + int64(rng.Intn(5000))
		queryTypes := types[:1+rng.Intn(len(types))]
		wantType := map[netatmo.MeasureType]bool{}
		for _, typ := range queryTypes {
			wantType[typ] = true
		}

		want := 0
		for _, s := range samples {
			if s.ts >= from && s.ts <= to && wantType[s.typ] {
				want++
			}
		}

		got, err := svc.Query(context.Background(), station, nil, queryTypes,
			time.Unix(from, 0), time.Unix(to, 0), round%2 == 0)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != want {
			t.Fatalf("round %d: got %d measures, want %d", round, len(got), want)
		}
		for i := 1; i < len(got); i++ {
			asc := round%2 == 0
			if asc && got[i].Timestamp.Before(got[i-1].Timestamp) {
				t.Fatalf("round %d: ascending order violated", round)
			}
			if !asc && got[i].Timestamp.After(got[i-1].Timestamp) {
				t.Fatalf("round %d: descending order violated", round)
			}
		}
		for _, m := range got {
			if !wantType[m.Type] {
				t.Fatalf("round %d: unexpected type %v", round, m.Type)
			}
			if m.Timestamp.Unix() < from || m.Timestamp.Unix() > to {
				t.Fatalf("round %d: timestamp %d outside [%d,%d]", round, m.Timestamp.Unix(), from, to)
			}
		}
	}
}
