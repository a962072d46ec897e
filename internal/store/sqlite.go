package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atmosync/atmosync/internal/netatmo"
)

// NewDB opens the SQLite database file with WAL journaling and foreign keys
// enabled.
func NewDB(fileName string) (*sql.DB, error) {
	uri := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", fileName)
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return db, nil
}

// SQLStore implements Store on SQLite. Timestamps are stored as unix
// seconds.
type SQLStore struct {
	DB *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// InitDB creates the schema if it does not exist yet.
func (s *SQLStore) InitDB(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS token (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at_unix INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS station (
			station_id TEXT PRIMARY KEY,
			station_name TEXT NOT NULL,
			station_type TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS module (
			module_id TEXT PRIMARY KEY,
			module_name TEXT NOT NULL,
			module_type TEXT NOT NULL,
			station_id TEXT NOT NULL REFERENCES station(station_id)
		)`,
		`CREATE TABLE IF NOT EXISTS measure (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id TEXT NOT NULL,
			module_id TEXT NOT NULL DEFAULT '',
			type INTEGER NOT NULL,
			value REAL NOT NULL,
			timestamp_unix INTEGER NOT NULL,
			UNIQUE(station_id, module_id, type, timestamp_unix)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_measure_device_ts
			ON measure(station_id, module_id, timestamp_unix)`,
		`CREATE INDEX IF NOT EXISTS idx_module_station
			ON module(station_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Token(ctx context.Context, name string) (netatmo.Token, error) {
	var t netatmo.Token
	var expiresUnix int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT name, value, expires_at_unix FROM token WHERE name = ?`, name,
	).Scan(&t.Name, &t.Value, &expiresUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return netatmo.Token{}, ErrNotFound
	}
	if err != nil {
		return netatmo.Token{}, err
	}
	t.ExpiresAt = time.Unix(expiresUnix, 0)
	return t, nil
}

func (s *SQLStore) SaveTokenPair(ctx context.Context, auth, refresh netatmo.Token) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	upsert := `
		INSERT INTO token (name, value, expires_at_unix)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			expires_at_unix = excluded.expires_at_unix
	`
	for _, t := range []netatmo.Token{auth, refresh} {
		if _, err := tx.ExecContext(ctx, upsert, t.Name, t.Value, t.ExpiresAt.UTC().Unix()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) DeleteToken(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM token WHERE name = ?`, name)
	return err
}

func (s *SQLStore) EnsureStation(ctx context.Context, st netatmo.Station) (netatmo.Station, error) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO station (station_id, station_name, station_type)
		 VALUES (?, ?, ?)
		 ON CONFLICT(station_id) DO NOTHING`,
		st.ID, st.Name, st.Type)
	if err != nil {
		return netatmo.Station{}, err
	}
	return s.Station(ctx, st.ID)
}

func (s *SQLStore) Station(ctx context.Context, id string) (netatmo.Station, error) {
	var st netatmo.Station
	err := s.DB.QueryRowContext(ctx,
		`SELECT station_id, station_name, station_type FROM station WHERE station_id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return netatmo.Station{}, ErrNotFound
	}
	if err != nil {
		return netatmo.Station{}, err
	}
	return st, nil
}

func (s *SQLStore) Stations(ctx context.Context) ([]netatmo.Station, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT station_id, station_name, station_type FROM station ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []netatmo.Station
	for rows.Next() {
		var st netatmo.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Type); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) EnsureModule(ctx context.Context, m netatmo.Module) (netatmo.Module, error) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO module (module_id, module_name, module_type, station_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(module_id) DO NOTHING`,
		m.ID, m.Name, m.Type, m.StationID)
	if err != nil {
		return netatmo.Module{}, err
	}

	var stored netatmo.Module
	err = s.DB.QueryRowContext(ctx,
		`SELECT module_id, module_name, module_type, station_id FROM module WHERE module_id = ?`, m.ID,
	).Scan(&stored.ID, &stored.Name, &stored.Type, &stored.StationID)
	if err != nil {
		return netatmo.Module{}, err
	}
	return stored, nil
}

func (s *SQLStore) ModulesOf(ctx context.Context, stationID string) ([]netatmo.Module, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT module_id, module_name, module_type, station_id
		 FROM module WHERE station_id = ? ORDER BY module_id`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []netatmo.Module
	for rows.Next() {
		var m netatmo.Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.StationID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertMeasure(ctx context.Context, m netatmo.Measure) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO measure (station_id, module_id, type, value, timestamp_unix)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(station_id, module_id, type, timestamp_unix) DO NOTHING`,
		m.StationID, m.ModuleID, int(m.Type), m.Value, m.Timestamp.UTC().Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) LastMeasureTime(ctx context.Context, stationID, moduleID string) (time.Time, bool, error) {
	var tsUnix sql.NullInt64
	err := s.DB.QueryRowContext(ctx,
		`SELECT MAX(timestamp_unix) FROM measure WHERE station_id = ? AND module_id = ?`,
		stationID, moduleID,
	).Scan(&tsUnix)
	if err != nil {
		return time.Time{}, false, err
	}
	if !tsUnix.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(tsUnix.Int64, 0), true, nil
}

func (s *SQLStore) Measures(ctx context.Context, f MeasureFilter) ([]netatmo.Measure, error) {
	if len(f.Types) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(f.Types)), ",")
	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}

	q := fmt.Sprintf(`
		SELECT station_id, module_id, type, value, timestamp_unix
		FROM measure
		WHERE station_id = ? AND module_id = ?
			AND timestamp_unix >= ? AND timestamp_unix <= ?
			AND type IN (%s)
		ORDER BY timestamp_unix %s
	`, placeholders, order)

	args := []any{f.StationID, f.ModuleID, f.From.UTC().Unix(), f.To.UTC().Unix()}
	for _, t := range f.Types {
		args = append(args, int(t))
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []netatmo.Measure
	for rows.Next() {
		var m netatmo.Measure
		var typ int
		var tsUnix int64
		if err := rows.Scan(&m.StationID, &m.ModuleID, &typ, &m.Value, &tsUnix); err != nil {
			return nil, err
		}
		m.Type = netatmo.MeasureType(typ)
		m.Timestamp = time.Unix(tsUnix, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}
