package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-activity/internal/query"
)

// Point is one time-stamped record with tags and numeric fields.
type Point struct {
	Measurement string
	Time        time.Time
	Tags        map[string]string
	Fields      map[string]float64
}

// SQLiteStore is an embedded time-series store for local development and tests. Labels and field
// names are always bound as parameters.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" keeps everything in process.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			measurement TEXT NOT NULL,
			time_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS points_measurement_time ON points (measurement, time_ms);
		CREATE TABLE IF NOT EXISTS point_tags (
			point_id INTEGER NOT NULL REFERENCES points(id),
			key TEXT NOT NULL,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS point_tags_key_value ON point_tags (key, value);
		CREATE TABLE IF NOT EXISTS point_fields (
			point_id INTEGER NOT NULL REFERENCES points(id),
			field TEXT NOT NULL,
			value DOUBLE
		);
		CREATE INDEX IF NOT EXISTS point_fields_point ON point_fields (point_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WritePoints inserts points in one transaction.
func (s *SQLiteStore) WritePoints(ctx context.Context, points []Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		res, err := tx.ExecContext(ctx, "INSERT INTO points (measurement, time_ms) VALUES (?, ?)", p.Measurement, p.Time.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert point: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for k, v := range p.Tags {
			if _, err := tx.ExecContext(ctx, "INSERT INTO point_tags (point_id, key, value) VALUES (?, ?, ?)", id, k, v); err != nil {
				return fmt.Errorf("insert tag: %w", err)
			}
		}
		for f, v := range p.Fields {
			if _, err := tx.ExecContext(ctx, "INSERT INTO point_fields (point_id, field, value) VALUES (?, ?, ?)", id, f, v); err != nil {
				return fmt.Errorf("insert field: %w", err)
			}
		}
	}
	return tx.Commit()
}

type sqlitePoint struct {
	timeMs int64
	tags   map[string]string
	fields map[string]float64
}

// Query returns rows shaped like an InfluxDB result: a time column followed by the selected
// fields. Selecting the label key returns the tag value. An empty field list selects every tag
// and field in alphabetical order.
func (s *SQLiteStore) Query(ctx context.Context, q query.Query) (Result, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Labels)), ",")
	matching := fmt.Sprintf(`SELECT p.id FROM points p JOIN point_tags t ON t.point_id = p.id
		WHERE p.measurement = ? AND t.key = ? AND t.value IN (%s)`, placeholders)
	args := make([]any, 0, len(q.Labels)+2)
	args = append(args, q.Measurement, q.LabelKey)
	for _, l := range q.Labels {
		args = append(args, l)
	}

	points := make(map[int64]*sqlitePoint)
	var order []int64

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, time_ms FROM points WHERE id IN (%s) ORDER BY time_ms, id`, matching), args...)
	if err != nil {
		return Result{}, fmt.Errorf("select points: %w", err)
	}
	for rows.Next() {
		var id, ts int64
		if err := rows.Scan(&id, &ts); err != nil {
			rows.Close()
			return Result{}, err
		}
		points[id] = &sqlitePoint{timeMs: ts, tags: map[string]string{}, fields: map[string]float64{}}
		order = append(order, id)
	}
	if err := rows.Close(); err != nil {
		return Result{}, err
	}
	if len(order) == 0 {
		return Result{}, nil
	}

	tagRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT point_id, key, value FROM point_tags WHERE point_id IN (%s)`, matching), args...)
	if err != nil {
		return Result{}, fmt.Errorf("select tags: %w", err)
	}
	tagKeys := map[string]struct{}{}
	for tagRows.Next() {
		var id int64
		var k, v string
		if err := tagRows.Scan(&id, &k, &v); err != nil {
			tagRows.Close()
			return Result{}, err
		}
		if p, ok := points[id]; ok {
			p.tags[k] = v
			tagKeys[k] = struct{}{}
		}
	}
	if err := tagRows.Close(); err != nil {
		return Result{}, err
	}

	fieldRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT point_id, field, value FROM point_fields WHERE point_id IN (%s)`, matching), args...)
	if err != nil {
		return Result{}, fmt.Errorf("select fields: %w", err)
	}
	fieldKeys := map[string]struct{}{}
	for fieldRows.Next() {
		var id int64
		var f string
		var v sql.NullFloat64
		if err := fieldRows.Scan(&id, &f, &v); err != nil {
			fieldRows.Close()
			return Result{}, err
		}
		if p, ok := points[id]; ok && v.Valid {
			p.fields[f] = v.Float64
			fieldKeys[f] = struct{}{}
		}
	}
	if err := fieldRows.Close(); err != nil {
		return Result{}, err
	}

	columns := q.Fields
	if len(columns) == 0 {
		columns = make([]string, 0, len(tagKeys)+len(fieldKeys))
		for k := range tagKeys {
			columns = append(columns, k)
		}
		for f := range fieldKeys {
			if _, dup := tagKeys[f]; !dup {
				columns = append(columns, f)
			}
		}
		sort.Strings(columns)
	}

	result := Result{Columns: append([]string{"time"}, columns...)}
	for _, id := range order {
		p := points[id]
		row := make([]any, 0, len(columns)+1)
		row = append(row, p.timeMs)
		for _, c := range columns {
			if v, ok := p.fields[c]; ok {
				row = append(row, v)
			} else if v, ok := p.tags[c]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		result.Values = append(result.Values, row)
	}
	return result, nil
}

// Measurements lists every measurement with at least one point.
func (s *SQLiteStore) Measurements(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT measurement FROM points ORDER BY measurement`)
}

// LabelValues lists the distinct values of the tag key within measurement.
func (s *SQLiteStore) LabelValues(ctx context.Context, measurement, key string) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT t.value FROM point_tags t JOIN points p ON p.id = t.point_id
		WHERE p.measurement = ? AND t.key = ? ORDER BY t.value`, measurement, key)
}

// FieldKeys lists the field keys of measurement.
func (s *SQLiteStore) FieldKeys(ctx context.Context, measurement string) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT f.field FROM point_fields f JOIN points p ON p.id = f.point_id
		WHERE p.measurement = ? ORDER BY f.field`, measurement)
}

// Ping checks the database is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) strings(ctx context.Context, stmt string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
