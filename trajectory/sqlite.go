package trajectory

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	_ "modernc.org/sqlite"

	"github.com/comalice/trainscope/contour"
)

//go:embed schema.sql
var schema string

const (
	metaBatchesPerEpoch = "batches_per_epoch"
	metaSteps           = "steps"
)

// SQLite persists a cache in a SQLite database. Save replaces whatever
// cache the database held.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and creates the tables.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

// Close releases the connection.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Save(ctx context.Context, c *Cache) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"meta", "points", "step_columns", "step_contours", "step_fields", "epoch_metrics"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	meta := map[string]string{
		metaBatchesPerEpoch: strconv.Itoa(c.BatchesPerEpoch),
		metaSteps:           strconv.Itoa(len(c.Steps)),
	}
	for k, v := range meta {
		if _, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	for i := range c.Points.X {
		if _, err = tx.ExecContext(ctx, `INSERT INTO points (row, x, y, class) VALUES (?, ?, ?, ?)`,
			i, c.Points.X[i], c.Points.Y[i], c.Points.Class[i]); err != nil {
			return fmt.Errorf("insert point %d: %w", i, err)
		}
	}

	for step, st := range c.Steps {
		if err = saveStep(ctx, tx, step, st); err != nil {
			return err
		}
	}

	for name, v := range c.Metrics {
		var data []byte
		if data, err = json.Marshal(v); err != nil {
			return fmt.Errorf("encode metric %q: %w", name, err)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO epoch_metrics (name, data) VALUES (?, ?)`, name, string(data)); err != nil {
			return fmt.Errorf("insert metric %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func saveStep(ctx context.Context, tx *sql.Tx, step int, st Step) error {
	insertColumn := func(name string, kind Kind, values any) error {
		data, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("encode step %d column %q: %w", step, name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO step_columns (step, name, kind, data) VALUES (?, ?, ?, ?)`,
			step, name, string(kind), string(data)); err != nil {
			return fmt.Errorf("insert step %d column %q: %w", step, name, err)
		}
		return nil
	}
	for name, v := range st.Floats {
		if err := insertColumn(name, KindFloat, v); err != nil {
			return err
		}
	}
	for name, v := range st.Strings {
		if err := insertColumn(name, KindString, v); err != nil {
			return err
		}
	}

	for i, line := range st.Contour {
		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("encode step %d contour: %w", step, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO step_contours (step, line, data) VALUES (?, ?, ?)`,
			step, i, string(data)); err != nil {
			return fmt.Errorf("insert step %d contour: %w", step, err)
		}
	}

	if st.Field != nil {
		grid, err := json.Marshal(st.Field.Grid)
		if err != nil {
			return fmt.Errorf("encode step %d grid: %w", step, err)
		}
		values, err := json.Marshal(st.Field.Values)
		if err != nil {
			return fmt.Errorf("encode step %d field: %w", step, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO step_fields (step, grid, data) VALUES (?, ?, ?)`,
			step, string(grid), string(values)); err != nil {
			return fmt.Errorf("insert step %d field: %w", step, err)
		}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) (*Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta, err := s.meta(ctx)
	if err != nil {
		return nil, err
	}
	steps, err := strconv.Atoi(meta[metaSteps])
	if err != nil {
		return nil, fmt.Errorf("meta %s: %w", metaSteps, err)
	}
	bpe, err := strconv.Atoi(meta[metaBatchesPerEpoch])
	if err != nil {
		return nil, fmt.Errorf("meta %s: %w", metaBatchesPerEpoch, err)
	}

	c := &Cache{BatchesPerEpoch: bpe, Steps: make([]Step, steps)}
	if err := s.loadPoints(ctx, c); err != nil {
		return nil, err
	}
	if err := s.loadColumns(ctx, c); err != nil {
		return nil, err
	}
	if err := s.loadContours(ctx, c); err != nil {
		return nil, err
	}
	if err := s.loadFields(ctx, c); err != nil {
		return nil, err
	}
	if err := s.loadMetrics(ctx, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLite) meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: database holds no cache", ErrInvalidCache)
	}
	return out, nil
}

func (s *SQLite) loadPoints(ctx context.Context, c *Cache) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT x, y, class FROM points ORDER BY row`)
	if err != nil {
		return fmt.Errorf("load points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var x, y float64
		var class int
		if err := rows.Scan(&x, &y, &class); err != nil {
			return fmt.Errorf("scan point: %w", err)
		}
		c.Points.X = append(c.Points.X, x)
		c.Points.Y = append(c.Points.Y, y)
		c.Points.Class = append(c.Points.Class, class)
	}
	return rows.Err()
}

func (s *SQLite) loadColumns(ctx context.Context, c *Cache) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT step, name, kind, data FROM step_columns ORDER BY step, name`)
	if err != nil {
		return fmt.Errorf("load step columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			step             int
			name, kind, data string
		)
		if err := rows.Scan(&step, &name, &kind, &data); err != nil {
			return fmt.Errorf("scan step column: %w", err)
		}
		st, err := stepAt(c, step)
		if err != nil {
			return err
		}
		switch Kind(kind) {
		case KindFloat:
			var v []float64
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				return fmt.Errorf("decode step %d column %q: %w", step, name, err)
			}
			if st.Floats == nil {
				st.Floats = make(map[string][]float64)
			}
			st.Floats[name] = v
		case KindString:
			var v []string
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				return fmt.Errorf("decode step %d column %q: %w", step, name, err)
			}
			if st.Strings == nil {
				st.Strings = make(map[string][]string)
			}
			st.Strings[name] = v
		default:
			return fmt.Errorf("%w: step %d column %q has kind %q", ErrInvalidCache, step, name, kind)
		}
	}
	return rows.Err()
}

func (s *SQLite) loadContours(ctx context.Context, c *Cache) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT step, data FROM step_contours ORDER BY step, line`)
	if err != nil {
		return fmt.Errorf("load contours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			step int
			data string
		)
		if err := rows.Scan(&step, &data); err != nil {
			return fmt.Errorf("scan contour: %w", err)
		}
		st, err := stepAt(c, step)
		if err != nil {
			return err
		}
		var line orb.LineString
		if err := json.Unmarshal([]byte(data), &line); err != nil {
			return fmt.Errorf("decode step %d contour: %w", step, err)
		}
		st.Contour = append(st.Contour, line)
	}
	return rows.Err()
}

func (s *SQLite) loadFields(ctx context.Context, c *Cache) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT step, grid, data FROM step_fields ORDER BY step`)
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			step       int
			grid, data string
		)
		if err := rows.Scan(&step, &grid, &data); err != nil {
			return fmt.Errorf("scan field: %w", err)
		}
		st, err := stepAt(c, step)
		if err != nil {
			return err
		}
		f := &contour.Field{}
		if err := json.Unmarshal([]byte(grid), &f.Grid); err != nil {
			return fmt.Errorf("decode step %d grid: %w", step, err)
		}
		if err := json.Unmarshal([]byte(data), &f.Values); err != nil {
			return fmt.Errorf("decode step %d field: %w", step, err)
		}
		st.Field = f
	}
	return rows.Err()
}

func (s *SQLite) loadMetrics(ctx context.Context, c *Cache) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name, data FROM epoch_metrics ORDER BY name`)
	if err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return fmt.Errorf("scan metric: %w", err)
		}
		var v []float64
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return fmt.Errorf("decode metric %q: %w", name, err)
		}
		if c.Metrics == nil {
			c.Metrics = make(map[string][]float64)
		}
		c.Metrics[name] = v
	}
	return rows.Err()
}

func stepAt(c *Cache, step int) (*Step, error) {
	if step < 0 || step >= len(c.Steps) {
		return nil, fmt.Errorf("%w: step %d out of range [0, %d)", ErrInvalidCache, step, len(c.Steps))
	}
	return &c.Steps[step], nil
}
