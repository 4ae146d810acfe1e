package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/lidar/scanlog"
	"github.com/banshee-data/lidarsim/internal/lidar/storage"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("lidar run not found")

// Run sources.
const (
	SourceSensor = "sensor"
	SourceImport = "import"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Run describes one archived recording.
type Run struct {
	RunID      string    `json:"run_id"`
	Label      string    `json:"label,omitempty"`
	Source     string    `json:"source"`
	Digest     string    `json:"digest"`
	ScanKeys   int       `json:"scan_keys"`
	PointCount int       `json:"point_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Archive persists storage.Data snapshots as runs in a SQLite file.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the archive at path and migrates it to
// the latest schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	a := &Archive{db: db, path: path}
	if err := a.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database.
func (a *Archive) Close() error { return a.db.Close() }

// DB exposes the underlying handle for admin tooling.
func (a *Archive) DB() *sql.DB { return a.db }

// Path returns the database file path.
func (a *Archive) Path() string { return a.path }

// Digest hashes data in its canonical scan log encoding.
func Digest(data storage.Data) (string, error) {
	h := xxhash.New()
	if _, err := scanlog.Encode(h, data); err != nil {
		return "", fmt.Errorf("failed to hash run: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// SaveRun archives data. When an identical run already exists it is
// returned with created == false and nothing is written.
func (a *Archive) SaveRun(ctx context.Context, label, source string, data storage.Data) (run Run, created bool, err error) {
	digest, err := Digest(data)
	if err != nil {
		return Run{}, false, err
	}
	if existing, err := a.runByDigest(ctx, digest); err == nil {
		monitoring.Diagf("archive: run %s already holds digest %s", existing.RunID, digest)
		return existing, false, nil
	} else if !errors.Is(err, ErrRunNotFound) {
		return Run{}, false, err
	}

	run = Run{
		RunID:      uuid.New().String(),
		Label:      label,
		Source:     source,
		Digest:     digest,
		ScanKeys:   len(data),
		PointCount: data.PointCount(),
		CreatedAt:  time.Now().UTC(),
	}
	if run.Source == "" {
		run.Source = SourceSensor
	}

	err = retryOnBusy(func() error { return a.insertRun(ctx, run, data) })
	if err != nil {
		return Run{}, false, fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	monitoring.Opsf("archive: saved run %s (%d keys, %d points)", run.RunID, run.ScanKeys, run.PointCount)
	return run, true, nil
}

func (a *Archive) insertRun(ctx context.Context, run Run, data storage.Data) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lidar_runs (run_id, label, source, digest, scan_keys, point_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, nullString(run.Label), run.Source, run.Digest, run.ScanKeys, run.PointCount, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lidar_points (
			run_id, seq, scan_key, batch_index, x, y, z,
			radius, inclination, azimuth, laser_id, has_angles
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seq := 0
	for _, key := range data.SortedKeys() {
		for bi, b := range data[key] {
			for _, c := range b.Points {
				p := c.ToCartesian()
				if _, err := stmt.ExecContext(ctx,
					run.RunID, seq, key, bi, p.X, p.Y, p.Z,
					c.Radius(), c.Inclination(), c.Azimuth(), c.LaserID(), c.HasAngles(),
				); err != nil {
					return err
				}
				seq++
			}
		}
	}
	return tx.Commit()
}

// LoadRun rebuilds the data stored for runID, batches included. Batches
// without points are not archived and do not come back.
func (a *Archive) LoadRun(ctx context.Context, runID string) (storage.Data, error) {
	if _, err := a.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT scan_key, batch_index, x, y, z, radius, inclination, azimuth, laser_id, has_angles
		FROM lidar_points
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	data := make(storage.Data)
	lastBatch := make(map[float64]int)
	for rows.Next() {
		var (
			key, x, y, z, radius, incl, az float64
			batchIndex, laser              int
			hasAngles                      bool
		)
		if err := rows.Scan(&key, &batchIndex, &x, &y, &z, &radius, &incl, &az, &laser, &hasAngles); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p := r3.Vec{X: x, Y: y, Z: z}
		var c lidar.SphericalCoordinate
		if hasAngles {
			c = lidar.NewSphericalCoordinate(radius, incl, az, p, laser, key)
		} else {
			c = lidar.NewCartesianCoordinate(p, key)
		}

		batches := data[key]
		if prev, ok := lastBatch[key]; !ok || prev != batchIndex {
			batches = append(batches, lidar.ScanBatch{Key: key})
			lastBatch[key] = batchIndex
		}
		last := &batches[len(batches)-1]
		last.Points = append(last.Points, c)
		data[key] = batches
	}
	return data, rows.Err()
}

// GetRun returns the metadata for runID.
func (a *Archive) GetRun(ctx context.Context, runID string) (Run, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT run_id, label, source, digest, scan_keys, point_count, created_at
		FROM lidar_runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

func (a *Archive) runByDigest(ctx context.Context, digest string) (Run, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT run_id, label, source, digest, scan_keys, point_count, created_at
		FROM lidar_runs WHERE digest = ?`, digest)
	return scanRun(row)
}

// ListRuns returns every run, newest first.
func (a *Archive) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT run_id, label, source, digest, scan_keys, point_count, created_at
		FROM lidar_runs
		ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its points.
func (a *Archive) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		res, err := a.db.ExecContext(ctx, `DELETE FROM lidar_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r       Run
		label   sql.NullString
		created int64
	)
	err := row.Scan(&r.RunID, &label, &r.Source, &r.Digest, &r.ScanKeys, &r.PointCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Label = label.String
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	delay := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
