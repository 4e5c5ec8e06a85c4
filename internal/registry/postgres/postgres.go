// Package postgres provides the PostgreSQL-backed package registry and
// checksum store, with metrics.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/checksum"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
	"github.com/debsources/debsources/internal/registry"
)

// Store is a PostgreSQL registry. It implements registry.Registry and
// checksum.Store.
type Store struct {
	db *sql.DB
}

var (
	_ registry.Registry = (*Store)(nil)
	_ checksum.Store    = (*Store)(nil)
)

// New connects to the database. Connection failures wrap
// archerr.ErrRegistryUnavailable so callers may retry.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("ping database", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	stats := s.db.Stats()
	metrics.SetDBConnectionsOpen(stats.OpenConnections)
}

// Migrate runs SQL migration files in name order. Migrations must be
// idempotent; all of them run on every start.
func (s *Store) Migrate(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}

	for _, f := range files {
		logging.Info("running migration", zap.String("file", filepath.Base(f)))
		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}

	return nil
}

// Versions implements registry.Registry.
func (s *Store) Versions(ctx context.Context, pkg string) ([]registry.Version, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("versions", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.version, p.vcs_type, p.vcs_browser
		 FROM packages p JOIN package_names n ON n.id = p.name_id
		 WHERE n.name = $1
		 ORDER BY p.version`, pkg)
	if err != nil {
		return nil, unavailable("query versions", err)
	}
	defer rows.Close()

	var vs []registry.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate versions", err)
	}

	if len(vs) == 0 {
		return nil, fmt.Errorf("%s: %w", pkg, archerr.ErrUnknownPackage)
	}
	return vs, nil
}

// Exists implements registry.Registry.
func (s *Store) Exists(ctx context.Context, pkg string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("exists", time.Since(start)) }()

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM packages p JOIN package_names n ON n.id = p.name_id
		   WHERE n.name = $1)`, pkg).Scan(&exists)
	if err != nil {
		return false, unavailable("query package", err)
	}
	return exists, nil
}

// Occurrences implements checksum.Store.
func (s *Store) Occurrences(ctx context.Context, key string) ([]checksum.Occurrence, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("checksum_occurrences", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT n.name, p.version, f.path
		 FROM checksums c
		 JOIN files f ON f.id = c.file_id
		 JOIN packages p ON p.id = c.package_id
		 JOIN package_names n ON n.id = p.name_id
		 WHERE c.sha256 = $1
		 ORDER BY n.name, p.version, f.path`, key)
	if err != nil {
		return nil, unavailable("query checksums", err)
	}
	defer rows.Close()

	occ := []checksum.Occurrence{}
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occ = append(occ, o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate checksums", err)
	}
	return occ, nil
}

// scanner is the row-reading part of *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (registry.Version, error) {
	var (
		v                   registry.Version
		vcsType, vcsBrowser sql.NullString
	)
	if err := row.Scan(&v.Number, &vcsType, &vcsBrowser); err != nil {
		return registry.Version{}, unavailable("scan version", err)
	}
	if vcsType.Valid || vcsBrowser.Valid {
		v.VCS = &registry.VCS{Type: vcsType.String, Browser: vcsBrowser.String}
	}
	return v, nil
}

func scanOccurrence(row scanner) (checksum.Occurrence, error) {
	var o checksum.Occurrence
	if err := row.Scan(&o.Package, &o.Version, &o.Path); err != nil {
		return checksum.Occurrence{}, unavailable("scan occurrence", err)
	}
	return o, nil
}

// unavailable marks a database failure as retryable. Cancellation is passed
// through unchanged.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, archerr.ErrRegistryUnavailable, err)
}
