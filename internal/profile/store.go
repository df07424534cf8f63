package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Load when no profile has been saved yet.
var ErrNotFound = errors.New("profile not found")

const defaultDirPerm = 0o755

// Store persists the single rider profile.
type Store interface {
	Load(ctx context.Context) (UserProfile, error)
	Save(ctx context.Context, p UserProfile) error
	Close() error
}

type SQLiteStore struct {
	db     *sql.DB
	logger *zerolog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the profile database at path.
func NewSQLiteStore(path string, logger *zerolog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		panic("SQLiteStore: logger cannot be nil")
	}
	if path == "" {
		return nil, errors.New("profile database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, fmt.Errorf("could not create database directory: %w", err)
	}

	dsn := path + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open profile database: %w", err)
	}

	l := logger.With().Str("component", "profile_store").Logger()
	s := &SQLiteStore{db: db, logger: &l, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Int("schema_version", SchemaVersion).Msg("profile store initialized")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("schema init: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Debug().Err(err).Msg("failed to rollback schema transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("schema init: create tables: %w", err)
	}
	if _, err := tx.Exec(insertVersionSQL, SchemaVersion); err != nil {
		return fmt.Errorf("schema init: record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema init: commit: %w", err)
	}
	committed = true
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p UserProfile
	err := s.db.QueryRowContext(ctx, selectProfileSQL).Scan(&p.RestingHR, &p.MaxHR)
	if errors.Is(err, sql.ErrNoRows) {
		return UserProfile{}, ErrNotFound
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("could not load profile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, selectZonesSQL)
	if err != nil {
		return UserProfile{}, fmt.Errorf("could not load zones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			z    Zone
		)
		if err := rows.Scan(&kind, &z.Name, &z.Min, &z.Color); err != nil {
			return UserProfile{}, fmt.Errorf("could not scan zone: %w", err)
		}
		switch kind {
		case zoneKindPower:
			p.PowerZones = append(p.PowerZones, z)
		case zoneKindHeartRate:
			p.HeartRateZones = append(p.HeartRateZones, z)
		}
	}
	if err := rows.Err(); err != nil {
		return UserProfile{}, fmt.Errorf("could not read zones: %w", err)
	}
	return p, nil
}

// Save replaces the stored profile and both zone tables in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, p UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Debug().Err(err).Msg("failed to rollback save")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, upsertProfileSQL, p.RestingHR, p.MaxHR, s.now().UnixNano()); err != nil {
		return fmt.Errorf("could not save profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteZonesSQL); err != nil {
		return fmt.Errorf("could not clear zones: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertZoneSQL)
	if err != nil {
		return fmt.Errorf("could not prepare zone insert: %w", err)
	}
	defer stmt.Close()

	for kind, zones := range map[string][]Zone{
		zoneKindPower:     p.PowerZones,
		zoneKindHeartRate: p.HeartRateZones,
	} {
		for i, z := range zones {
			if _, err := stmt.ExecContext(ctx, kind, i, z.Name, z.Min, string(z.Color)); err != nil {
				return fmt.Errorf("could not save %s zone %d: %w", kind, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit profile: %w", err)
	}
	committed = true

	s.logger.Debug().
		Int("power_zones", len(p.PowerZones)).
		Int("heart_rate_zones", len(p.HeartRateZones)).
		Msg("profile saved")
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("could not close profile database: %w", err)
	}
	return nil
}

// LoadOrSeed returns the stored profile, saving seed first if the store is
// empty. With replace set, a stored profile that differs from seed is
// overwritten by seed.
func LoadOrSeed(ctx context.Context, store Store, seed UserProfile, replace bool) (UserProfile, error) {
	p, err := store.Load(ctx)
	switch {
	case err == nil:
		if !replace || p.Equal(seed) {
			if err := p.Validate(); err != nil {
				return UserProfile{}, fmt.Errorf("stored profile is invalid: %w", err)
			}
			return p, nil
		}
	case !errors.Is(err, ErrNotFound):
		return UserProfile{}, err
	}
	if err := store.Save(ctx, seed); err != nil {
		return UserProfile{}, fmt.Errorf("could not seed profile: %w", err)
	}
	return seed.Clone(), nil
}
