package profile

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore persists profiles in the profiles table. A partial unique
// index keeps at most one row active; the pointer moves inside a
// transaction so readers never observe two active profiles.
type PostgresStore struct {
	db *stdsql.DB
}

// NewPostgresStore connects, pings, and applies pending migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func runMigrations(db *stdsql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Store implements Store.
func (s *PostgresStore) Store(ctx context.Context, p Profile) (Profile, error) {
	normalize(&p)

	settings, err := json.Marshal(settingsOrEmpty(p.Settings))
	if err != nil {
		return Profile{}, fmt.Errorf("encode settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (id, name, provider, endpoint, model, key, settings, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			provider = EXCLUDED.provider,
			endpoint = EXCLUDED.endpoint,
			model = EXCLUDED.model,
			key = EXCLUDED.key,
			settings = EXCLUDED.settings,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Provider, p.Endpoint, p.Model, p.Key, settings,
		p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("upsert profile: %w", err)
	}

	// First profile in becomes active.
	_, err = tx.ExecContext(ctx, `
		UPDATE profiles SET active = TRUE
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM profiles WHERE active)`, p.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("seed active pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ListProfiles implements Store.
func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetActive implements Store.
func (s *PostgresStore) GetActive(ctx context.Context) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM profiles WHERE active`)
	p, err := scanProfile(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNoActiveProfile
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetActive implements Store.
func (s *PostgresStore) SetActive(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("clear active pointer: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET active = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set active pointer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Has implements Store.
func (s *PostgresStore) Has(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles)`).Scan(&exists)
	return exists, err
}

const selectColumns = `SELECT id, name, provider, endpoint, model, key, settings, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var settings []byte
	err := row.Scan(&p.ID, &p.Name, &p.Provider, &p.Endpoint, &p.Model, &p.Key,
		&settings, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &p.Settings); err != nil {
			return Profile{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return p, nil
}

func settingsOrEmpty(settings map[string]any) map[string]any {
	if settings == nil {
		return map[string]any{}
	}
	return settings
}
