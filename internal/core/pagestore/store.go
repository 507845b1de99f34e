// Package pagestore persists named page templates in SQLite so
// template-reference pages can be expanded at render time.
package pagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
)

// ErrTemplateNotFound is returned when no template exists under the
// requested name.
var ErrTemplateNotFound = errors.New("template not found")

// Config locates the template database.
type Config struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Template is one stored page definition.
type Template struct {
	Name       string    `db:"name"`
	Definition string    `db:"definition"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Store is the SQLite-backed template repository.
type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// Open connects to the template database, applies SQLite tuning, and runs
// pending migrations.
func Open(cfg Config, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dbDir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applySQLiteTuning(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to tune database: %w", err)
	}

	if cfg.MigrationsPath != "" {
		if err := runMigrations(db.DB, cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.WithField("path", cfg.Path).Info("Page store opened")
	return &Store{db: db, logger: logger}, nil
}

func applySQLiteTuning(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func runMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a template. The definition must parse as a
// components page; storing a template that references another template is
// rejected to keep expansion single-level.
func (s *Store) Save(ctx context.Context, name string, definition json.RawMessage) error {
	if name == "" {
		return fmt.Errorf("template name is required")
	}
	p, err := pages.ParsePage(definition)
	if err != nil {
		return fmt.Errorf("template %q: %w", name, err)
	}
	if p.Kind != pages.KindComponents {
		return fmt.Errorf("template %q must be a components page, got %q", name, p.Kind)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO display_templates (name, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at
	`, name, string(definition), now, now)
	if err != nil {
		return fmt.Errorf("failed to save template %q: %w", name, err)
	}

	s.logger.WithField("template", name).Debug("Template saved")
	return nil
}

// GetRaw loads one template without parsing its definition.
func (s *Store) GetRaw(ctx context.Context, name string) (*Template, error) {
	var tpl Template
	err := s.db.GetContext(ctx, &tpl, `
		SELECT name, definition, created_at, updated_at
		FROM display_templates WHERE name = ?
	`, name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %q: %w", name, ErrTemplateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template %q: %w", name, err)
	}
	return &tpl, nil
}

// Get loads and parses one template.
func (s *Store) Get(ctx context.Context, name string) (*pages.Page, error) {
	tpl, err := s.GetRaw(ctx, name)
	if err != nil {
		return nil, err
	}

	p, err := pages.ParsePage([]byte(tpl.Definition))
	if err != nil {
		return nil, fmt.Errorf("stored template %q is invalid: %w", name, err)
	}
	return p, nil
}

// List returns all stored templates without parsing their definitions.
func (s *Store) List(ctx context.Context) ([]Template, error) {
	var tpls []Template
	err := s.db.SelectContext(ctx, &tpls, `
		SELECT name, definition, created_at, updated_at
		FROM display_templates ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return tpls, nil
}

// Delete removes a template.
func (s *Store) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM display_templates WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete template %q: %w", name, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("template %q: %w", name, ErrTemplateNotFound)
	}
	return nil
}

// Expand turns a template-reference page into a renderable components page:
// the stored definition with the reference's variables prepended and its
// duration and enable condition taking precedence when set.
func (s *Store) Expand(ctx context.Context, p *pages.Page) (*pages.Page, error) {
	if p.Kind != pages.KindTemplateReference {
		return p, nil
	}

	stored, err := s.Get(ctx, p.Name)
	if err != nil {
		return nil, err
	}

	expanded := stored.WithVariables(p.Variables)
	if p.Duration > 0 {
		clone := *expanded
		clone.Duration = p.Duration
		expanded = &clone
	}
	if p.Enabled.IsSet() {
		clone := *expanded
		clone.Enabled = p.Enabled
		expanded = &clone
	}
	return expanded, nil
}
