// internal/infrastructure/persistence/postgres/migrator.go
package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/pkg/logger"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Migrator applies numbered SQL files (001_name.sql) once each, recording checksums.
type Migrator struct {
	db         *sqlx.DB
	dialect    Dialect
	migrations map[int]*Migration
	logger     *logger.Logger
}

// Migration is one numbered SQL file
type Migration struct {
	ID          int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

type MigrationStatus struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
	Status    string    `json:"status"`
}

type MigrationRecord struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	AppliedAt time.Time `db:"applied_at"`
	Checksum  string    `db:"checksum"`
}

func NewMigrator(db *sqlx.DB, dialect Dialect) *Migrator {
	return &Migrator{
		db:         db,
		dialect:    dialect,
		migrations: make(map[int]*Migration),
		logger:     logger.GetLogger(),
	}
}

func (m *Migrator) tableDDL() string {
	if m.dialect == DialectSQLite {
		return `CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`
	}
	return `CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		checksum VARCHAR(64) NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`
}

// Init creates the migrations table
func (m *Migrator) Init(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.tableDDL()); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// LoadEmbedded loads the migration set of the migrator's dialect.
func (m *Migrator) LoadEmbedded() error {
	sub, err := fs.Sub(migrationFiles, path.Join("migrations", string(m.dialect)))
	if err != nil {
		return err
	}
	return m.LoadMigrations(sub)
}

// LoadMigrations loads *.sql files from the root of fsys.
func (m *Migrator) LoadMigrations(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, filename := range names {
		id, name, err := parseMigrationFilename(filename)
		if err != nil {
			return err
		}
		content, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		m.migrations[id] = &Migration{
			ID:          id,
			Name:        name,
			Description: extractDescription(string(content)),
			SQL:         string(content),
			Checksum:    calculateChecksum(string(content)),
		}
		m.logger.Debug("📄 Loaded migration: %s", filename)
	}
	return nil
}

// Migrate applies every migration not yet recorded, in ID order.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return err
	}
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var appliedCount int
	for _, id := range m.sortedIDs() {
		migration := m.migrations[id]
		if record, ok := applied[id]; ok {
			if record.Checksum != migration.Checksum {
				return fmt.Errorf("checksum mismatch for migration %d: %s", id, migration.Name)
			}
			continue
		}
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %s: %w", id, migration.Name, err)
		}
		appliedCount++
	}

	if appliedCount > 0 {
		m.logger.Info("✅ Applied %d new migrations", appliedCount)
	} else {
		m.logger.Debug("✅ Database schema is up to date")
	}
	return nil
}

// Validate checks ID continuity and recorded checksums.
func (m *Migrator) Validate(ctx context.Context) error {
	if len(m.migrations) == 0 {
		return fmt.Errorf("no migrations loaded")
	}
	for i, id := range m.sortedIDs() {
		if id != i+1 {
			return fmt.Errorf("missing migration with ID %d", i+1)
		}
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	var problems []string
	for id, record := range applied {
		migration, ok := m.migrations[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("migration %d applied but not found in files", id))
			continue
		}
		if record.Checksum != migration.Checksum {
			problems = append(problems, fmt.Sprintf("migration %d (%s): checksum mismatch", id, migration.Name))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Status reports every loaded migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	var statuses []MigrationStatus
	for _, id := range m.sortedIDs() {
		st := MigrationStatus{ID: id, Name: m.migrations[id].Name, Status: "pending"}
		if record, ok := applied[id]; ok {
			st.Applied = true
			st.AppliedAt = record.AppliedAt
			st.Status = "applied"
			if record.Checksum != m.migrations[id].Checksum {
				st.Status = "checksum_mismatch"
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (m *Migrator) sortedIDs() []int {
	ids := make([]int, 0, len(m.migrations))
	for id := range m.migrations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[int]*MigrationRecord, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	var records []MigrationRecord
	if err := m.db.SelectContext(ctx, &records, `SELECT id, name, applied_at, checksum FROM migrations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[int]*MigrationRecord, len(records))
	for i := range records {
		applied[records[i].ID] = &records[i]
	}
	return applied, nil
}

func (m *Migrator) applyMigration(ctx context.Context, migration *Migration) error {
	m.logger.Info("📤 Applying migration: %s", migration.Name)

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := tx.Rebind(`INSERT INTO migrations (id, name, description, checksum, applied_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query,
		migration.ID, migration.Name, migration.Description, migration.Checksum, Timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("failed to save migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected: 001_name.sql)", filename)
	}
	var id int
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid migration ID in filename: %s", filename)
	}
	return id, strings.ReplaceAll(parts[1], "_", " "), nil
}

func extractDescription(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return "No description"
}

func calculateChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
