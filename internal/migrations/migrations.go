package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"allyboard/internal/security"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrationsDir overrides the embedded migrations when non-empty. It can be set
// by tests or through ALLYBOARD_MIGRATIONS_DIR.
var MigrationsDir = os.Getenv("ALLYBOARD_MIGRATIONS_DIR")

func source() (fs.FS, error) {
	if MigrationsDir == "" {
		return fs.Sub(embedded, "sql")
	}
	if err := security.ValidateFilePath(MigrationsDir); err != nil {
		return nil, fmt.Errorf("migrations directory not found: %w", err)
	}
	info, err := os.Stat(MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to read migrations directory: %s is not a directory", MigrationsDir)
	}
	return os.DirFS(MigrationsDir), nil
}

// findMigrationFiles returns the .sql files of the active source in name order.
func findMigrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// GetInitialSchema returns the first migration, which creates the document store.
func GetInitialSchema() (string, error) {
	fsys, err := source()
	if err != nil {
		return "", err
	}
	files, err := findMigrationFiles(fsys)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("could not find schema file in any location")
	}
	content, err := fs.ReadFile(fsys, files[0])
	if err != nil {
		return "", fmt.Errorf("failed to read migration file %s: %w", files[0], err)
	}
	return string(content), nil
}

// RunMigrations applies every migration not yet recorded in schema_migrations.
func RunMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	fsys, err := source()
	if err != nil {
		return err
	}
	files, err := findMigrationFiles(fsys)
	if err != nil {
		return err
	}

	for _, name := range files {
		if err := applyMigration(db, fsys, name); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func applyMigration(db *sql.DB, fsys fs.FS, name string) error {
	version := strings.TrimSuffix(name, ".sql")

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if count > 0 {
		return nil
	}

	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
