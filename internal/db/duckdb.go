// Package db opens the embedded DuckDB database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog/log"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	// Extensions are installed and loaded on open (--extensions). Failures
	// are logged and skipped; the settings store needs none.
	Extensions []string
}

// Get returns the process-wide DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
	})
	return instance, initErr
}

// Open opens a DuckDB database under cfg.DataDir/duckdb. An empty DBName
// opens an in-memory database.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DBName != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(dir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	loadExtensions(conn, cfg.Extensions)
	return conn, nil
}

var extensionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// loadExtensions installs and loads each named extension and returns the
// ones that loaded.
func loadExtensions(conn *sql.DB, names []string) []string {
	var loaded []string
	for _, ext := range names {
		if !extensionName.MatchString(ext) {
			log.Warn().Str("extension", ext).Msg("Invalid DuckDB extension name")
			continue
		}
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			log.Warn().Err(err).Str("extension", ext).Msg("DuckDB extension not loaded")
			continue
		}
		loaded = append(loaded, ext)
	}
	return loaded
}

// Close closes the process-wide connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
