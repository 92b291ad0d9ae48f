package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/service"
)

const schema = `CREATE TABLE IF NOT EXISTS block_settings (
	id       VARCHAR PRIMARY KEY,
	name     VARCHAR NOT NULL,
	created  TIMESTAMP NOT NULL,
	updated  TIMESTAMP NOT NULL,
	settings VARCHAR NOT NULL
)`

// SettingsStore keeps block records in the block_settings table, settings
// serialized as JSON.
type SettingsStore struct {
	db  *sql.DB
	now func() time.Time
	// mu serializes read-modify-write patches.
	mu sync.Mutex
}

// NewSettingsStore creates the table if needed.
func NewSettingsStore(ctx context.Context, db *sql.DB) (*SettingsStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating block_settings: %w", err)
	}
	return &SettingsStore{db: db, now: time.Now}, nil
}

// List returns all blocks, oldest first.
func (s *SettingsStore) List(ctx context.Context) ([]service.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created, updated, settings FROM block_settings ORDER BY created, id`)
	if err != nil {
		return nil, fmt.Errorf("listing blocks: %w", err)
	}
	defer rows.Close()

	records := []service.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns a block by id.
func (s *SettingsStore) Get(ctx context.Context, id string) (service.Record, error) {
	return s.get(ctx, s.db, id)
}

// Create inserts a block.
func (s *SettingsStore) Create(ctx context.Context, r service.Record) error {
	data, err := json.Marshal(r.Settings)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(ctx, s.db, r.ID); err == nil {
		return fmt.Errorf("%q: %w", r.ID, service.ErrBlockExists)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO block_settings (id, name, created, updated, settings) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Created, r.Updated, string(data))
	if err != nil {
		return fmt.Errorf("inserting block: %w", err)
	}
	return nil
}

// Patch merges p into the stored settings inside a transaction.
func (s *SettingsStore) Patch(ctx context.Context, id string, p block.Patch) (service.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return service.Record{}, err
	}
	defer tx.Rollback()

	r, err := s.get(ctx, tx, id)
	if err != nil {
		return service.Record{}, err
	}
	r.Settings = r.Settings.Apply(p)
	r.Updated = s.now().UTC()

	data, err := json.Marshal(r.Settings)
	if err != nil {
		return service.Record{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO block_settings (id, name, created, updated, settings) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Created, r.Updated, string(data))
	if err != nil {
		return service.Record{}, fmt.Errorf("writing settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return service.Record{}, err
	}
	return r, nil
}

// Delete removes a block.
func (s *SettingsStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM block_settings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting block: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%q: %w", id, service.ErrBlockNotFound)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SettingsStore) get(ctx context.Context, q queryer, id string) (service.Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, created, updated, settings FROM block_settings WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return service.Record{}, fmt.Errorf("%q: %w", id, service.ErrBlockNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (service.Record, error) {
	var (
		r    service.Record
		data string
	)
	if err := sc.Scan(&r.ID, &r.Name, &r.Created, &r.Updated, &data); err != nil {
		return service.Record{}, err
	}
	r.Created = r.Created.UTC()
	r.Updated = r.Updated.UTC()
	if err := json.Unmarshal([]byte(data), &r.Settings); err != nil {
		return service.Record{}, fmt.Errorf("decoding settings of %s: %w", r.ID, err)
	}
	return r, nil
}

var _ service.Store = (*SettingsStore)(nil)
