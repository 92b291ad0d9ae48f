package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-mapblock/internal/block"
)

var (
	// ErrBlockNotFound is returned for unknown block ids.
	ErrBlockNotFound = errors.New("block not found")
	// ErrBlockExists is returned when creating a block with a taken id.
	ErrBlockExists = errors.New("block already exists")
)

// Store persists block records. Patch merges a partial settings change into
// the stored settings atomically.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Create(ctx context.Context, r Record) error
	Patch(ctx context.Context, id string, p block.Patch) (Record, error)
	Delete(ctx context.Context, id string) error
}

// FileStore keeps all blocks in a single JSON file.
type FileStore struct {
	dataDir string
	blocks  map[string]Record
	mu      sync.RWMutex
	now     func() time.Time
}

// NewFileStore opens the store in dataDir, starting empty if there is no
// file yet.
func NewFileStore(dataDir string) *FileStore {
	s := &FileStore{
		dataDir: dataDir,
		blocks:  make(map[string]Record),
		now:     time.Now,
	}
	s.loadFromDisk()
	return s
}

// List returns all blocks, oldest first.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Record, 0, len(s.blocks))
	for _, r := range s.blocks {
		result = append(result, r)
	}
	sortRecords(result)
	return result, nil
}

// Get returns a block by id.
func (s *FileStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.blocks[id]
	if !ok {
		return Record{}, fmt.Errorf("%q: %w", id, ErrBlockNotFound)
	}
	return r, nil
}

// Create adds a block.
func (s *FileStore) Create(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blocks[r.ID]; exists {
		return fmt.Errorf("%q: %w", r.ID, ErrBlockExists)
	}
	s.blocks[r.ID] = r
	if err := s.saveToDisk(); err != nil {
		delete(s.blocks, r.ID)
		return err
	}
	return nil
}

// Patch merges p into the block's settings.
func (s *FileStore) Patch(ctx context.Context, id string, p block.Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.blocks[id]
	if !ok {
		return Record{}, fmt.Errorf("%q: %w", id, ErrBlockNotFound)
	}
	next := prev
	next.Settings = prev.Settings.Apply(p)
	next.Updated = s.now().UTC()

	s.blocks[id] = next
	if err := s.saveToDisk(); err != nil {
		s.blocks[id] = prev
		return Record{}, err
	}
	return next, nil
}

// Delete removes a block.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.blocks[id]
	if !exists {
		return fmt.Errorf("%q: %w", id, ErrBlockNotFound)
	}
	delete(s.blocks, id)
	if err := s.saveToDisk(); err != nil {
		s.blocks[id] = prev
		return err
	}
	return nil
}

// configFile returns the path to the blocks file.
func (s *FileStore) configFile() string {
	return filepath.Join(s.dataDir, "blocks.json")
}

func (s *FileStore) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // not written yet
	}

	var blocks map[string]Record
	if err := json.Unmarshal(data, &blocks); err != nil {
		log.Warn().Err(err).Str("file", s.configFile()).Msg("Ignoring unreadable blocks file")
		return
	}
	s.blocks = blocks
}

// saveToDisk writes through a temp file so a crash never leaves a torn file.
func (s *FileStore) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.blocks, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.configFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.configFile())
}

func sortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Created.Equal(rs[j].Created) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Created.Before(rs[j].Created)
	})
}

var _ Store = (*FileStore)(nil)
