package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/service"
)

func newStore(t *testing.T) *SettingsStore {
	t.Helper()
	conn, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s, err := NewSettingsStore(context.Background(), conn)
	require.NoError(t, err)
	return s
}

func record(id string, created time.Time) service.Record {
	return service.Record{ID: id, Name: "Block " + id, Created: created, Updated: created, Settings: block.Defaults()}
}

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestSettingsStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	r := record("a", t0)
	r.Settings.APIKey = "key"
	r.Settings.Markers = block.NewMarkers(
		block.Marker{ID: "m1", Label: "Office", Location: &block.Location{Name: "Bern, Switzerland", PlaceID: "gz-bern", Lat: 46.948, Lng: 7.4474}},
		block.Marker{ID: "m2"},
	)
	require.NoError(t, s.Create(ctx, r))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Block a", got.Name)
	assert.Equal(t, t0, got.Created)
	assert.Equal(t, "key", got.Settings.APIKey)
	assert.Equal(t, []block.Marker{
		{ID: "m1", Label: "Office", Location: &block.Location{Name: "Bern, Switzerland", PlaceID: "gz-bern", Lat: 46.948, Lng: 7.4474}},
		{ID: "m2"},
	}, got.Settings.Markers.Slice())

	assert.ErrorIs(t, s.Create(ctx, r), service.ErrBlockExists)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrBlockNotFound)
}

func TestSettingsStore_List(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Create(ctx, record("b", t0.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, record("c", t0)))
	require.NoError(t, s.Create(ctx, record("a", t0)))

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
	assert.Equal(t, "b", list[2].ID)
}

func TestSettingsStore_Patch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	later := t0.Add(24 * time.Hour)
	s.now = func() time.Time { return later }
	require.NoError(t, s.Create(ctx, record("a", t0)))

	preset := block.Format4to3
	got, err := s.Patch(ctx, "a", block.Patch{FormatPreset: &preset})
	require.NoError(t, err)
	assert.Equal(t, block.Format4to3, got.Settings.FormatPreset)
	assert.Equal(t, later, got.Updated)

	stored, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, block.Format4to3, stored.Settings.FormatPreset)
	assert.Equal(t, t0, stored.Created)
	assert.True(t, stored.Settings.AllowMapControls)

	_, err = s.Patch(ctx, "missing", block.Patch{FormatPreset: &preset})
	assert.ErrorIs(t, err, service.ErrBlockNotFound)
}

func TestSettingsStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Create(ctx, record("a", t0)))

	require.NoError(t, s.Delete(ctx, "a"))
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, service.ErrBlockNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), service.ErrBlockNotFound)
}

func TestOpen_File(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{DataDir: dir, DBName: "mapblock"})
	require.NoError(t, err)
	defer conn.Close()

	assert.FileExists(t, filepath.Join(dir, "duckdb", "mapblock.duckdb"))
}
