package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetService_Save(t *testing.T) {
	dir := t.TempDir()
	s := NewAssetService(dir, "/assets/")

	a, err := s.Save("b1", "markerIcon", "Pin.PNG", strings.NewReader("png"))
	require.NoError(t, err)

	assert.Equal(t, "markerIcon", a.Field)
	assert.Equal(t, "3 B", a.Size)
	assert.True(t, strings.HasSuffix(a.Name, ".png"))
	assert.Equal(t, "/assets/b1/markerIcon/"+a.Name, a.URL)
	assert.FileExists(t, filepath.Join(dir, "assets", "b1", "markerIcon", a.Name))
}

func TestAssetService_Save_RejectsType(t *testing.T) {
	s := NewAssetService(t.TempDir(), "/assets")

	_, err := s.Save("b1", "markerIcon", "run.exe", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, ErrAssetType)
}

func TestAssetService_Latest(t *testing.T) {
	s := NewAssetService(t.TempDir(), "/assets")

	_, err := s.Latest("b1", "markerIcon")
	assert.ErrorIs(t, err, ErrNoAsset)

	_, err = s.Save("b1", "markerIcon", "old.svg", strings.NewReader("<svg/>"))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newest, err := s.Save("b1", "markerIcon", "new.svg", strings.NewReader("<svg></svg>"))
	require.NoError(t, err)

	got, err := s.Latest("b1", "markerIcon")
	require.NoError(t, err)
	assert.Equal(t, newest, got)
}

func TestAssetService_Resolver(t *testing.T) {
	s := NewAssetService(t.TempDir(), "/assets")
	a, err := s.Save("b1", "markerIcon", "pin.svg", strings.NewReader("<svg/>"))
	require.NoError(t, err)

	url, err := s.Resolver("b1").ResolveAsset(context.Background(), "markerIcon")
	require.NoError(t, err)
	assert.Equal(t, a.URL, url)

	_, err = s.Resolver("b2").ResolveAsset(context.Background(), "markerIcon")
	assert.ErrorIs(t, err, ErrNoAsset)
}

func TestAssetService_Remove(t *testing.T) {
	s := NewAssetService(t.TempDir(), "/assets")
	_, err := s.Save("b1", "markerIcon", "pin.svg", strings.NewReader("<svg/>"))
	require.NoError(t, err)

	require.NoError(t, s.Remove("b1"))
	_, err = s.Latest("b1", "markerIcon")
	assert.ErrorIs(t, err, ErrNoAsset)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.in), "formatSize(%d)", tt.in)
	}
}
