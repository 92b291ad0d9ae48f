package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-mapblock/internal/block"
)

// ErrNoAsset is returned when a field has no uploaded file.
var ErrNoAsset = errors.New("no asset uploaded")

// ErrAssetType is returned for files the block does not accept.
var ErrAssetType = errors.New("unsupported asset type")

// assetTypes are the accepted icon formats.
var assetTypes = map[string]bool{
	".svg":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// AssetService stores files uploaded through asset fields, one directory
// per block and field. The newest upload of a field is its current asset.
type AssetService struct {
	assetsDir string
	baseURL   string
}

// NewAssetService creates the service. Files are served under baseURL.
func NewAssetService(dataDir, baseURL string) *AssetService {
	return &AssetService{
		assetsDir: filepath.Join(dataDir, "assets"),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// Dir returns the directory assets are stored in.
func (s *AssetService) Dir() string {
	return s.assetsDir
}

// Save stores an upload for a block field.
func (s *AssetService) Save(blockID, field, filename string, r io.Reader) (Asset, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !assetTypes[ext] {
		return Asset{}, fmt.Errorf("%s: %w", ext, ErrAssetType)
	}

	dir := filepath.Join(s.assetsDir, blockID, field)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Asset{}, fmt.Errorf("creating asset directory: %w", err)
	}

	// uuid v7 names sort by upload time.
	id, err := uuid.NewV7()
	if err != nil {
		return Asset{}, err
	}
	name := id.String() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return Asset{}, fmt.Errorf("creating asset: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, r)
	if err != nil {
		return Asset{}, fmt.Errorf("writing asset: %w", err)
	}

	return Asset{
		Field: field,
		Name:  name,
		Size:  formatSize(n),
		URL:   s.url(blockID, field, name),
	}, nil
}

// Latest returns the newest upload of a block field.
func (s *AssetService) Latest(blockID, field string) (Asset, error) {
	dir := filepath.Join(s.assetsDir, blockID, field)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Asset{}, fmt.Errorf("%s/%s: %w", blockID, field, ErrNoAsset)
		}
		return Asset{}, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !assetTypes[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return Asset{}, fmt.Errorf("%s/%s: %w", blockID, field, ErrNoAsset)
	}
	sort.Strings(names)
	name := names[len(names)-1]

	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		Field: field,
		Name:  name,
		Size:  formatSize(info.Size()),
		URL:   s.url(blockID, field, name),
	}, nil
}

// Remove deletes all assets of a block.
func (s *AssetService) Remove(blockID string) error {
	return os.RemoveAll(filepath.Join(s.assetsDir, blockID))
}

// Resolver returns the asset resolver of one block.
func (s *AssetService) Resolver(blockID string) block.AssetResolver {
	return blockAssets{s: s, id: blockID}
}

func (s *AssetService) url(blockID, field, name string) string {
	return s.baseURL + "/" + blockID + "/" + field + "/" + name
}

type blockAssets struct {
	s  *AssetService
	id string
}

// ResolveAsset returns the public URL of the field's current asset.
func (b blockAssets) ResolveAsset(ctx context.Context, field string) (string, error) {
	a, err := b.s.Latest(b.id, field)
	if err != nil {
		return "", err
	}
	return a.URL, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
