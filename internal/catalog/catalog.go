// Package catalog keeps track of the images in the data directory.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("image not found")

var extensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type ImageInfo struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	CurrentFilename  string `json:"current_filename"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Bytes            int64  `json:"bytes"`
}

// ProbeFunc returns the pixel dimensions of an image file.
type ProbeFunc func(path string) (width, height int, err error)

// Catalog is safe for concurrent use; Scan replaces the listing atomically.
type Catalog struct {
	dataDir  string
	tileSize int
	probe    ProbeFunc
	logger   *zap.Logger

	mu     sync.RWMutex
	images []ImageInfo
	byID   map[string]ImageInfo
}

func New(dataDir string, tileSize int, probe ProbeFunc, logger *zap.Logger) *Catalog {
	return &Catalog{
		dataDir:  dataDir,
		tileSize: tileSize,
		probe:    probe,
		logger:   logger,
		byID:     map[string]ImageInfo{},
	}
}

func (c *Catalog) Scan() error {
	if err := c.cleanupOrphanedJSON(); err != nil {
		return err
	}

	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	var images []ImageInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := c.filePath(entry.Name())
		ext := strings.ToLower(filepath.Ext(path))
		if !extensions[ext] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			c.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		basename := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		jsonPath := c.filePath(basename + ".json")

		// Metadata exists, load it
		if _, err := os.Stat(jsonPath); err == nil {
			meta, err := c.loadMetadata(jsonPath)
			if err != nil {
				c.logger.Warn("Failed to load metadata, skipping", zap.String("json_path", jsonPath), zap.Error(err))
				continue
			}
			images = append(images, *meta)
			continue
		}

		// No metadata: give the file a UUID name and describe it
		meta, err := c.register(path, filepath.Base(path), ext, info.Size())
		if err != nil {
			c.logger.Warn("Failed to register image", zap.String("path", path), zap.Error(err))
			continue
		}
		images = append(images, *meta)
	}

	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
	byID := make(map[string]ImageInfo, len(images))
	for _, img := range images {
		byID[img.ID] = img
	}

	c.mu.Lock()
	c.images, c.byID = images, byID
	c.mu.Unlock()

	c.logger.Info("Scanned data directory", zap.String("data_dir", c.dataDir), zap.Int("images", len(images)))
	return nil
}

func (c *Catalog) register(path, originalFilename, ext string, size int64) (*ImageInfo, error) {
	id := uuid.New().String()
	finalPath := c.filePath(id + ext)
	if err := os.Rename(path, finalPath); err != nil {
		return nil, fmt.Errorf("failed to rename file: %w", err)
	}
	c.logger.Info("Migrated file to UUID", zap.String("old_path", path), zap.String("new_path", finalPath))

	width, height, err := c.probe(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan image: %w", err)
	}

	meta := &ImageInfo{
		ID:               id,
		OriginalFilename: originalFilename,
		CurrentFilename:  filepath.Base(finalPath),
		Width:            width,
		Height:           height,
		Bytes:            size,
	}

	jsonPath := c.filePath(id + ".json")
	if err := c.saveMetadata(jsonPath, meta); err != nil {
		c.logger.Warn("Failed to save metadata", zap.String("json_path", jsonPath), zap.Error(err))
	} else {
		c.logger.Info("Created metadata file", zap.String("json_path", jsonPath))
	}
	return meta, nil
}

func (c *Catalog) cleanupOrphanedJSON() error {
	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := c.filePath(entry.Name())
		if strings.ToLower(filepath.Ext(path)) != ".json" {
			continue
		}
		basename := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		meta, err := c.loadMetadata(path)
		switch {
		case err != nil:
			c.removeJSON(path, "invalid")
		case meta.ID != basename:
			c.logger.Warn("UUID mismatch in JSON",
				zap.String("json_path", path),
				zap.String("filename_uuid", basename),
				zap.String("json_uuid", meta.ID))
			c.removeJSON(path, "mismatched")
		default:
			if _, err := os.Stat(c.filePath(meta.CurrentFilename)); err != nil {
				c.removeJSON(path, "orphaned")
			}
		}
	}

	return nil
}

func (c *Catalog) removeJSON(path, reason string) {
	if err := os.Remove(path); err != nil {
		c.logger.Warn("Failed to delete JSON", zap.String("path", path), zap.String("reason", reason), zap.Error(err))
		return
	}
	c.logger.Info("Deleted JSON file", zap.String("path", path), zap.String("reason", reason))
}

// Images returns the scanned images ordered by ID.
func (c *Catalog) Images() []ImageInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ImageInfo(nil), c.images...)
}

func (c *Catalog) Get(id string) (ImageInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.byID[id]
	if !ok {
		return ImageInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return img, nil
}

func (c *Catalog) Path(id string) (string, error) {
	img, err := c.Get(id)
	if err != nil {
		return "", err
	}
	return c.filePath(img.CurrentFilename), nil
}

func (c *Catalog) Pyramid(id string) (Pyramid, error) {
	img, err := c.Get(id)
	if err != nil {
		return Pyramid{}, err
	}
	return NewPyramid(img.Width, img.Height, c.tileSize), nil
}

func (c *Catalog) TileSize() int { return c.tileSize }

func (c *Catalog) filePath(filename string) string {
	return filepath.Join(c.dataDir, filename)
}

func (c *Catalog) loadMetadata(path string) (*ImageInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta ImageInfo
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

func (c *Catalog) saveMetadata(path string, meta *ImageInfo) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
