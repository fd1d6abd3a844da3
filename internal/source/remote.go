package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"pyramidview/internal/catalog"
	"pyramidview/internal/tiles"
)

const remoteMetaEntries = 256

// remoteMeta is the image metadata served by gigaview, whose maxZoom counts
// levels up from the single-tile overview.
type remoteMeta struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	TileSize int `json:"tileSize"`
	MaxZoom  int `json:"maxZoom"`
}

// Remote proxies tiles from a gigaview-compatible server.
type Remote struct {
	baseURL string
	client  *http.Client
	metas   *lru.Cache[string, catalog.Pyramid]
	logger  *zap.Logger
}

func NewRemote(baseURL string, client *http.Client, logger *zap.Logger) (*Remote, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", baseURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	metas, err := lru.New[string, catalog.Pyramid](remoteMetaEntries)
	if err != nil {
		return nil, err
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		metas:   metas,
		logger:  logger,
	}, nil
}

// Pyramid fetches and remembers the pyramid of a remote image.
func (r *Remote) Pyramid(ctx context.Context, imageID string) (catalog.Pyramid, error) {
	if p, ok := r.metas.Get(imageID); ok {
		return p, nil
	}

	body, _, err := r.get(ctx, fmt.Sprintf("/api/images/%s/meta", url.PathEscape(imageID)))
	if err != nil {
		return catalog.Pyramid{}, err
	}
	var meta remoteMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return catalog.Pyramid{}, fmt.Errorf("failed to parse remote meta: %w", err)
	}
	if meta.Width <= 0 || meta.Height <= 0 || meta.TileSize <= 0 || meta.MaxZoom < 0 {
		return catalog.Pyramid{}, fmt.Errorf("remote meta for %s is invalid: %+v", imageID, meta)
	}

	p := catalog.Pyramid{
		Width:    meta.Width,
		Height:   meta.Height,
		TileSize: meta.TileSize,
		MinZoom:  -meta.MaxZoom,
		MaxZoom:  0,
	}
	r.metas.Add(imageID, p)
	return p, nil
}

func (r *Remote) FetchTile(ctx context.Context, imageID string, c tiles.Coord) (*Tile, error) {
	p, err := r.Pyramid(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if err := checkRange(p, c); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/images/%s/tiles/%d/%d/%d.jpg", url.PathEscape(imageID), p.RemoteZoom(c.Z), c.X, c.Y)
	data, header, err := r.get(ctx, path)
	if err != nil {
		return nil, err
	}

	tile := &Tile{
		Data:        data,
		ContentType: header.Get("Content-Type"),
		ETag:        strings.Trim(header.Get("ETag"), `"`),
	}
	if tile.ContentType == "" {
		tile.ContentType = "image/jpeg"
	}
	if tile.ETag == "" {
		tile.ETag = generateETag(cacheKey(imageID, p.TileSize, c, formatJPEG))
	}
	return tile, nil
}

func (r *Remote) get(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("remote request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, fmt.Errorf("%w: remote %s", catalog.ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		return nil, nil, fmt.Errorf("remote %s answered %s", path, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read remote %s: %w", path, err)
	}
	r.logger.Debug("Fetched remote resource", zap.String("path", path), zap.Int("bytes", len(data)))
	return data, resp.Header, nil
}
