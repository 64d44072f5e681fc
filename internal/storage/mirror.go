package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"imagine/internal/infra"
)

const maxImageBytes = 50 << 20

// Mirror downloads generated images into a FileStore.
type Mirror struct {
	store       *FileStore
	httpClient  *http.Client
	logger      *infra.Logger
	concurrency int
}

// NewMirror builds a Mirror. A nil client gets a 60 second timeout.
func NewMirror(store *FileStore, httpClient *http.Client, logger *infra.Logger) *Mirror {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Mirror{store: store, httpClient: httpClient, logger: logger, concurrency: 4}
}

// Fetch downloads every URL below dir and returns the stored keys in input
// order. The first failure cancels the remaining downloads.
func (m *Mirror) Fetch(ctx context.Context, dir string, urls []string) ([]string, error) {
	keys := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			key, err := m.fetchOne(gctx, dir, i, u)
			if err != nil {
				return err
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (m *Mirror) fetchOne(ctx context.Context, dir string, index int, rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("storage: invalid image url: %s", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage: download status %d for %s", resp.StatusCode, parsed.String())
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("storage: read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("storage: image larger than %d bytes", maxImageBytes)
	}
	key := fmt.Sprintf("%s/%02d%s", dir, index+1, imageExtension(resp.Header.Get("Content-Type"), parsed.Path))
	stored, err := m.store.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	m.logger.Debug().Str("key", stored).Int("bytes", len(data)).Msg("image mirrored")
	return stored, nil
}

func imageExtension(contentType, urlPath string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/png":
			return ".png"
		case "image/jpeg":
			return ".jpg"
		case "image/webp":
			return ".webp"
		case "image/gif":
			return ".gif"
		}
	}
	if ext := strings.ToLower(path.Ext(urlPath)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".png"
}
