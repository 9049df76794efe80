package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultCacheDir holds downloaded tables
const DefaultCacheDir = "~/.cache/inventar-eval"

// DownloadConfig configures fetching remote tables
type DownloadConfig struct {
	CacheDir      string
	ForceDownload bool
	Token         string // Bearer token for private hosts
	Client        *http.Client
}

// Downloader fetches tables over HTTP and caches them on disk
type Downloader struct {
	config DownloadConfig
}

// NewDownloader creates a new table downloader
func NewDownloader(config DownloadConfig) *Downloader {
	if config.CacheDir == "" {
		config.CacheDir = DefaultCacheDir
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}

	// Expand ~ to home directory
	if strings.HasPrefix(config.CacheDir, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			config.CacheDir = filepath.Join(homeDir, config.CacheDir[1:])
		}
	}

	return &Downloader{
		config: config,
	}
}

// IsRemote reports whether location is an http or https URL
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// GetCachePath returns where the table at rawURL is cached. The file keeps the
// URL's extension so that Load can pick the format.
func (d *Downloader) GetCachePath(rawURL string) string {
	name := "table"
	if u, err := url.Parse(rawURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL))
	return filepath.Join(d.config.CacheDir, id.String()[:8]+"-"+name)
}

// Resolve returns a local path for location, downloading it first when it is a URL
func (d *Downloader) Resolve(ctx context.Context, location string) (string, error) {
	if !IsRemote(location) {
		return location, nil
	}

	if err := os.MkdirAll(d.config.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	cachedPath := d.GetCachePath(location)

	if !d.config.ForceDownload {
		if _, err := os.Stat(cachedPath); err == nil {
			slog.Info("Using cached table", "url", location, "path", cachedPath)
			return cachedPath, nil
		}
	}

	slog.Info("Downloading table", "url", location)
	if err := d.downloadFile(ctx, location, cachedPath); err != nil {
		return "", fmt.Errorf("failed to download table: %w", err)
	}

	slog.Info("Table downloaded", "path", cachedPath)
	return cachedPath, nil
}

func (d *Downloader) downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.Token)
	}

	resp, err := d.config.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Write to a temporary file first so a failed download never looks cached
	tempPath := destPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("download failed: %w", err)
	}
	slog.Debug("Download finished", "bytes", written, "content_length", resp.ContentLength)

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move file: %w", err)
	}

	return nil
}

// LoadOrDownload resolves location (a path or URL) and returns a loader for it
func LoadOrDownload(ctx context.Context, location string, config DownloadConfig, opts ...Option) (*Loader, error) {
	datasetPath, err := NewDownloader(config).Resolve(ctx, location)
	if err != nil {
		return nil, err
	}
	return NewLoader(datasetPath, opts...), nil
}
