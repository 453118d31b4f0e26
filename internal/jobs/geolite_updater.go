package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitetrack/internal/config"
	"sitetrack/internal/pkg/geoip"
)

const (
	// GeoLite databases are refreshed weekly upstream.
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	MaxMindDownloadURL    = "https://download.maxmind.com/app/geoip_download"
)

// GeoLiteUpdaterJob keeps the City database current when a license key is configured.
// The file's modification time records when it was last replaced.
type GeoLiteUpdaterJob struct {
	logger      *slog.Logger
	cfg         *config.Config
	client      *http.Client
	downloadURL string
	reload      func()
	now         func() time.Time
}

// NewGeoLiteUpdaterJob creates a new GeoLite updater job
func NewGeoLiteUpdaterJob(logger *slog.Logger, cfg *config.Config) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		logger:      logger,
		cfg:         cfg,
		client:      &http.Client{Timeout: 5 * time.Minute},
		downloadURL: MaxMindDownloadURL,
		reload:      geoip.ReloadGeoDB,
		now:         time.Now,
	}
}

// Run downloads a fresh database when the current one is missing or stale.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.cfg.GeoLiteLicenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	path := j.databasePath()
	if lastUpdate, ok := j.lastUpdate(path); ok && j.now().Sub(lastUpdate) < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date", slog.Time("last_update", lastUpdate))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.String("path", path))
	if err := j.downloadAndUpdate(ctx, path); err != nil {
		j.logger.Error("Failed to update GeoLite database", slog.Any("error", err))
		return err
	}

	j.reload()
	j.logger.Info("GeoLite database updated successfully")
	return nil
}

func (j *GeoLiteUpdaterJob) databasePath() string {
	if j.cfg.GeoDBPath != "" {
		return j.cfg.GeoDBPath
	}
	return filepath.Join("storage", "GeoLite2-City.mmdb")
}

func (j *GeoLiteUpdaterJob) lastUpdate(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func (j *GeoLiteUpdaterJob) downloadAndUpdate(ctx context.Context, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	query := url.Values{}
	query.Set("edition_id", "GeoLite2-City")
	query.Set("license_key", j.cfg.GeoLiteLicenseKey)
	query.Set("suffix", "tar.gz")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.downloadURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the destination and rename, so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush database: %w", err)
	}
	return os.Rename(tmp.Name(), destPath)
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream into dst.
func extractMMDB(r io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("no .mmdb file found in archive")
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}
}
