package jobs

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack/internal/config"
)

func tarGz(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "GeoLite2-City_20240701/README.txt", Mode: 0644, Size: 2}))
	_, err := tw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}))
	_, err = tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newUpdater(t *testing.T, serverURL string, cfg *config.Config) (*GeoLiteUpdaterJob, *int) {
	job := NewGeoLiteUpdaterJob(discardLogger(), cfg)
	job.downloadURL = serverURL
	reloads := 0
	job.reload = func() { reloads++ }
	return job, &reloads
}

func TestGeoLiteUpdaterJob(t *testing.T) {
	archive := tarGz(t, "GeoLite2-City_20240701/GeoLite2-City.mmdb", []byte("mmdb-bytes"))

	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("license_key")
		w.Write(archive)
	}))
	defer server.Close()

	t.Run("skips without a license key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "City.mmdb")
		job, reloads := newUpdater(t, server.URL, &config.Config{GeoDBPath: path})

		require.NoError(t, job.Run(context.Background()))
		assert.NoFileExists(t, path)
		assert.Zero(t, *reloads)
	})

	t.Run("downloads and reloads a missing database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "geo", "City.mmdb")
		job, reloads := newUpdater(t, server.URL, &config.Config{GeoDBPath: path, GeoLiteLicenseKey: "secret"})

		require.NoError(t, job.Run(context.Background()))
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "mmdb-bytes", string(content))
		assert.Equal(t, "secret", gotKey)
		assert.Equal(t, 1, *reloads)
	})

	t.Run("fresh database is left alone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "City.mmdb")
		require.NoError(t, os.WriteFile(path, []byte("current"), 0644))
		job, reloads := newUpdater(t, server.URL, &config.Config{GeoDBPath: path, GeoLiteLicenseKey: "secret"})

		require.NoError(t, job.Run(context.Background()))
		content, _ := os.ReadFile(path)
		assert.Equal(t, "current", string(content))
		assert.Zero(t, *reloads)
	})

	t.Run("stale database is replaced", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "City.mmdb")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
		job, reloads := newUpdater(t, server.URL, &config.Config{GeoDBPath: path, GeoLiteLicenseKey: "secret"})
		job.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

		require.NoError(t, job.Run(context.Background()))
		content, _ := os.ReadFile(path)
		assert.Equal(t, "mmdb-bytes", string(content))
		assert.Equal(t, 1, *reloads)
	})
}

func TestGeoLiteUpdaterErrors(t *testing.T) {
	t.Run("upstream error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		path := filepath.Join(t.TempDir(), "City.mmdb")
		job, reloads := newUpdater(t, server.URL, &config.Config{GeoDBPath: path, GeoLiteLicenseKey: "bad"})
		assert.Error(t, job.Run(context.Background()))
		assert.NoFileExists(t, path)
		assert.Zero(t, *reloads)
	})

	t.Run("archive without a database", func(t *testing.T) {
		archive := tarGz(t, "notes.txt", []byte("nothing"))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(archive)
		}))
		defer server.Close()

		path := filepath.Join(t.TempDir(), "City.mmdb")
		job, _ := newUpdater(t, server.URL, &config.Config{GeoDBPath: path, GeoLiteLicenseKey: "k"})
		err := job.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no .mmdb file")
		assert.NoFileExists(t, path)
	})
}
