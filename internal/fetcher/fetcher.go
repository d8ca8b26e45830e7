// Package fetcher acquires MRMS GRIB2 archives from NOAA distribution
// endpoints and materializes them as local files the decoder can open.
// Products arrive as .grib2 or .grib2.gz over HTTPS, with legacy FTP mirrors
// still serving some product lines.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads remote archives.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Acquirer routes URLs to the right fetcher by scheme, decompresses gzip
// archives, and writes the decoded GRIB2 into a local cache directory.
type Acquirer struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
	dir  string
}

// NewAcquirer creates an acquirer caching into dir.
func NewAcquirer(dir string, http *HTTPFetcher, ftp *FTPFetcher) *Acquirer {
	return &Acquirer{http: http, ftp: ftp, dir: dir}
}

// Materialize downloads the archive, gunzipping when the URL carries a .gz
// suffix, and returns the local GRIB2 path plus the source identity for that
// snapshot of the file. Writes go through a temp file and rename so a crashed
// download never leaves a half-written GRIB2 behind.
func (a *Acquirer) Materialize(ctx context.Context, rawURL string) (path string, sourceID string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	f, err := a.fetcherFor(u.Scheme)
	if err != nil {
		return "", "", err
	}

	version := ""
	if u.Scheme == "http" || u.Scheme == "https" {
		// ETag distinguishes successive snapshots of rotating latest files.
		if etag, err := a.http.HeadETag(ctx, rawURL); err == nil {
			version = etag
		}
	}
	sourceID = SourceID(rawURL, version)

	path = filepath.Join(a.dir, sourceID+".grib2")
	if _, statErr := os.Stat(path); statErr == nil {
		zap.L().Debug("fetcher: archive already materialized", zap.String("path", path))
		return path, sourceID, nil
	}

	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return "", "", eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	defer body.Close() //nolint:errcheck

	var src io.Reader = body
	if strings.HasSuffix(strings.ToLower(rawURL), ".gz") {
		gz, err := newGzipReader(body)
		if err != nil {
			return "", "", eris.Wrapf(err, "fetcher: open gzip %s", rawURL)
		}
		defer gz.Close() //nolint:errcheck
		src = gz
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", "", eris.Wrap(err, "fetcher: create cache dir")
	}
	tmp, err := os.CreateTemp(a.dir, ".grib2-*")
	if err != nil {
		return "", "", eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", "", eris.Wrapf(err, "fetcher: write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", "", eris.Wrap(err, "fetcher: finalize archive")
	}

	zap.L().Info("fetcher: archive materialized",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, sourceID, nil
}

func (a *Acquirer) fetcherFor(scheme string) (Fetcher, error) {
	switch scheme {
	case "http", "https":
		if a.http == nil {
			return nil, eris.New("fetcher: no http fetcher configured")
		}
		return a.http, nil
	case "ftp":
		if a.ftp == nil {
			return nil, eris.New("fetcher: no ftp fetcher configured")
		}
		return a.ftp, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}
}

// SourceID derives the stable identity of one snapshot of a remote archive.
// version is the ETag or mtime when known; two fetches of the same URL with
// different versions are different sources and cache separately downstream.
func SourceID(rawURL, version string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s", rawURL, version))
	return hex.EncodeToString(sum[:])[:24]
}
