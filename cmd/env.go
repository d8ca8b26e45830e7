package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/extract"
	"github.com/sells-group/mrms-extract/internal/fetcher"
	"github.com/sells-group/mrms-extract/internal/model"
	"github.com/sells-group/mrms-extract/internal/rescache"
	"github.com/sells-group/mrms-extract/internal/store"
)

// env wires the store, fetchers, cache, and engine for one command run.
type env struct {
	Store    store.Store
	Cache    *rescache.Cache
	Engine   *extract.Engine
	Acquirer *fetcher.Acquirer

	// sources maps a snapshot identity onto its local GRIB2 path.
	sources sync.Map
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
	})

	e := &env{
		Store:    st,
		Cache:    rescache.New(cacheTTL(cfg.Cache.TTLMinutes, 15), cacheTTL(cfg.Cache.PartialTTLMinutes, 2)),
		Acquirer: fetcher.NewAcquirer(cfg.Fetch.CacheDir, httpFetcher, ftpFetcher),
	}

	hook := store.AttemptHook(st, func(err error) {
		zap.L().Warn("attempt log write failed", zap.Error(err))
	})

	e.Engine = extract.NewEngine(e.resolve,
		extract.WithCache(e.Cache),
		extract.WithAttemptHook(hook),
		extract.WithScaleFactor(cfg.Extract.ScaleFactor),
	)

	return e, nil
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		st = pg
	default:
		lite, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = lite
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// Acquire registers a remote URL or local file and returns the snapshot
// identity used as the extraction source.
func (e *env) Acquire(ctx context.Context, src string) (string, error) {
	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "ftp") {
		path, sourceID, err := e.Acquirer.Materialize(ctx, src)
		if err != nil {
			return "", err
		}
		e.sources.Store(sourceID, path)
		return sourceID, nil
	}

	// Local GRIB2 file; mtime pins the snapshot identity.
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", eris.Wrapf(err, "resolve path %s", src)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", eris.Wrapf(err, "stat %s", abs)
	}
	sourceID := fetcher.SourceID("file://"+abs, strconv.FormatInt(info.ModTime().UnixNano(), 10))
	e.sources.Store(sourceID, abs)
	return sourceID, nil
}

// resolve is the engine's FactoryResolver over previously acquired sources.
func (e *env) resolve(_ context.Context, sourceID string) (decoder.Factory, error) {
	v, ok := e.sources.Load(sourceID)
	if !ok {
		return nil, eris.Errorf("unknown source %s", sourceID)
	}
	return decoder.NewWgrib2(cfg.Decoder.Wgrib2Path, v.(string)), nil
}

func cacheTTL(minutes, fallback int) time.Duration {
	if minutes <= 0 {
		minutes = fallback
	}
	return time.Duration(minutes) * time.Minute
}

// parseBBox parses "W,S,E,N" (lon-first, GeoJSON bbox order) into a window.
func parseBBox(s string) (model.Window, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.Window{}, eris.Errorf("bbox must be W,S,E,N, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Window{}, eris.Wrapf(err, "bbox component %q", p)
		}
		vals[i] = v
	}
	win := model.Window{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if err := win.Validate(); err != nil {
		return model.Window{}, err
	}
	return win, nil
}

func requestFor(sourceID string, win model.Window, minValue float64) extract.Request {
	return extract.Request{
		SourceID: sourceID,
		Window:   win,
		MinValue: minValue,
		Budget:   cfg.Extract.Budget(),
	}
}

func summarizeOutcome(out model.Outcome) string {
	return fmt.Sprintf("status=%s strategy=%s points=%d lines_scanned=%d elapsed=%s",
		out.Status, out.Stats.Strategy, len(out.Points), out.Stats.LinesScanned, out.Stats.Elapsed)
}
