package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/geojson"
	"github.com/sells-group/mrms-extract/internal/model"
	"github.com/sells-group/mrms-extract/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Cache)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		mux := newMux(env, collector)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newMux(env *env, collector *monitoring.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
	})

	mux.HandleFunc("GET /v1/precip", func(w http.ResponseWriter, r *http.Request) {
		handlePrecip(env, w, r)
	})

	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		snap, err := collector.Collect(r.Context(), cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			http.Error(w, `{"error":"stats collection failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap) //nolint:errcheck
	})

	return mux
}

// handlePrecip acquires the requested archive, runs the extraction, and
// writes the matched points as GeoJSON. Requests for the same snapshot and
// window collapse into one scan behind the result cache.
func handlePrecip(env *env, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	source := q.Get("source")
	if source == "" {
		http.Error(w, `{"error":"source is required"}`, http.StatusBadRequest)
		return
	}

	win, err := parseBBox(q.Get("bbox"))
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	minValue := 0.0
	if raw := q.Get("min"); raw != "" {
		minValue, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, `{"error":"min must be numeric"}`, http.StatusBadRequest)
			return
		}
	}

	sourceID, err := env.Acquire(r.Context(), source)
	if err != nil {
		zap.L().Warn("source acquisition failed", zap.String("source", source), zap.Error(err))
		http.Error(w, `{"error":"source unavailable"}`, http.StatusBadGateway)
		return
	}

	out, err := env.Engine.Extract(r.Context(), requestFor(sourceID, win, minValue))
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	if out.Status == model.StatusFailed {
		zap.L().Error("extraction failed",
			zap.String("source", sourceID),
			zap.String("reason", out.Reason),
		)
		http.Error(w, `{"error":"extraction failed"}`, http.StatusBadGateway)
		return
	}

	data, err := geojson.Marshal(out.Points)
	if err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if out.Status == model.StatusPartialTimeout {
		// Partial results are still useful; flag them so clients can retry.
		w.Header().Set("X-Extract-Partial", "true")
	}
	w.Header().Set("X-Extract-Strategy", out.Stats.Strategy)
	_, _ = w.Write(data)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
