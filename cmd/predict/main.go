package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/star/satpredict/internal/api"
	"github.com/star/satpredict/internal/config"
	"github.com/star/satpredict/internal/metrics"
	"github.com/star/satpredict/internal/observability"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/stream"
	"github.com/star/satpredict/internal/tracker"
)

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load(viper.New(), bootstrap)
	if err != nil {
		bootstrap.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	es, err := cfg.Source.Load(ctx, logger)
	if err != nil {
		logger.Error("failed to load element set", "error", err)
		os.Exit(1)
	}
	logger.Info("tracking satellite",
		"name", es.Name,
		"catalog", es.CatalogNumber,
		"epoch", es.Epoch.Format(time.RFC3339),
		"period_minutes", es.PeriodMinutes(),
	)
	if propagation.Geostationary(es) {
		logger.Info("satellite is geostationary; no AOS/LOS will be reported")
	}
	if propagation.NeverRises(es, cfg.Observer) {
		logger.Warn("satellite can never rise above this observer's horizon", "observer", cfg.Observer.String())
	}

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("metrics setup failed", "error", err)
		os.Exit(1)
	}

	prop := propagation.NewSGP4(cfg.Propagation)
	trk, err := tracker.New(es, cfg.Observer,
		tracker.WithPropagator(prop),
		tracker.WithHorizon(cfg.Horizon),
		tracker.WithLogger(logger),
		tracker.WithMetrics(collector),
		tracker.WithTracerProvider(tp),
	)
	if err != nil {
		logger.Error("failed to create tracker", "error", err)
		os.Exit(1)
	}

	var srv *api.Server
	if cfg.HTTPAddr != "" {
		srv = api.NewServer(cfg.HTTPAddr, logger, cfg.Auth, api.Deps{
			Tracker:    trk,
			Propagator: prop,
			Metrics:    collector,
			Stream:     stream.NewHandler(trk, cfg.Stream, collector, logger),
		})
		go func() {
			logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server listen error", "error", err)
				os.Exit(1)
			}
		}()
	}

	run(ctx, trk, cfg.Interval, logger)
	logger.Info("shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}
	logger.Info("stopped")
}

// run queries the tracker every interval until ctx is cancelled.
func run(ctx context.Context, trk *tracker.Tracker, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := trk.Query(ctx, time.Time{}); err == nil {
			report(trk.Snapshot(), logger)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func report(s tracker.Snapshot, logger *slog.Logger) {
	logger.Info("position",
		"at", s.At.Format(time.RFC3339),
		"azimuth_deg", s.AzimuthDeg,
		"elevation_deg", s.ElevationDeg,
		"range_km", s.RangeKm,
		"range_rate_km_s", s.RangeRateKmS,
		"lat_deg", s.SubSatellite.LatDeg,
		"lon_deg", s.SubSatellite.LonDeg,
		"altitude_km", s.AltitudeKm(),
		"velocity_km_s", s.VelocityKmS,
		"orbit", s.OrbitNumber,
		"aos", formatCrossing(s.AOS),
		"los", formatCrossing(s.LOS),
	)
}

func formatCrossing(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format(time.RFC3339)
}
