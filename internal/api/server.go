// Package api serves the tracker's snapshot, element set and pass list over
// HTTP alongside health probes, metrics and the snapshot stream.
package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satpredict/internal/auth"
	"github.com/star/satpredict/internal/health"
	"github.com/star/satpredict/internal/metrics"
	"github.com/star/satpredict/internal/passes"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/stream"
)

// Tracker is the tracker state the API reads.
type Tracker interface {
	stream.Source
	Observed() bool
}

// Deps are the components behind the routes. Metrics and Stream may be nil.
type Deps struct {
	Tracker    Tracker
	Propagator propagation.Propagator
	Metrics    *metrics.Collector
	Stream     *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Tracker.Observed))
	mux.Handle("GET /metrics", deps.Metrics.Handler())
	mux.HandleFunc("GET /api/v1/snapshot", snapshotHandler(deps.Tracker))
	mux.HandleFunc("GET /api/v1/satellite", satelliteHandler(deps.Tracker))
	mux.HandleFunc("GET /api/v1/passes", passesHandler(logger, deps.Tracker, deps.Propagator))
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream", deps.Stream.HandleSnapshots)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = deps.Metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func snapshotHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !trk.Observed() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(w, http.StatusOK, trk.Snapshot())
	}
}

type satelliteResponse struct {
	Name              string     `json:"name"`
	Catalog           int        `json:"catalog"`
	IntlDesignator    string     `json:"intl_designator"`
	Epoch             time.Time  `json:"epoch"`
	InclinationDeg    float64    `json:"inclination_deg"`
	Eccentricity      float64    `json:"eccentricity"`
	MeanMotion        float64    `json:"mean_motion_rev_per_day"`
	PeriodMinutes     float64    `json:"period_minutes"`
	PerigeeKm         float64    `json:"perigee_km"`
	ApogeeKm          float64    `json:"apogee_km"`
	Geostationary     bool       `json:"geostationary"`
	NeverRises        bool       `json:"never_rises"`
	DecayEstimate     *time.Time `json:"decay_estimate"`
	RevolutionAtEpoch int        `json:"revolution_at_epoch"`
}

func satelliteHandler(trk Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		es := trk.ElementSet()
		resp := satelliteResponse{
			Name:              es.Name,
			Catalog:           es.CatalogNumber,
			IntlDesignator:    es.IntlDesignator,
			Epoch:             es.Epoch,
			InclinationDeg:    es.InclinationDeg,
			Eccentricity:      es.Eccentricity,
			MeanMotion:        es.MeanMotion,
			PeriodMinutes:     es.PeriodMinutes(),
			PerigeeKm:         es.PerigeeAltitudeKm(),
			ApogeeKm:          es.ApogeeAltitudeKm(),
			Geostationary:     propagation.Geostationary(&es),
			NeverRises:        propagation.NeverRises(&es, trk.Observer()),
			RevolutionAtEpoch: es.RevolutionNumber,
		}
		if decay := propagation.DecayEstimate(&es); !math.IsInf(float64(decay), 0) {
			t := decay.Time()
			resp.DecayEstimate = &t
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Pass list limits keep a single request's work bounded.
const (
	maxPassCount  = 50
	maxPassHours  = 7 * 24
	maxTrackPoint = 2000
)

type passesResponse struct {
	Satellite    string        `json:"satellite"`
	Start        time.Time     `json:"start"`
	Hours        int           `json:"hours"`
	MinElevation float64       `json:"min_elevation"`
	Passes       []passes.Pass `json:"passes"`
}

// passesHandler lists upcoming passes.
// GET /api/v1/passes?count=10&hours=24&min_elevation=0&track_step=0
func passesHandler(logger *slog.Logger, trk Tracker, prop propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		count, ok := intParam(q.Get("count"), 10, 1, maxPassCount)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid count parameter", "max_count": maxPassCount})
			return
		}
		hours, ok := intParam(q.Get("hours"), 24, 1, maxPassHours)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid hours parameter", "max_hours": maxPassHours})
			return
		}
		trackStep, ok := intParam(q.Get("track_step"), 0, 0, 300)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid track_step parameter, must be 0-300"})
			return
		}
		if trackStep > 0 && count*20*60/trackStep > maxTrackPoint {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "ground track too dense", "max_track_points": maxTrackPoint})
			return
		}

		minElevation := trk.Horizon()
		if v := q.Get("min_elevation"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || math.IsNaN(f) || f < -5 || f > 90 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_elevation parameter, must be -5 to 90"})
				return
			}
			minElevation = f
		}

		es := trk.ElementSet()
		start := time.Now().UTC()
		found, err := passes.Predict(r.Context(), passes.Request{
			Propagator:   prop,
			ElementSet:   &es,
			Observer:     trk.Observer(),
			Start:        start,
			Window:       time.Duration(hours) * time.Hour,
			MinElevation: minElevation,
			MaxPasses:    count,
			TrackStep:    time.Duration(trackStep) * time.Second,
		})
		if err != nil {
			logger.Warn("pass prediction failed", "satellite", es.Name, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "pass prediction failed"})
			return
		}
		if found == nil {
			found = []passes.Pass{}
		}

		writeJSON(w, http.StatusOK, passesResponse{
			Satellite:    es.Name,
			Start:        start,
			Hours:        hours,
			MinElevation: minElevation,
			Passes:       found,
		})
	}
}

func intParam(v string, def, lo, hi int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps the snapshot stream working through the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
