// Package stream pushes tracker snapshots to clients as Server-Sent Events.
// Clients connect via GET /api/v1/stream and receive one event per new
// snapshot.
//
// The first event is always metadata:
//
//	event: metadata
//	data: {"type":"metadata","satellite":"ESTCUBE 1","catalog":39161,...}
//
// followed by snapshots:
//
//	event: snapshot
//	data: {"type":"snapshot","snapshot":{"at":"2015-04-01T18:30:00Z",...}}
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/metrics"
	"github.com/star/satpredict/internal/tle"
	"github.com/star/satpredict/internal/tracker"
)

// Source is the tracker state a stream reads from.
type Source interface {
	Snapshot() tracker.Snapshot
	ElementSet() tle.ElementSet
	Observer() geo.Geodetic
	Horizon() float64
}

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // default: 10
	MaxStreams         int           // all clients together; default: 100
	KeepaliveInterval  time.Duration // default: 30s
	TrustProxy         bool          // honour X-Forwarded-For / X-Real-IP
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.MaxStreams <= 0 {
		c.MaxStreams = 100
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	return c
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  Source
	config  Config
	streams *admission
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewHandler creates a streaming handler. collector may be nil.
func NewHandler(source Source, config Config, collector *metrics.Collector, logger *slog.Logger) *Handler {
	config = config.withDefaults()
	return &Handler{
		source:  source,
		config:  config,
		streams: newAdmission(config),
		metrics: collector,
		logger:  logger,
	}
}

// HandleSnapshots serves the SSE snapshot stream.
// GET /api/v1/stream?interval=1
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	interval := 1
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeError(w, http.StatusBadRequest, "invalid interval parameter, must be 1-60")
			return
		}
		interval = n
	}

	ip := clientIP(r, h.config.TrustProxy)
	if reason := h.streams.admit(ip); reason != admitted {
		perIP, total := h.streams.open(ip)
		h.metrics.StreamError(string(reason))
		h.logger.Warn("stream rejected",
			"remote_ip", ip,
			"reason", string(reason),
			"ip_streams", perIP,
			"total_streams", total,
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	h.metrics.StreamOpened()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval", interval,
	)

	defer func() {
		h.streams.leave(ip)
		h.metrics.StreamClosed()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
		metrics: h.metrics,
	}

	// Jittered retry interval (3-7s) so clients do not reconnect in lockstep.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	if err := c.sendEvent("metadata", h.metadata()); err != nil {
		h.metrics.StreamError("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	var last time.Time
	send := func() bool {
		snap := h.source.Snapshot()
		if snap.At.IsZero() || snap.At.Equal(last) {
			return true
		}
		if err := c.sendEvent("snapshot", snapshotMessage{Type: "snapshot", Snapshot: snap}); err != nil {
			h.metrics.StreamError("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false
		}
		last = snap.At
		keepaliveTicker.Reset(h.config.KeepaliveInterval)
		return true
	}

	if !send() {
		return
	}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !send() {
				return
			}

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				h.metrics.StreamError("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata() metadataMessage {
	es := h.source.ElementSet()
	return metadataMessage{
		Type:       "metadata",
		Satellite:  es.Name,
		Catalog:    es.CatalogNumber,
		Epoch:      es.Epoch.UTC().Format(time.RFC3339),
		AgeSeconds: int(time.Since(es.Epoch).Seconds()),
		Observer:   h.source.Observer(),
		HorizonDeg: h.source.Horizon(),
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type       string       `json:"type"`
	Satellite  string       `json:"satellite"`
	Catalog    int          `json:"catalog"`
	Epoch      string       `json:"epoch"`
	AgeSeconds int          `json:"element_age_seconds"`
	Observer   geo.Geodetic `json:"observer"`
	HorizonDeg float64      `json:"horizon_deg"`
}

type snapshotMessage struct {
	Type     string           `json:"type"`
	Snapshot tracker.Snapshot `json:"snapshot"`
}
