// Package config loads predictor settings from environment variables and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/star/satpredict/internal/auth"
	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/observability"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/stream"
	"github.com/star/satpredict/internal/tle"
)

// EnvPrefix prefixes every environment variable, e.g. PREDICT_OBSERVER_LAT.
const EnvPrefix = "PREDICT"

// ESTCube-1 over the Tartu observatory.
const (
	defaultName  = "ESTCUBE 1"
	defaultLine1 = "1 39161U 13021C   15091.47675532  .00001890  00000-0  31643-3 0  9990"
	defaultLine2 = "2 39161  98.0727 175.0786 0009451 192.0216 168.0788 14.70951130101965"

	defaultLat = 58.64560
	defaultLon = 23.15163
	defaultAlt = 8.0
)

// Config is the resolved predictor configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	Observer  geo.Geodetic
	Horizon   float64 // degrees
	Interval  time.Duration
	HTTPAddr  string // empty disables the API listener
	PassCount int

	Source      tle.Source
	Propagation propagation.SGP4Config
	Tracing     observability.TracingConfig
	Auth        auth.Config
	Stream      stream.Config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("observer.lat", defaultLat)
	v.SetDefault("observer.lon", defaultLon)
	v.SetDefault("observer.alt", defaultAlt)
	v.SetDefault("horizon", 0.0)
	v.SetDefault("interval", time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("stream.max_concurrent", 10)
	v.SetDefault("stream.max_total", 100)
	v.SetDefault("stream.keepalive", 30*time.Second)
	v.SetDefault("passes", 10)

	v.SetDefault("tle.name", defaultName)
	v.SetDefault("tle.line1", defaultLine1)
	v.SetDefault("tle.line2", defaultLine2)
	v.SetDefault("tle.file", "")
	v.SetDefault("tle.url", "")
	v.SetDefault("tle.cache_dir", "/tmp/satpredict/tle")
	v.SetDefault("tle.satellite", "")

	v.SetDefault("propagation.gravity", string(propagation.DefaultSGP4Config().Gravity))
	v.SetDefault("propagation.step", 30*time.Second)
	v.SetDefault("propagation.window", 24*time.Hour)
	v.SetDefault("propagation.workers", runtime.NumCPU())

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "satpredict")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads the configuration. Environment variables use EnvPrefix with
// dots replaced by underscores; PREDICT_CONFIG names an optional file.
// Malformed tuning values are logged and replaced by their defaults, while
// an unusable observer location is an error.
func Load(v *viper.Viper, logger *slog.Logger) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		logger.Info("loaded config file", "path", path)
	}

	cfg := Config{
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
		HTTPAddr:    v.GetString("http.addr"),
		Source: tle.Source{
			File:      v.GetString("tle.file"),
			URL:       v.GetString("tle.url"),
			CacheDir:  v.GetString("tle.cache_dir"),
			Satellite: v.GetString("tle.satellite"),
			Name:      v.GetString("tle.name"),
			Line1:     v.GetString("tle.line1"),
			Line2:     v.GetString("tle.line2"),
		},
	}

	lat, err := cast.ToFloat64E(v.Get("observer.lat"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: latitude %v", geo.ErrInvalidLocation, v.Get("observer.lat"))
	}
	lon, err := cast.ToFloat64E(v.Get("observer.lon"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: longitude %v", geo.ErrInvalidLocation, v.Get("observer.lon"))
	}
	alt, err := cast.ToFloat64E(v.Get("observer.alt"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: altitude %v", geo.ErrInvalidLocation, v.Get("observer.alt"))
	}
	cfg.Observer = geo.Geodetic{LatDeg: lat, LonDeg: lon, AltM: alt}
	if err := cfg.Observer.Validate(); err != nil {
		return Config{}, err
	}

	cfg.Horizon = floatOr(v, logger, "horizon", 0, func(f float64) bool { return f >= -90 && f <= 90 })
	cfg.Interval = durationOr(v, logger, "interval", time.Second)
	cfg.PassCount = intOr(v, logger, "passes", 10)

	gravity, err := propagation.ParseGravity(strings.ToLower(v.GetString("propagation.gravity")))
	if err != nil {
		logger.Warn("invalid propagation.gravity value, using default", "error", err, "default", propagation.DefaultSGP4Config().Gravity)
		gravity = propagation.DefaultSGP4Config().Gravity
	}
	cfg.Propagation = propagation.SGP4Config{
		Gravity: gravity,
		Step:    durationOr(v, logger, "propagation.step", 30*time.Second),
		Window:  durationOr(v, logger, "propagation.window", 24*time.Hour),
		Workers: intOr(v, logger, "propagation.workers", runtime.NumCPU()),
	}

	enabled, err := cast.ToBoolE(v.Get("tracing.enabled"))
	if err != nil {
		logger.Warn("invalid tracing.enabled value, defaulting to false", "value", v.Get("tracing.enabled"))
	}
	cfg.Tracing = observability.TracingConfig{
		Enabled:     enabled,
		ServiceName: v.GetString("tracing.service_name"),
		SampleRatio: floatOr(v, logger, "tracing.sample_ratio", 1, func(f float64) bool { return f >= 0 && f <= 1 }),
	}

	if cfg.Auth, err = loadAuth(v); err != nil {
		return Config{}, err
	}
	trustProxy, err := cast.ToBoolE(v.Get("http.trust_proxy"))
	if err != nil {
		logger.Warn("invalid http.trust_proxy value, defaulting to false", "value", v.Get("http.trust_proxy"))
	}
	cfg.Stream = stream.Config{
		MaxConcurrentPerIP: intOr(v, logger, "stream.max_concurrent", 10),
		MaxStreams:         intOr(v, logger, "stream.max_total", 100),
		KeepaliveInterval:  durationOr(v, logger, "stream.keepalive", 30*time.Second),
		TrustProxy:         trustProxy,
	}

	logger.Info("predictor config",
		"observer", cfg.Observer.String(),
		"horizon_deg", cfg.Horizon,
		"interval", cfg.Interval.String(),
		"http_addr", cfg.HTTPAddr,
		"auth_enabled", cfg.Auth.Enabled,
		"gravity", string(cfg.Propagation.Gravity),
		"scan_step", cfg.Propagation.Step.String(),
		"workers", cfg.Propagation.Workers,
		"tracing", cfg.Tracing.Enabled,
	)
	return cfg, nil
}

// loadAuth rejects an enabled API without a token.
func loadAuth(v *viper.Viper) (auth.Config, error) {
	enabled, err := cast.ToBoolE(v.Get("auth.enabled"))
	if err != nil {
		return auth.Config{}, errors.New(EnvPrefix + "_AUTH_ENABLED must be a boolean value (true/false/1/0)")
	}
	cfg := auth.Config{Enabled: enabled}
	if enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return auth.Config{}, errors.New(EnvPrefix + "_AUTH_TOKEN is required when auth is enabled")
		}
	}
	return cfg, nil
}

func durationOr(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	d, err := cast.ToDurationE(v.Get(key))
	if err != nil || d <= 0 {
		logger.Warn("invalid "+key+" value, using default", "value", v.Get(key), "default", def.String())
		return def
	}
	return d
}

func intOr(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v.Get(key), "default", def)
		return def
	}
	return n
}

func floatOr(v *viper.Viper, logger *slog.Logger, key string, def float64, ok func(float64) bool) float64 {
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil || !ok(f) {
		logger.Warn("invalid "+key+" value, using default", "value", v.Get(key), "default", def)
		return def
	}
	return f
}

// NewLogger builds the process logger. Format "text" selects the text
// handler; anything else logs JSON.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
