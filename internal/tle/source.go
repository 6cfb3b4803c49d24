package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Source describes where the tracked satellite's element set comes from.
// A file wins over a URL, and a URL wins over inline lines.
type Source struct {
	File      string // local catalog file (2- or 3-line format)
	URL       string // remote catalog
	CacheDir  string // keeps URL downloads; empty disables the cache
	Satellite string // catalog number or name picked from File or URL

	Name  string
	Line1 string
	Line2 string
}

// Load resolves the source to a single element set. A failed download
// falls back to the newest cached copy.
func (s Source) Load(ctx context.Context, logger *slog.Logger) (*ElementSet, error) {
	switch {
	case s.File != "":
		data, err := os.ReadFile(s.File)
		if err != nil {
			return nil, fmt.Errorf("reading element set file: %w", err)
		}
		return s.pick(data, logger)

	case s.URL != "":
		data, err := s.download(ctx, logger)
		if err != nil {
			return nil, err
		}
		return s.pick(data, logger)

	case s.Line1 != "" || s.Line2 != "":
		return Parse(s.Name, s.Line1, s.Line2)
	}
	return nil, fmt.Errorf("%w: no element set source configured", ErrInvalidElementSet)
}

func (s Source) download(ctx context.Context, logger *slog.Logger) ([]byte, error) {
	var cache *Cache
	if s.CacheDir != "" {
		cache = NewCache(s.CacheDir, 0)
	}

	data, fetchErr := NewFetcher(s.URL, logger).Fetch(ctx)
	if fetchErr == nil {
		if cache != nil {
			if err := cache.Store(data, time.Now()); err != nil {
				logger.Warn("failed to cache element sets", "error", err)
			}
		}
		return data, nil
	}
	if cache == nil {
		return nil, fetchErr
	}

	data, ts, err := cache.Latest()
	if err != nil {
		return nil, errors.Join(fetchErr, err)
	}
	logger.Warn("element set download failed, using cached copy",
		"error", fetchErr,
		"cached_at", ts.Format(time.RFC3339),
	)
	return data, nil
}

func (s Source) pick(data []byte, logger *slog.Logger) (*ElementSet, error) {
	sets, err := ReadAll(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	return Find(sets, s.Satellite)
}
