package tle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 2)
	if _, _, err := c.Latest(); !errors.Is(err, ErrCacheEmpty) {
		t.Errorf("Latest on empty cache: %v, want ErrCacheEmpty", err)
	}
}

func TestCacheLatestAndPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, body := range []string{"first", "second", "third"} {
		if err := c.Store([]byte(body), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Store(%s): %v", body, err)
		}
	}

	data, ts, err := c.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if string(data) != "third" {
		t.Errorf("Latest data = %q, want third", data)
	}
	if !ts.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Latest ts = %v, want %v", ts, base.Add(2*time.Hour))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("cache holds %d files after prune, want 2", len(entries))
	}
}

func TestCacheIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "elements_abc.tle", "elements_1.tle.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewCache(dir, 0)
	if _, _, err := c.Latest(); !errors.Is(err, ErrCacheEmpty) {
		t.Errorf("Latest = %v, want ErrCacheEmpty", err)
	}
	if c.keep != 3 {
		t.Errorf("default keep = %d, want 3", c.keep)
	}
}
