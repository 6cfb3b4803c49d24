package tle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Find when no element set matches.
var ErrNotFound = errors.New("element set not found")

// Find picks one element set by catalog number (all digits) or by
// case-insensitive name. An empty key selects the first entry.
func Find(sets []*ElementSet, key string) (*ElementSet, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		if len(sets) == 0 {
			return nil, ErrNotFound
		}
		return sets[0], nil
	}

	if catalog, err := strconv.Atoi(key); err == nil {
		for _, es := range sets {
			if es.CatalogNumber == catalog {
				return es, nil
			}
		}
		return nil, fmt.Errorf("%w: catalog number %d", ErrNotFound, catalog)
	}

	for _, es := range sets {
		if strings.EqualFold(es.Name, key) {
			return es, nil
		}
	}
	return nil, fmt.Errorf("%w: name %q", ErrNotFound, key)
}
