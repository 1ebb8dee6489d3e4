package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Favorites is the set of trusted peer fingerprints.
type Favorites struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func NewFavorites(fingerprints ...string) *Favorites {
	f := &Favorites{set: make(map[string]struct{})}
	for _, fp := range fingerprints {
		f.Add(fp)
	}
	return f
}

func (f *Favorites) Add(fingerprint string) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[fingerprint] = struct{}{}
}

func (f *Favorites) IsFavorite(fingerprint string) bool {
	if f == nil || fingerprint == "" {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.set[fingerprint]
	return ok
}

func (f *Favorites) Len() int {
	if f == nil {
		return 0
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.set)
}

// LoadFile adds one fingerprint per line. Blank lines and lines starting
// with # are skipped; anything after the first field is an alias note.
func (f *Favorites) LoadFile(path string) error {
	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("favorites: %w", err)
	}
	defer fd.Close()

	sc := bufio.NewScanner(fd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.Add(strings.Fields(line)[0])
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("favorites %s: %w", path, err)
	}
	return nil
}
