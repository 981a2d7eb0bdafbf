package narrative

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Cache stores commentaries on disk keyed by the prompt they answer, so an
// unchanged dataset does not trigger another API call.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a cache in dir. Entries older than maxAge are ignored;
// zero means they never expire.
func NewCache(dir string, maxAge time.Duration) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("narrative: could not create cache directory: %v", err)
	}
	return &Cache{dir: dir, maxAge: maxAge}
}

func (c *Cache) path(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return filepath.Join(c.dir, fmt.Sprintf("summary_%s.txt", hex.EncodeToString(sum[:8])))
}

// Get returns the cached commentary for prompt if present and fresh.
func (c *Cache) Get(prompt string) (string, bool) {
	path := c.path(prompt)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (c *Cache) Set(prompt, text string) error {
	return os.WriteFile(c.path(prompt), []byte(text), 0644)
}
