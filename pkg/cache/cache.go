package cache

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vlmeval/pkg/core"
)

const defaultTTL = 7 * 24 * time.Hour

// Cache stores generated outputs on disk keyed by the full prompt
// (images, text, and decoding options), so repeated trials over the
// same demonstrations skip the model call.
type Cache struct {
	Dir string
	TTL time.Duration
}

func New(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".vlmeval", "cache")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{Dir: dir, TTL: ttl}, nil
}

type entry struct {
	Output   string    `json:"output"`
	CachedAt time.Time `json:"cached_at"`
	Model    string    `json:"model"`
}

func key(modelName string, p core.Prompt, opts core.GenerateOptions) string {
	parts := []string{
		modelName,
		p.Text,
		fmt.Sprintf("%d", opts.MaxNewTokens),
		fmt.Sprintf("%d", opts.NumBeams),
		fmt.Sprintf("%.6f", opts.LengthPenalty),
	}
	for _, img := range p.Images {
		parts = append(parts, img.Path)
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

func (c *Cache) path(k string) string {
	return filepath.Join(c.Dir, k+".json.gz")
}

func (c *Cache) Get(modelName string, p core.Prompt, opts core.GenerateOptions) (string, bool) {
	path := c.path(key(modelName, p, opts))
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", false
	}
	defer gz.Close()
	var e entry
	if err := json.NewDecoder(gz).Decode(&e); err != nil {
		return "", false
	}
	if c.TTL > 0 && time.Since(e.CachedAt) > c.TTL {
		_ = os.Remove(path)
		return "", false
	}
	return e.Output, true
}

func (c *Cache) Set(modelName string, p core.Prompt, opts core.GenerateOptions, output string) error {
	path := c.path(key(modelName, p, opts))
	e := entry{Output: output, CachedAt: time.Now(), Model: modelName}

	f, err := os.CreateTemp(c.Dir, "tmp-*.json.gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(e); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}
