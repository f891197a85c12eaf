// Package cache provides a tiny Redis client wrapper for ranked result caching
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SyedDaiam9101/image-predict/internal/rank"
)

// KeyPrefix namespaces every cache key
const KeyPrefix = "predict:result:"

// Entry is the cached outcome of one run
type Entry struct {
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Predictions    []rank.Prediction `json:"predictions"`
}

// Cache wraps a Redis client for result storage
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get retrieves a cached entry. A missing key returns (nil, nil).
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Key does not exist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &e, nil
}

// Set stores an entry with the specified TTL
func (c *Cache) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// KeyInputs identifies a run for caching: the three input files plus the
// settings that change the output.
type KeyInputs struct {
	ModelPath     string
	ImagePath     string
	LabelsPath    string
	TopK          int
	Normalization rank.Normalization
	Interpolation string
}

// Key hashes the input file contents and settings into a cache key.
func Key(in KeyInputs) (string, error) {
	h := sha256.New()
	for _, p := range []string{in.ModelPath, in.ImagePath, in.LabelsPath} {
		if err := hashFile(h, p); err != nil {
			return "", err
		}
	}
	io.WriteString(h, strconv.Itoa(in.TopK))
	io.WriteString(h, "\x00"+string(in.Normalization))
	io.WriteString(h, "\x00"+in.Interpolation)
	return KeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	// Separator so that moving bytes between files changes the key
	_, err = w.Write([]byte{0})
	return err
}
