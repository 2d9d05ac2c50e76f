package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// schemaVersion is bumped whenever a cached payload changes shape; entries
// written by another version read as misses.
const schemaVersion uint16 = 1

// Disk stores msgpack payloads keyed by digest under one directory.
// Safe for concurrent use.
type Disk struct {
	mu  sync.RWMutex
	dir string
}

type envelope struct {
	Schema  uint16
	Written time.Time
	Data    msgpack.RawMessage
}

// Open returns a cache rooted at dir, creating it if needed. An empty dir
// selects $XDG_CACHE_HOME/shadekit or ~/.cache/shadekit.
func Open(dir string) (*Disk, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "shadekit")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

func (c *Disk) Dir() string { return c.dir }

func (c *Disk) pathFor(bucket, key string) string {
	return filepath.Join(c.dir, bucket, key+".mp")
}

// Put encodes v and atomically replaces the entry.
func (c *Disk) Put(bucket, key string, v any) error {
	if c == nil {
		return nil
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s/%s: %w", bucket, key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(&envelope{Schema: schemaVersion, Written: time.Now(), Data: data}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get decodes the entry into out. A missing entry or one written with
// another schema reports false without error.
func (c *Disk) Get(bucket, key string, out any) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(bucket, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var env envelope
	if err := msgpack.NewDecoder(f).Decode(&env); err != nil {
		return false, fmt.Errorf("cache: decode %s/%s: %w", bucket, key, err)
	}
	if env.Schema != schemaVersion {
		return false, nil
	}
	if err := msgpack.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("cache: decode %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// DropAll removes every entry.
func (c *Disk) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}
