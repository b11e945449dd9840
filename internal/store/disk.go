package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore is a filesystem-backed Store, for single-node deployments that
// don't want a redis dependency. Each entry is written as JSON to
// <dir>/<key>.json, via a write-to-temp-then-rename so a reader never
// observes a partially written file.
type DiskStore struct {
	dir string
}

// NewDiskStore builds a DiskStore rooted at dir. dir must already exist.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (d *DiskStore) pathFor(key string) string {
	return filepath.Join(d.dir, key+".json")
}

func (d *DiskStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := os.ReadFile(d.pathFor(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, Unavailable(fmt.Sprintf("reading %q", key), err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, Corrupt(fmt.Sprintf("decoding entry %q", key), err)
	}
	return &entry, true, nil
}

func (d *DiskStore) Put(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return Corrupt("encoding entry", err)
	}

	name := d.pathFor(entry.CacheKey)
	tmpName := name + ".tmp"
	if err := os.WriteFile(tmpName, raw, 0644); err != nil {
		return Unavailable(fmt.Sprintf("writing %q", tmpName), err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return Unavailable(fmt.Sprintf("renaming %q to %q", tmpName, name), err)
	}
	return nil
}

func (d *DiskStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(d.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return Unavailable(fmt.Sprintf("removing %q", key), err)
	}
	return nil
}

func (d *DiskStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("reading directory %q", d.dir), err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == e.Name() {
			continue // not a .json entry file
		}
		if strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
