package main

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// cacheIndexFile is the single JSON index, the source of truth of the cache.
// Orphaned blobs without an index entry are tolerated but ignored.
const cacheIndexFile = "cache_metadata.json"

// CacheEntry describes one cached download in the index.
type CacheEntry struct {
	OriginalKey  string            `json:"original_key"`
	Created      time.Time         `json:"created"`
	LastAccessed time.Time         `json:"last_accessed"`
	FileSize     int64             `json:"file_size"`
	Metadata     map[string]string `json:"metadata"`
}

// DownloadCache is a file-backed key-value store keyed by md5 of the original
// key string. One blob per entry plus the JSON index. Entries expire a fixed
// TTL after creation; access refreshes last_accessed. Mutation serializes via
// one mutex, the on-disk index is rewritten whole after each put/invalidate.
type DownloadCache struct {
	dir string
	ttl time.Duration

	mu     sync.Mutex
	index  map[string]*CacheEntry
	loaded bool
	now    func() time.Time
}

/*
NewDownloadCache creates a download cache rooted at dir. The cache directory
is created lazily on first write.
*/
func NewDownloadCache(dir string, ttl time.Duration) *DownloadCache {
	return &DownloadCache{
		dir:   dir,
		ttl:   ttl,
		index: make(map[string]*CacheEntry),
		now:   time.Now,
	}
}

/*
cacheHash derives the md5 hex hash of the original key string.
*/
func cacheHash(originalKey string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(originalKey)))
}

/*
downloadCacheKey builds the orchestrator cache key string from source and
request parameters (coordinates rounded to 4 decimals). Resolution and data
type are part of the key: a low-resolution request never reuses the blob of
a medium-resolution one for the same point.
*/
func downloadCacheKey(source string, lat, lng, bufferKm float64, resolution Resolution, dataType DataType) string {
	return fmt.Sprintf("%s_%.4f_%.4f_%.2f_%s_%s", source, lat, lng, bufferKm, resolution, dataType)
}

/*
blobPath returns the on-disk blob location for a hash, preserving the
extension of the original file.
*/
func (c *DownloadCache) blobPath(hash, ext string) string {
	return filepath.Join(c.dir, hash+ext)
}

/*
ensureLoaded loads the index from disk once. A missing index means an empty
cache. Caller must hold the mutex.
*/
func (c *DownloadCache) ensureLoaded() {
	if c.loaded {
		return
	}
	c.loaded = true

	data, err := os.ReadFile(filepath.Join(c.dir, cacheIndexFile))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("error reading cache index, starting empty", "error", err)
		}
		return
	}
	index := make(map[string]*CacheEntry)
	if err := json.Unmarshal(data, &index); err != nil {
		slog.Warn("error parsing cache index, starting empty", "error", err)
		return
	}
	c.index = index
}

/*
saveIndex rewrites the whole on-disk index atomically (temp file + rename).
Caller must hold the mutex.
*/
func (c *DownloadCache) saveIndex() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return fmt.Errorf("error [%w] at json.MarshalIndent()", err)
	}
	indexPath := filepath.Join(c.dir, cacheIndexFile)
	tempPath := indexPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("error [%w] at os.WriteFile()", err)
	}
	if err := os.Rename(tempPath, indexPath); err != nil {
		return fmt.Errorf("error [%w] at os.Rename()", err)
	}
	return nil
}

/*
findBlob locates the blob file for a hash (extension unknown at read time).
*/
func (c *DownloadCache) findBlob(hash string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, hash+"*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			return m, true
		}
	}
	return "", false
}

/*
Get looks up a cached download by its original key. Expired entries are
invalidated and reported as a miss. A hit refreshes last_accessed and
persists the index.
*/
func (c *DownloadCache) Get(originalKey string) (string, CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	hash := cacheHash(originalKey)
	entry, ok := c.index[hash]
	if !ok {
		return "", CacheEntry{}, false
	}

	// TTL check on the read path: invalidate-and-miss when expired
	if c.ttl > 0 && c.now().Sub(entry.Created) > c.ttl {
		c.removeEntry(hash)
		return "", CacheEntry{}, false
	}

	path, found := c.findBlob(hash)
	if !found {
		// index is authoritative, but a vanished blob is still a miss
		c.removeEntry(hash)
		return "", CacheEntry{}, false
	}

	entry.LastAccessed = c.now()
	if err := c.saveIndex(); err != nil {
		slog.Warn("error saving cache index", "error", err)
	}
	return path, *entry, true
}

/*
Put copies sourceFile into the cache under the original key and rewrites the
index. The blob is written to a temporary path and atomically moved so the
target file is never partially populated.
*/
func (c *DownloadCache) Put(originalKey, sourceFile string, metadata map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	// lazy cache directory creation on first write
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}

	info, err := os.Stat(sourceFile)
	if err != nil {
		return "", fmt.Errorf("error [%w] at os.Stat()", err)
	}

	hash := cacheHash(originalKey)
	destPath := c.blobPath(hash, filepath.Ext(sourceFile))
	tempPath := destPath + ".tmp"
	if err := copyFile(sourceFile, tempPath); err != nil {
		return "", fmt.Errorf("error [%w] copying file into cache", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("error [%w] at os.Rename()", err)
	}

	now := c.now()
	c.index[hash] = &CacheEntry{
		OriginalKey:  originalKey,
		Created:      now,
		LastAccessed: now,
		FileSize:     info.Size(),
		Metadata:     metadata,
	}
	if err := c.saveIndex(); err != nil {
		return "", err
	}
	return destPath, nil
}

/*
Invalidate removes one entry and its blob.
*/
func (c *DownloadCache) Invalidate(originalKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()
	c.removeEntry(cacheHash(originalKey))
	if err := c.saveIndex(); err != nil {
		slog.Warn("error saving cache index", "error", err)
	}
}

/*
removeEntry deletes an index entry and its blob. Caller must hold the mutex.
*/
func (c *DownloadCache) removeEntry(hash string) {
	delete(c.index, hash)
	if path, ok := c.findBlob(hash); ok {
		if err := os.Remove(path); err != nil {
			slog.Warn("error removing cache blob", "error", err, "path", path)
		}
	}
}

/*
Cleanup removes all entries older than the given number of days (time-based
eviction, not LRU). Returns the number of removed entries.
*/
func (c *DownloadCache) Cleanup(olderThanDays int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	cutoff := c.now().AddDate(0, 0, -olderThanDays)
	removed := 0
	for hash, entry := range c.index {
		if entry.Created.Before(cutoff) {
			c.removeEntry(hash)
			removed++
		}
	}
	if removed > 0 {
		if err := c.saveIndex(); err != nil {
			slog.Warn("error saving cache index", "error", err)
		}
	}
	return removed
}

/*
EntryCount returns the number of index entries.
*/
func (c *DownloadCache) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()
	return len(c.index)
}

/*
copyFile copies src to dst (dst truncated).
*/
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error [%w] at os.Open()", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error [%w] at os.Create()", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("error [%w] at io.Copy()", err)
	}
	return out.Sync()
}
