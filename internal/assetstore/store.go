// Package assetstore provides durable binary blob storage for compressed
// images, keyed by generated file name within a bucket directory.
//
// The store knows nothing about bookmarks. Buckets are fixed: "thumb" and
// "mid", each with its own size budget owned by the image pipeline.
package assetstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Bucket names. No other top-level buckets are permitted.
const (
	BucketThumb = "thumb"
	BucketMid   = "mid"

	tmpDirName = "tmp"
)

// Buckets returns all valid bucket names.
func Buckets() []string {
	return []string{BucketThumb, BucketMid}
}

// Ref names one stored asset.
type Ref struct {
	Bucket string
	Name   string
}

// FileInfo describes a stored asset.
type FileInfo struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"` // epoch ms
}

// Usage is aggregate size accounting across buckets.
type Usage struct {
	Thumb int64 `json:"thumb"`
	Mid   int64 `json:"mid"`
	Total int64 `json:"total"`
	Count int   `json:"count"`
}

// CleanupResult reports an age-based cleanup pass.
type CleanupResult struct {
	Cleaned int  `json:"cleaned"`
	Success bool `json:"success"`
}

// Store manages bucket-partitioned binary files under a root directory.
// Writes go through a temp file and rename so readers never observe a
// partially-written asset.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating the bucket directories.
func New(dir string) (*Store, error) {
	for _, bucket := range Buckets() {
		if err := os.MkdirAll(filepath.Join(dir, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bucket directory %s: %w", bucket, err)
		}
	}
	return &Store{root: dir}, nil
}

func validBucket(bucket string) error {
	for _, b := range Buckets() {
		if bucket == b {
			return nil
		}
	}
	return fmt.Errorf("unknown bucket %q", bucket)
}

// Save writes data under a name generated from context and the current time,
// and returns the stored identity. The bucket directory is created if absent.
func (s *Store) Save(bucket, context, ext string, data []byte) (FileInfo, error) {
	if err := validBucket(bucket); err != nil {
		return FileInfo{}, err
	}
	dir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create bucket directory: %w", err)
	}

	// The generated name is hash+timestamp, not content-addressed; under rapid
	// bulk import two assets can land in the same millisecond with the same
	// context. Probe the disk and add a counter suffix instead of overwriting.
	name := GenerateFileName(context, time.Now().UnixMilli(), ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			break
		}
		base := strings.TrimSuffix(name, "."+ext)
		name = fmt.Sprintf("%s-%d.%s", base, i, ext)
	}

	if err := s.writeAtomic(filepath.Join(dir, name), data); err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: name, Size: int64(len(data)), LastModified: time.Now().UnixMilli()}, nil
}

// Overwrite replaces an existing asset's bytes in place, keeping its name.
// Used by the recompression sweep.
func (s *Store) Overwrite(bucket, name string, data []byte) error {
	if err := validBucket(bucket); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	return s.writeAtomic(filepath.Join(s.root, bucket, name), data)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmpDir := filepath.Join(s.root, tmpDirName)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("failed to create tmp directory: %w", err)
	}
	f, err := os.CreateTemp(tmpDir, "*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Join(fmt.Errorf("failed to write asset: %w", err), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename asset to final location: %w", err), os.Remove(tmpPath))
	}
	return nil
}

// Get returns the asset bytes, or nil with no error if the asset is absent.
// Callers treat absence as a normal condition and render a fallback.
func (s *Store) Get(bucket, name string) ([]byte, error) {
	if err := validBucket(bucket); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, bucket, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}

// Delete removes an asset. Returns false if it was already absent; absence is
// never an error.
func (s *Store) Delete(bucket, name string) (bool, error) {
	if err := validBucket(bucket); err != nil {
		return false, err
	}
	if err := validName(name); err != nil {
		return false, err
	}
	if err := os.Remove(filepath.Join(s.root, bucket, name)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete asset: %w", err)
	}
	return true, nil
}

// List returns all assets in a bucket, newest first.
func (s *Store) List(bucket string) ([]FileInfo, error) {
	if err := validBucket(bucket); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read bucket directory: %w", err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Name:         entry.Name(),
			Size:         fi.Size(),
			LastModified: fi.ModTime().UnixMilli(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastModified > infos[j].LastModified
	})
	return infos, nil
}

// GetUsage computes aggregate size accounting by full enumeration. There are
// no maintained counters; buckets are bounded by bookmark count.
func (s *Store) GetUsage() (Usage, error) {
	var usage Usage
	for _, bucket := range Buckets() {
		infos, err := s.List(bucket)
		if err != nil {
			return usage, err
		}
		var total int64
		for _, info := range infos {
			total += info.Size
		}
		switch bucket {
		case BucketThumb:
			usage.Thumb = total
		case BucketMid:
			usage.Mid = total
		}
		usage.Total += total
		usage.Count += len(infos)
	}
	return usage, nil
}

// CleanupOlderThan deletes assets whose modification time predates the cutoff,
// across all buckets. Individual delete errors are counted as misses, not
// fatal to the batch.
func (s *Store) CleanupOlderThan(maxAge time.Duration) (CleanupResult, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	result := CleanupResult{Success: true}
	for _, bucket := range Buckets() {
		infos, err := s.List(bucket)
		if err != nil {
			result.Success = false
			continue
		}
		for _, info := range infos {
			if info.LastModified >= cutoff {
				continue
			}
			ok, err := s.Delete(bucket, info.Name)
			if err != nil {
				result.Success = false
				continue
			}
			if ok {
				result.Cleaned++
			}
		}
	}
	return result, nil
}

// GenerateFileName builds "img_<hash>_<base36 ms>.<ext>" from a context string
// and a timestamp. The hash is a 32-bit rolling string hash, not a content
// hash: identical images get different names and no dedup is implied.
func GenerateFileName(context string, unixMs int64, ext string) string {
	return "img_" + hashString(context) + "_" + strconv.FormatInt(unixMs, 36) + "." + ext
}

// hashString is the classic shift-subtract 32-bit string hash (h*31 + c),
// rendered in base36. Collisions are acceptable; the timestamp component
// disambiguates in practice.
func hashString(s string) string {
	var h int32
	for _, c := range s {
		h = h*31 + c
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid asset name %q", name)
	}
	return nil
}
