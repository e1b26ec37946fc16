package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

const fileSuffix = ".schema.json"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// record is the on-disk form of a cache entry.
type record struct {
	DatabaseID    string                 `json:"database_id"`
	Schema        *models.DatabaseSchema `json:"schema"`
	Relationships []models.Relationship  `json:"relationships"`
	CachedAt      time.Time              `json:"cached_at"`
	TTLMinutes    int                    `json:"ttl_minutes"`
}

func (r *record) entry() *models.CacheEntry {
	return &models.CacheEntry{
		Schema:        r.Schema,
		Relationships: r.Relationships,
		CachedAt:      r.CachedAt,
		TTLMinutes:    r.TTLMinutes,
	}
}

// fileStore keeps one JSON document per database in dir.
type fileStore struct {
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &fileStore{dir: dir}, nil
}

// fileName keeps the id readable and appends a short digest of the raw id so
// ids that sanitize to the same text still get distinct files.
func fileName(databaseID string) string {
	sum := sha256.Sum256([]byte(databaseID))
	return unsafeFileChars.ReplaceAllString(databaseID, "_") + "-" + hex.EncodeToString(sum[:4]) + fileSuffix
}

func (s *fileStore) path(databaseID string) string {
	return filepath.Join(s.dir, fileName(databaseID))
}

// write stores the record atomically: a temp file in the same directory is
// renamed over the target so readers never observe a partial document.
func (s *fileStore) write(databaseID string, entry *models.CacheEntry) error {
	payload, err := json.Marshal(record{
		DatabaseID:    databaseID,
		Schema:        entry.Schema,
		Relationships: entry.Relationships,
		CachedAt:      entry.CachedAt,
		TTLMinutes:    entry.TTLMinutes,
	})
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, fileName(databaseID)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(databaseID)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// read loads a record. A missing file returns (nil, nil). A file that does
// not decode, or that belongs to another database id, is an error.
func (s *fileStore) read(databaseID string) (*record, error) {
	payload, err := os.ReadFile(s.path(databaseID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode cache file: %w", err)
	}
	if rec.Schema == nil {
		return nil, errors.New("decode cache file: missing schema")
	}
	if rec.DatabaseID != databaseID {
		return nil, fmt.Errorf("cache file belongs to %q", rec.DatabaseID)
	}
	return &rec, nil
}

func (s *fileStore) remove(databaseID string) error {
	err := os.Remove(s.path(databaseID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// list returns the database ids of every readable record in the directory.
func (s *fileStore) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var head struct {
			DatabaseID string `json:"database_id"`
		}
		if json.Unmarshal(payload, &head) != nil || head.DatabaseID == "" {
			continue
		}
		ids = append(ids, head.DatabaseID)
	}
	return ids, nil
}

func (s *fileStore) removeAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
