package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileKV stores each key as a JSON file under Dir.
type FileKV struct {
	Dir string
}

// NewFileKV creates dir if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileKV{Dir: dir}, nil
}

// maxFileName keeps file names well under NAME_MAX once escaped.
const (
	maxFileName = 200
	hashedHead  = 64
)

// fileName path-escapes key. Escaping can triple the length of non-ASCII
// keys, so long names keep a readable head and end in the key's sha256.
func fileName(key string) string {
	escaped := url.PathEscape(key)
	if len(escaped)+len(".json") <= maxFileName {
		return escaped + ".json"
	}
	head := escaped[:hashedHead]
	if i := strings.LastIndexByte(head, '%'); i >= 0 && i > len(head)-3 {
		head = head[:i]
	}
	sum := sha256.Sum256([]byte(key))
	return head + "~" + hex.EncodeToString(sum[:]) + ".json"
}

// securePath maps a key to a file inside Dir. Keys are path-escaped so
// separators never survive into the file name.
func (f *FileKV) securePath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	name := fileName(key)
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	path := filepath.Join(f.Dir, name)

	absDir, err := filepath.Abs(f.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage path: %w", err)
	}
	if !strings.HasPrefix(absPath, filepath.Clean(absDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes storage directory", ErrInvalidKey)
	}
	return path, nil
}

func (f *FileKV) Get(key string) ([]byte, error) {
	path, err := f.securePath(key)
	if err != nil {
		log.Printf("[WARN] Rejected storage key %q: %v", key, err)
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		log.Printf("[WARN] Failed to read storage file %s: %v", path, err)
		return nil, err
	}
	return data, nil
}

// Set writes through a temp file and rename so readers never observe a
// partially written snapshot.
func (f *FileKV) Set(key string, value []byte) error {
	path, err := f.securePath(key)
	if err != nil {
		log.Printf("[WARN] Rejected storage key %q: %v", key, err)
		return err
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		log.Printf("[WARN] Failed to create storage directory: %v", err)
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.Printf("[WARN] Failed to write storage file %s: %v", path, err)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		log.Printf("[WARN] Failed to replace storage file %s: %v", path, err)
		return err
	}
	return nil
}

func (f *FileKV) Delete(key string) error {
	path, err := f.securePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CleanupOlderThan removes files whose prefix matches and that were last
// written before now-maxAge. It returns the number of removed files.
func (f *FileKV) CleanupOlderThan(prefix string, maxAge time.Duration) (int, error) {
	log.Printf("[INFO] Starting cleanup of %q entries older than %v in %s", prefix, maxAge, f.Dir)
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	escaped := url.PathEscape(prefix)
	cutoff := time.Now().Add(-maxAge)
	removed, failed := 0, 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), escaped) || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			failed++
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(f.Dir, entry.Name())); err != nil {
				log.Printf("[WARN] Failed to remove stale file %s: %v", entry.Name(), err)
				failed++
				continue
			}
			removed++
		}
	}
	log.Printf("[INFO] Storage cleanup completed: removed %d files, %d errors", removed, failed)
	return removed, nil
}
