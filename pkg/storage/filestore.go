package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists raw and enriched conversation payloads on disk.
// Paths are relative to the base directory so records stay portable
// across deployments.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("file store base directory required")
	}
	for _, sub := range []string{"raw", "enriched"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) StoreRaw(userID, conversationID string, payload []byte) (string, int64, error) {
	return s.store("raw", userID, conversationID, payload)
}

func (s *FileStore) StoreEnriched(userID, conversationID string, payload []byte) (string, int64, error) {
	return s.store("enriched", userID, conversationID, payload)
}

func (s *FileStore) store(kind, userID, conversationID string, payload []byte) (string, int64, error) {
	if conversationID == "" {
		return "", 0, fmt.Errorf("conversation id required")
	}
	dir := filepath.Join(s.baseDir, kind, sanitizeSegment(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	name := fmt.Sprintf("%s.json", sanitizeSegment(conversationID))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", 0, err
	}
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		rel = path
	}
	return rel, int64(len(payload)), nil
}

func (s *FileStore) Read(relPath string) ([]byte, error) {
	if relPath == "" {
		return nil, fmt.Errorf("empty file path")
	}
	clean := filepath.Clean(relPath)
	if strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("path escapes store: %s", relPath)
	}
	return os.ReadFile(filepath.Join(s.baseDir, clean))
}

// DownloadURL returns a file URL with an expiry marker. Serving the
// bytes over HTTP is handled by the conversation handlers.
func (s *FileStore) DownloadURL(relPath string, expiresIn time.Duration) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty file path")
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, filepath.Clean(relPath))); err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(expiresIn).Unix()
	return fmt.Sprintf("/files/%s?expires=%d", filepath.ToSlash(relPath), expires), nil
}

func sanitizeSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "shared"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	return replacer.Replace(segment)
}
