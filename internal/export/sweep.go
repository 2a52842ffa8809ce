package export

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Sweep deletes regular files under dir whose modification time predates
// now-maxAge and reports how many were removed. A missing directory is not
// an error. Files younger than the threshold are never touched, so a sweep
// may run while exports are being written.
func Sweep(dir string, maxAge time.Duration, logger *log.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read dir %s: %w", dir, err)
	}

	threshold := time.Now().Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(threshold) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Printf("sweep remove %s failed: %v", path, err)
			continue
		}
		deleted++
	}

	return deleted, nil
}
