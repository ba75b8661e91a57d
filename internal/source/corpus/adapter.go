// Package corpus lists the per-book files a pipeline stage consumes.
package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/stitchrag/internal/source"
)

// Adapter implements source.Source over the files of one directory whose
// names carry a fixed prefix and suffix.
type Adapter struct {
	dir    string
	prefix string
	suffix string
	items  []source.Item // Cached items
	loaded bool
}

// NewTextAdapter lists raw text documents (*.txt) in dir.
func NewTextAdapter(dir string) *Adapter {
	return &Adapter{dir: dir, suffix: ".txt"}
}

// NewArtifactAdapter lists stage artifacts named <prefix><book>.jsonl in dir.
func NewArtifactAdapter(dir, prefix string) *Adapter {
	return &Adapter{dir: dir, prefix: prefix, suffix: ".jsonl"}
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return fmt.Sprintf("corpus:%s/%s*%s", a.dir, a.prefix, a.suffix)
}

// FetchBatch fetches a batch of items
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if !a.loaded {
		if err := a.loadItems(); err != nil {
			return nil, "", fmt.Errorf("failed to load items: %w", err)
		}
		a.loaded = true
	}
	if limit <= 0 {
		limit = len(a.items)
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}

	if startIndex >= len(a.items) {
		return []source.Item{}, "", nil
	}

	endIndex := startIndex + limit
	if endIndex > len(a.items) {
		endIndex = len(a.items)
	}

	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}

	return a.items[startIndex:endIndex], nextCursor, nil
}

// loadItems scans the directory (not recursively) for matching files.
func (a *Adapter) loadItems() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", a.dir, err)
	}

	a.items = []source.Item{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasPrefix(name, a.prefix) || !strings.HasSuffix(name, a.suffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		a.items = append(a.items, source.Item{
			Book: BookName(strings.TrimPrefix(name, a.prefix)),
			Path: filepath.Join(a.dir, name),
			Size: info.Size(),
		})
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].Book < a.items[j].Book
	})
	return nil
}

// BookName returns the part of a file name before its first ".".
func BookName(filename string) string {
	if i := strings.Index(filename, "."); i >= 0 {
		return filename[:i]
	}
	return filename
}
