package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const tuneFileExt = ".abc"

// SourceFile is a tune file and the collection it was found in.
type SourceFile struct {
	CollectionID int
	Path         string
}

// Locate lists the tune files under root. Only immediate subdirectories
// with a base-10 integer name are searched, and only one level deep; the
// folder name becomes the collection id. Results are ordered by collection
// id, then path.
//
// A subdirectory that cannot be read is skipped without error.
func Locate(root string, log *slog.Logger) ([]SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errAccess, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", errAccess, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errAccess, err)
	}

	var files []SourceFile
	for _, e := range entries {
		id, ok := parseCollectionID(e.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}

		children, err := os.ReadDir(dir)
		if err != nil {
			log.Debug("skipping unreadable collection", "dir", dir, "err", err)
			continue
		}
		for _, c := range children {
			if c.IsDir() || !strings.HasSuffix(c.Name(), tuneFileExt) {
				continue
			}
			files = append(files, SourceFile{CollectionID: id, Path: filepath.Join(dir, c.Name())})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].CollectionID != files[j].CollectionID {
			return files[i].CollectionID < files[j].CollectionID
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// parseCollectionID accepts names made only of ASCII digits.
func parseCollectionID(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return id, true
}
