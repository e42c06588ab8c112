package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errInjected = errors.New("injected insert failure")

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

const twoTunes = "X:1\nT:Down the Hill\nR:jig\nM:6/8\nK:D\n|:A2B AGF|\n\nX:2\nT:The Wind\nK:G\n|:GAB c2d|\n"

// fakeInserter records inserts and fails every failEvery-th call when
// failEvery > 0.
type fakeInserter struct {
	mu        sync.Mutex
	failEvery int
	calls     int
	inserted  []TuneRecord
	paths     []string
}

func (f *fakeInserter) InsertTune(_ context.Context, _ int, filePath string, rec TuneRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failEvery > 0 && f.calls%f.failEvery == 0 {
		return 0, errInjected
	}
	f.inserted = append(f.inserted, rec)
	f.paths = append(f.paths, filePath)
	return int64(len(f.inserted)), nil
}

func (f *fakeInserter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}
