package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCorpus lays out a small corpus: two good files, an empty one and a
// dangling symlink that cannot be read.
func buildCorpus(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1", "a.abc"), twoTunes)
	writeFile(t, filepath.Join(root, "1", "notes.txt"), "not a tune book")
	writeFile(t, filepath.Join(root, "2", "b.abc"), "X:1\nT:Solo\nK:Am\n")
	writeFile(t, filepath.Join(root, "2", "empty.abc"), "% nothing here\n")
	writeFile(t, filepath.Join(root, "misc", "c.abc"), twoTunes)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "3"), 0o750))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "3", "broken.abc")))
	return root
}

func newTestPipeline(store tuneInserter, workers int) (*Pipeline, *bytes.Buffer) {
	var out bytes.Buffer
	return &Pipeline{
		Loader:  NewLoader(store, discardLogger(), 0),
		Log:     discardLogger(),
		Out:     &out,
		Workers: workers,
	}, &out
}

func assertOutcomesAddUp(t *testing.T, stats RunStats) {
	t.Helper()

	assert.Equal(t, stats.FilesTotal,
		stats.FilesProcessed+stats.FilesEmpty+stats.FilesFailed+stats.FilesUnloaded+stats.FilesSkipped,
		"every file must land in one outcome: %+v", stats)
}

func Test_Pipeline_Run_Reports_Every_Outcome(t *testing.T) {
	t.Parallel()

	root := buildCorpus(t)
	store := &fakeInserter{}
	p, out := newTestPipeline(store, 1)

	stats, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.FilesTotal)
	assert.Equal(t, 2, stats.FilesProcessed)
	assert.Equal(t, 1, stats.FilesEmpty)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 3, stats.TunesAttempted)
	assert.Equal(t, 3, stats.TunesLoaded)
	assert.False(t, stats.Interrupted)
	assertOutcomesAddUp(t, stats)

	report := out.String()
	assert.Contains(t, report, filepath.Join(root, "1", "a.abc")+": 2 tunes\n")
	assert.Contains(t, report, filepath.Join(root, "2", "b.abc")+": 1 tunes\n")
	assert.Contains(t, report, filepath.Join(root, "2", "empty.abc")+": No tunes found\n")
	assert.Contains(t, report, filepath.Join(root, "3", "broken.abc")+": Error - ")
	assert.Contains(t, report, "Loader: Serially loaded 3 tunes from 2/4 files")

	// Sequential mode reports in locate order.
	lines := strings.Split(strings.TrimSpace(report), "\n")
	assert.True(t, strings.HasPrefix(lines[0], filepath.Join(root, "1", "a.abc")))
	assert.True(t, strings.HasPrefix(lines[3], filepath.Join(root, "3", "broken.abc")))
}

func Test_Pipeline_Run_Returns_Access_Error_When_Root_Missing(t *testing.T) {
	t.Parallel()

	store := &fakeInserter{}
	p, out := newTestPipeline(store, 1)

	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, errAccess)
	assert.Empty(t, out.String())
	assert.Zero(t, store.calls)
}

func Test_Pipeline_Run_Counts_File_As_Unloaded_When_Every_Insert_Fails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1", "a.abc"), "X:1\nT:Only\n")
	writeFile(t, filepath.Join(root, "1", "b.abc"), twoTunes)

	store := &fakeInserter{failEvery: 1}
	p, _ := newTestPipeline(store, 1)

	stats, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.FilesProcessed)
	assert.Equal(t, 2, stats.FilesUnloaded)
	assert.Equal(t, 3, stats.TunesAttempted)
	assert.Equal(t, 0, stats.TunesLoaded)
	assertOutcomesAddUp(t, stats)
}

func Test_Pipeline_Run_Continues_When_Inserts_Fail_Every_Third(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	six := strings.Repeat("X:1\nT:Tune\n", 6)
	writeFile(t, filepath.Join(root, "1", "a.abc"), six)
	writeFile(t, filepath.Join(root, "1", "b.abc"), "X:7\nT:After\n")

	store := &fakeInserter{failEvery: 3}
	p, out := newTestPipeline(store, 1)

	stats, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesProcessed)
	assert.Equal(t, 7, stats.TunesAttempted)
	assert.Equal(t, 5, stats.TunesLoaded)
	assert.Contains(t, out.String(), filepath.Join(root, "1", "a.abc")+": 4 tunes\n")
}

type panickyInserter struct{}

func (panickyInserter) InsertTune(context.Context, int, string, TuneRecord) (int64, error) {
	panic("store exploded")
}

func Test_Pipeline_Run_Turns_Panic_Into_File_Failure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1", "a.abc"), twoTunes)
	writeFile(t, filepath.Join(root, "1", "b.abc"), twoTunes)

	p, out := newTestPipeline(panickyInserter{}, 1)

	stats, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesFailed)
	assert.Contains(t, out.String(), "Error - panic: store exploded")
	assertOutcomesAddUp(t, stats)
}

func Test_Pipeline_Run_Parallel_Matches_Serial_Counts(t *testing.T) {
	t.Parallel()

	root := buildCorpus(t)
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, "9", "bulk"+string(rune('a'+i))+".abc"), twoTunes)
	}

	serialStore := &fakeInserter{}
	serial, _ := newTestPipeline(serialStore, 1)
	want, err := serial.Run(context.Background(), root)
	require.NoError(t, err)

	parallelStore := &fakeInserter{}
	parallel, out := newTestPipeline(parallelStore, 4)
	got, err := parallel.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, want.FilesTotal, got.FilesTotal)
	assert.Equal(t, want.FilesProcessed, got.FilesProcessed)
	assert.Equal(t, want.FilesEmpty, got.FilesEmpty)
	assert.Equal(t, want.FilesFailed, got.FilesFailed)
	assert.Equal(t, want.TunesLoaded, got.TunesLoaded)
	assert.Equal(t, serialStore.count(), parallelStore.count())
	assert.Contains(t, out.String(), "Loader: Parallely loaded")
	assertOutcomesAddUp(t, got)
}

func Test_Pipeline_Run_Stops_Between_Files_When_Cancelled(t *testing.T) {
	t.Parallel()

	root := buildCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeInserter{}
	p, _ := newTestPipeline(store, 1)

	stats, err := p.Run(ctx, root)
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Zero(t, store.calls)
}

func Test_Pipeline_Run_Skips_And_Resets_Files(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1", "old.abc"), twoTunes)
	writeFile(t, filepath.Join(root, "1", "new.abc"), twoTunes)
	writeFile(t, filepath.Join(root, "1", "bad.abc"), twoTunes)

	var reset []string
	store := &fakeInserter{}
	p, _ := newTestPipeline(store, 1)
	p.Skip = func(src SourceFile) bool { return filepath.Base(src.Path) == "old.abc" }
	p.Reset = func(_ context.Context, src SourceFile) error {
		reset = append(reset, filepath.Base(src.Path))
		if filepath.Base(src.Path) == "bad.abc" {
			return errors.New("cannot clear")
		}
		return nil
	}

	stats, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, []string{"bad.abc", "new.abc"}, reset)
	assert.Equal(t, 2, store.count())
	assertOutcomesAddUp(t, stats)
}

func Test_Pipeline_Run_Continues_When_Reset_Panics(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1", "a.abc"), twoTunes)
	writeFile(t, filepath.Join(root, "1", "b.abc"), twoTunes)

	store := &fakeInserter{}
	p, out := newTestPipeline(store, 1)
	calls := 0
	p.Reset = func(context.Context, SourceFile) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	}

	stats, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 2, store.count())
	assert.Contains(t, out.String(), filepath.Join(root, "1", "a.abc")+": Error - panic: boom")
	assert.Contains(t, out.String(), filepath.Join(root, "1", "b.abc")+": 2 tunes")
	assertOutcomesAddUp(t, stats)
}

func Test_Pipeline_Run_Parallel_Not_Interrupted_When_Cancelled_After_Last_File(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1", "a.abc"), twoTunes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeInserter{}
	p, _ := newTestPipeline(store, 2)
	p.Reset = func(context.Context, SourceFile) error {
		cancel()
		return nil
	}

	stats, err := p.Run(ctx, root)
	require.NoError(t, err)

	assert.False(t, stats.Interrupted)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 2, store.count())
}
