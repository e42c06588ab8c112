package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// RunStats tracks aggregate counters across a load run. Every discovered
// file ends up in exactly one of the Files* outcome buckets unless the run
// was interrupted.
type RunStats struct {
	FilesTotal     int
	FilesProcessed int // at least one tune loaded
	FilesEmpty     int // no tunes found
	FilesFailed    int
	FilesUnloaded  int // tunes found, none persisted
	FilesSkipped   int
	TunesAttempted int
	TunesLoaded    int
	Interrupted    bool
	Elapsed        time.Duration
}

// Pipeline drives locate, segment, extract and load over a corpus.
type Pipeline struct {
	Loader *Loader
	Log    *slog.Logger
	Out    io.Writer

	// Workers > 1 parses files in parallel. Loading always happens on a
	// single goroutine.
	Workers int

	// Skip, if set, is asked before a file is read; true leaves the file
	// alone. It may run on a parse worker and must not touch the store.
	Skip func(src SourceFile) bool

	// Reset, if set, runs on the loading goroutine right before the tunes
	// of src are loaded. An error counts as a failure for that file.
	Reset func(ctx context.Context, src SourceFile) error
}

type parsedFile struct {
	src   SourceFile
	tunes []TuneRecord
	err   error
}

// Run loads every tune file under root. Only an inaccessible root is
// returned as an error; failures of single files are logged, reported and
// counted.
func (p *Pipeline) Run(ctx context.Context, root string) (RunStats, error) {
	var stats RunStats
	start := time.Now()

	files, err := Locate(root, p.Log)
	if err != nil {
		return stats, err
	}
	stats.FilesTotal = len(files)
	p.Log.Info("located tune files", "root", root, "files", len(files))

	if p.Workers > 1 {
		p.runParallel(ctx, files, &stats)
	} else {
		p.runSerial(ctx, files, &stats)
	}

	stats.Elapsed = time.Since(start)
	p.printSummary(&stats)
	return stats, nil
}

func (p *Pipeline) runSerial(ctx context.Context, files []SourceFile, stats *RunStats) {
	for _, src := range files {
		if ctx.Err() != nil {
			p.Log.Warn("interrupted", "remaining", stats.FilesTotal-p.handled(stats))
			stats.Interrupted = true
			return
		}
		p.handle(ctx, p.parse(src), stats)
	}
}

func (p *Pipeline) runParallel(ctx context.Context, files []SourceFile, stats *RunStats) {
	jobs := make(chan SourceFile, p.Workers)
	results := make(chan parsedFile, p.Workers)

	go func() {
		defer close(jobs)
		for _, src := range files {
			select {
			case jobs <- src:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				results <- p.parse(src)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Writer
	for pf := range results {
		if ctx.Err() != nil {
			continue
		}
		p.handle(ctx, pf, stats)
	}
	if remaining := stats.FilesTotal - p.handled(stats); remaining > 0 {
		stats.Interrupted = true
		p.Log.Warn("interrupted", "remaining", remaining)
	}
}

func (p *Pipeline) handled(stats *RunStats) int {
	return stats.FilesProcessed + stats.FilesEmpty + stats.FilesFailed + stats.FilesUnloaded + stats.FilesSkipped
}

// parse reads and extracts one file. A panic is turned into an error so a
// single bad file cannot stop the run.
func (p *Pipeline) parse(src SourceFile) (pf parsedFile) {
	pf.src = src
	defer func() {
		if r := recover(); r != nil {
			pf.tunes = nil
			pf.err = fmt.Errorf("panic: %v", r)
		}
	}()

	if p.Skip != nil && p.Skip(src) {
		pf.err = errSkipped
		return pf
	}

	tunes, lossy, err := ReadTuneFile(src.Path)
	if err != nil {
		pf.err = err
		return pf
	}
	if lossy {
		p.Log.Debug("dropped undecodable bytes", "path", src.Path)
	}
	pf.tunes = tunes
	return pf
}

// handle resets, loads and reports one parsed file. A panic anywhere in
// here is counted as a failure of that file.
func (p *Pipeline) handle(ctx context.Context, pf parsedFile, stats *RunStats) {
	path := pf.src.Path
	defer func() {
		if r := recover(); r != nil {
			p.fail(path, fmt.Errorf("panic: %v", r), stats)
		}
	}()

	switch {
	case errors.Is(pf.err, errSkipped):
		stats.FilesSkipped++
		p.Log.Debug("skipped", "path", path)
		return
	case pf.err != nil:
		p.fail(path, pf.err, stats)
		return
	}

	if p.Reset != nil {
		if err := p.Reset(ctx, pf.src); err != nil {
			p.fail(path, err, stats)
			return
		}
	}

	if len(pf.tunes) == 0 {
		stats.FilesEmpty++
		p.Log.Info("no tunes found", "path", path)
		fmt.Fprintf(p.Out, "%s: No tunes found\n", path)
		return
	}

	res := p.Loader.Load(ctx, pf.src.CollectionID, path, pf.tunes)
	stats.TunesAttempted += res.Attempted
	stats.TunesLoaded += res.Succeeded
	if res.Succeeded > 0 {
		stats.FilesProcessed++
	} else {
		stats.FilesUnloaded++
	}
	p.Log.Debug("loaded file", "path", path, "attempted", res.Attempted, "loaded", res.Succeeded)
	fmt.Fprintf(p.Out, "%s: %d tunes\n", path, res.Succeeded)
}

func (p *Pipeline) fail(path string, err error, stats *RunStats) {
	stats.FilesFailed++
	p.Log.Error("file processing failed", "path", path, "err", err)
	fmt.Fprintf(p.Out, "%s: Error - %v\n", path, err)
}

func (p *Pipeline) printSummary(stats *RunStats) {
	adverb := "Serially"
	if p.Workers > 1 {
		adverb = "Parallely"
	}
	fmt.Fprintf(p.Out, "\nLoader: %s loaded %d tunes from %d/%d files in %.2f seconds.\n",
		adverb, stats.TunesLoaded, stats.FilesProcessed, stats.FilesTotal, stats.Elapsed.Seconds())
	if stats.FilesEmpty > 0 || stats.FilesFailed > 0 || stats.FilesUnloaded > 0 {
		fmt.Fprintf(p.Out, "Loader: %d without tunes, %d failed, %d with no tune stored.\n",
			stats.FilesEmpty, stats.FilesFailed, stats.FilesUnloaded)
	}
	if stats.FilesSkipped > 0 {
		fmt.Fprintf(p.Out, "Loader: %d unchanged files skipped.\n", stats.FilesSkipped)
	}
}
