package main

import (
	"context"
	"log/slog"
	"time"
)

type tuneInserter interface {
	InsertTune(ctx context.Context, collectionID int, filePath string, rec TuneRecord) (int64, error)
}

// LoadResult counts the records of one file handed to the store.
type LoadResult struct {
	Attempted int
	Succeeded int
}

// Loader writes tune records one at a time. A record that fails to persist
// is logged and skipped; earlier records stay committed and later ones are
// still attempted.
type Loader struct {
	store   tuneInserter
	log     *slog.Logger
	timeout time.Duration
}

// NewLoader returns a Loader writing to store. A timeout of zero means
// inserts are not bounded.
func NewLoader(store tuneInserter, log *slog.Logger, timeout time.Duration) *Loader {
	return &Loader{store: store, log: log, timeout: timeout}
}

// Load persists recs and reports how many made it. Cancelling ctx does not
// interrupt a file half way; callers stop between files.
func (l *Loader) Load(ctx context.Context, collectionID int, filePath string, recs []TuneRecord) LoadResult {
	ctx = context.WithoutCancel(ctx)

	var res LoadResult
	for i, rec := range recs {
		res.Attempted++
		if err := l.insert(ctx, collectionID, filePath, rec); err != nil {
			l.log.Warn("insert failed",
				"path", filePath,
				"index", i,
				"reference", rec.ReferenceNumber,
				"err", err,
			)
			continue
		}
		res.Succeeded++
	}
	return res
}

func (l *Loader) insert(ctx context.Context, collectionID int, filePath string, rec TuneRecord) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	_, err := l.store.InsertTune(ctx, collectionID, filePath, rec)
	return err
}
