package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// copyTunes copies every tune and the last load run from src into dst.
// dst assigns fresh ids. Returns the number of tunes copied.
func copyTunes(ctx context.Context, src, dst Datastore, log *slog.Logger) (int, error) {
	tunes, err := src.Search(ctx, Query{})
	if err != nil {
		return 0, fmt.Errorf("reading source store: %w", err)
	}

	copied := 0
	for _, t := range tunes {
		rec := TuneRecord{
			ReferenceNumber: t.ReferenceNumber,
			Title:           t.Title,
			Type:            t.Type,
			Meter:           t.Meter,
			Key:             t.KeySignature,
			RawText:         t.RawText,
		}
		if _, err := dst.InsertTune(ctx, t.CollectionID, t.FilePath, rec); err != nil {
			return copied, fmt.Errorf("copying tune %d: %w", t.ID, err)
		}
		copied++
	}

	last, err := src.LastRun(ctx)
	switch {
	case errors.Is(err, errNotFound):
	case err != nil:
		return copied, err
	default:
		if err := dst.RecordRun(ctx, last); err != nil {
			return copied, err
		}
	}

	log.Info("copied tunes between stores", "tunes", copied)
	return copied, nil
}

// importSQLite fills a brand new document store from the SQLite database at
// sqlitePath, so switching backends keeps what was loaded.
func importSQLite(ctx context.Context, sqlitePath string, dst Datastore, log *slog.Logger) (int, error) {
	src := &SQLiteStore{}
	if err := src.Initialize(sqlitePath); err != nil {
		return 0, err
	}
	defer src.Close()

	return copyTunes(ctx, src, dst, log)
}
