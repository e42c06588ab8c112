package main

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// TuneRecord is one tune as extracted from a source file. Fields that are
// absent from the tune text are empty strings, never missing.
type TuneRecord struct {
	ReferenceNumber string
	Title           string
	Type            string
	Meter           string
	Key             string
	RawText         string
}

// Tune is a persisted tune row.
type Tune struct {
	ID              int64     `json:"id"`
	CollectionID    int       `json:"collection_id"`
	ReferenceNumber string    `json:"reference_number"`
	Title           string    `json:"title"`
	Type            string    `json:"type"`
	Meter           string    `json:"meter"`
	KeySignature    string    `json:"key_signature"`
	RawText         string    `json:"raw_text"`
	FilePath        string    `json:"file_path"`
	CreatedAt       time.Time `json:"created_at"`
}

// TuneField names a column that may be changed after load.
type TuneField string

const (
	FieldReferenceNumber TuneField = "reference_number"
	FieldTitle           TuneField = "title"
	FieldType            TuneField = "type"
	FieldMeter           TuneField = "meter"
	FieldKeySignature    TuneField = "key_signature"
)

var updatableFields = map[TuneField]bool{
	FieldReferenceNumber: true,
	FieldTitle:           true,
	FieldType:            true,
	FieldMeter:           true,
	FieldKeySignature:    true,
}

// ParseTuneField maps a user supplied column name onto the closed set of
// updatable fields.
func ParseTuneField(name string) (TuneField, error) {
	f := TuneField(name)
	if !updatableFields[f] {
		return "", fmt.Errorf("%w: %q", errUnknownField, name)
	}
	return f, nil
}

// sortedFields returns the keys of changes in a stable order.
func sortedFields(changes map[TuneField]string) []TuneField {
	fields := make([]TuneField, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// apply sets the given changes on t.
func (t *Tune) apply(changes map[TuneField]string) {
	for f, v := range changes {
		switch f {
		case FieldReferenceNumber:
			t.ReferenceNumber = v
		case FieldTitle:
			t.Title = v
		case FieldType:
			t.Type = v
		case FieldMeter:
			t.Meter = v
		case FieldKeySignature:
			t.KeySignature = v
		}
	}
}

func validateChanges(changes map[TuneField]string) error {
	if len(changes) == 0 {
		return errNoChanges
	}
	for f := range changes {
		if !updatableFields[f] {
			return fmt.Errorf("%w: %q", errUnknownField, f)
		}
	}
	return nil
}

// ValueCount is a distinct column value and the number of tunes carrying it.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CollectionCount is the number of tunes loaded from one collection.
type CollectionCount struct {
	CollectionID int `json:"collection_id"`
	Count        int `json:"count"`
}

// Stats summarizes the loaded tunes. Empty type and key values are not
// counted as distinct values.
type Stats struct {
	TotalTunes       int               `json:"total_tunes"`
	TotalCollections int               `json:"total_collections"`
	TotalTypes       int               `json:"total_types"`
	TotalKeys        int               `json:"total_keys"`
	MostCommonType   string            `json:"most_common_type"`
	MostCommonKey    string            `json:"most_common_key"`
	PerCollection    []CollectionCount `json:"per_collection"`
	TopTypes         []ValueCount      `json:"top_types"`
	TopKeys          []ValueCount      `json:"top_keys"`
}

const notAvailable = "N/A"

// RunSummary is the audit record written after each load.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Root           string    `json:"root"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	FilesTotal     int       `json:"files_total"`
	FilesProcessed int       `json:"files_processed"`
	FilesEmpty     int       `json:"files_empty"`
	FilesFailed    int       `json:"files_failed"`
	TunesLoaded    int       `json:"tunes_loaded"`
}

// Datastore is the interface that any backend must implement.
type Datastore interface {
	// Initialize prepares the datastore (e.g., create tables, open index).
	Initialize(path string) error

	// Close cleans up resources.
	Close() error

	// InsertTune persists one record as its own committed unit and returns
	// the store-assigned id.
	InsertTune(ctx context.Context, collectionID int, filePath string, rec TuneRecord) (int64, error)

	GetTune(ctx context.Context, id int64) (Tune, error)
	UpdateTune(ctx context.Context, id int64, changes map[TuneField]string) error
	DeleteTune(ctx context.Context, id int64) error

	// DeleteFile removes every tune loaded from path and returns how many went.
	DeleteFile(ctx context.Context, path string) (int, error)

	// Count returns the total number of tunes.
	Count(ctx context.Context) (int, error)

	// Search returns tunes matching q, all of them for an empty query.
	Search(ctx context.Context, q Query) ([]Tune, error)

	// Stats summarizes the store, listing at most topN types and keys.
	Stats(ctx context.Context, topN int) (Stats, error)

	// GetAllPaths returns the distinct source file paths currently in the store.
	GetAllPaths(ctx context.Context) ([]string, error)

	// RemoveStaleEntries removes tunes whose source file no longer exists on
	// disk and returns the number of removed tunes.
	RemoveStaleEntries(ctx context.Context) (int, error)

	// Clear removes all tunes from the store.
	Clear(ctx context.Context) error

	RecordRun(ctx context.Context, run RunSummary) error

	// LastRun returns the most recently finished run, errNotFound if none.
	LastRun(ctx context.Context) (RunSummary, error)
}

func rankValues(counts []ValueCount) []ValueCount {
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Value < counts[j].Value
	})
	return counts
}

func topValues(counts []ValueCount, n int) []ValueCount {
	if n >= 0 && len(counts) > n {
		return counts[:n]
	}
	return counts
}

func mostCommon(counts []ValueCount) string {
	if len(counts) == 0 {
		return notAvailable
	}
	return counts[0].Value
}
