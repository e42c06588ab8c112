package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tunes (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id    INTEGER NOT NULL,
	reference_number TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL DEFAULT '',
	meter            TEXT NOT NULL DEFAULT '',
	key_signature    TEXT NOT NULL DEFAULT '',
	raw_text         TEXT NOT NULL DEFAULT '',
	file_path        TEXT NOT NULL DEFAULT '',
	created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS tunes_collection ON tunes(collection_id);
CREATE INDEX IF NOT EXISTS tunes_file_path ON tunes(file_path);
CREATE TABLE IF NOT EXISTS load_runs (
	run_id          TEXT PRIMARY KEY,
	root            TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	files_total     INTEGER NOT NULL,
	files_processed INTEGER NOT NULL,
	files_empty     INTEGER NOT NULL,
	files_failed    INTEGER NOT NULL,
	tunes_loaded    INTEGER NOT NULL
);`

const tuneColumns = "id, collection_id, reference_number, title, type, meter, key_signature, raw_text, file_path, created_at"

func (s *SQLiteStore) Initialize(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	db, err := sql.Open(sqliteDriver, sqliteDSN(path))
	if err != nil {
		return err
	}
	// Writes are issued one at a time; a single connection keeps them in order.
	db.SetMaxOpenConns(1)
	s.db = db

	if _, err := s.db.Exec(sqliteSchema); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tunes")
	return err
}

// InsertTune runs outside any transaction, so every row commits on its own.
func (s *SQLiteStore) InsertTune(ctx context.Context, collectionID int, filePath string, rec TuneRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tunes (collection_id, reference_number, title, type, meter, key_signature, raw_text, file_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		collectionID, rec.ReferenceNumber, rec.Title, rec.Type, rec.Meter, rec.Key, rec.RawText, filePath,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetTune(ctx context.Context, id int64) (Tune, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tuneColumns+" FROM tunes WHERE id = ?", id)
	t, err := scanTune(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Tune{}, fmt.Errorf("%w: %d", errNotFound, id)
	}
	return t, err
}

// UpdateTune only ever names columns from the closed TuneField set.
func (s *SQLiteStore) UpdateTune(ctx context.Context, id int64, changes map[TuneField]string) error {
	if err := validateChanges(changes); err != nil {
		return err
	}

	var sets []string
	var args []interface{}
	for _, f := range sortedFields(changes) {
		sets = append(sets, string(f)+" = ?")
		args = append(args, changes[f])
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE tunes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func (s *SQLiteStore) DeleteTune(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tunes WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", errNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tunes WHERE file_path = ?", path)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tunes").Scan(&count)
	return count, err
}

func (s *SQLiteStore) GetAllPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT file_path FROM tunes ORDER BY file_path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) RemoveStaleEntries(ctx context.Context) (int, error) {
	paths, err := s.GetAllPaths(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, "DELETE FROM tunes WHERE file_path = ?")
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	removed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		res, err := stmt.ExecContext(ctx, path)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]Tune, error) {
	where, args := sqliteWhere(q)

	query := "SELECT " + tuneColumns + " FROM tunes"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY collection_id, file_path, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return s.scanRows(rows)
}

// likeEscaper makes LIKE wildcards in user terms match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// sqliteWhere ORs like-type terms and ANDs the groups. LIKE is
// case-insensitive for ASCII in SQLite.
func sqliteWhere(q Query) (string, []interface{}) {
	var sqlParts []string
	var args []interface{}

	likeGroup := func(terms []string, columns ...string) {
		if len(terms) == 0 {
			return
		}
		var subParts []string
		for _, t := range terms {
			var cols []string
			for _, c := range columns {
				cols = append(cols, c+` LIKE ? ESCAPE '\'`)
				args = append(args, "%"+likeEscaper.Replace(t)+"%")
			}
			subParts = append(subParts, "("+strings.Join(cols, " OR ")+")")
		}
		sqlParts = append(sqlParts, "("+strings.Join(subParts, " OR ")+")")
	}

	likeGroup(q.Types, "type")
	likeGroup(q.Keys, "key_signature")
	likeGroup(q.Titles, "title")
	likeGroup(q.Meters, "meter")
	if len(q.Collections) > 0 {
		var subParts []string
		for _, id := range q.Collections {
			subParts = append(subParts, "collection_id = ?")
			args = append(args, id)
		}
		sqlParts = append(sqlParts, "("+strings.Join(subParts, " OR ")+")")
	}
	likeGroup(q.Any, "title", "type", "key_signature")

	return strings.Join(sqlParts, " AND "), args
}

func (s *SQLiteStore) Stats(ctx context.Context, topN int) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT collection_id) FROM tunes").
		Scan(&st.TotalTunes, &st.TotalCollections); err != nil {
		return Stats{}, err
	}

	types, err := s.valueCounts(ctx, "type")
	if err != nil {
		return Stats{}, err
	}
	keys, err := s.valueCounts(ctx, "key_signature")
	if err != nil {
		return Stats{}, err
	}
	st.TotalTypes, st.TotalKeys = len(types), len(keys)
	st.MostCommonType, st.MostCommonKey = mostCommon(types), mostCommon(keys)
	st.TopTypes, st.TopKeys = topValues(types, topN), topValues(keys, topN)

	rows, err := s.db.QueryContext(ctx,
		"SELECT collection_id, COUNT(*) FROM tunes GROUP BY collection_id ORDER BY collection_id")
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var cc CollectionCount
		if err := rows.Scan(&cc.CollectionID, &cc.Count); err != nil {
			return Stats{}, err
		}
		st.PerCollection = append(st.PerCollection, cc)
	}
	return st, rows.Err()
}

// valueCounts groups by column, which is always a fixed column name.
func (s *SQLiteStore) valueCounts(ctx context.Context, column string) ([]ValueCount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM tunes WHERE "+column+" != '' GROUP BY "+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, vc)
	}
	return rankValues(counts), rows.Err()
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO load_runs
		 (run_id, root, started_at, finished_at, files_total, files_processed, files_empty, files_failed, tunes_loaded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Root,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.FilesTotal, run.FilesProcessed, run.FilesEmpty, run.FilesFailed, run.TunesLoaded,
	)
	return err
}

func (s *SQLiteStore) LastRun(ctx context.Context) (RunSummary, error) {
	var run RunSummary
	var started, finished string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, root, started_at, finished_at, files_total, files_processed, files_empty, files_failed, tunes_loaded
		 FROM load_runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&run.RunID, &run.Root, &started, &finished,
		&run.FilesTotal, &run.FilesProcessed, &run.FilesEmpty, &run.FilesFailed, &run.TunesLoaded)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, errNotFound
	}
	if err != nil {
		return RunSummary{}, err
	}
	run.StartedAt = parseSQLiteTime(started)
	run.FinishedAt = parseSQLiteTime(finished)
	return run, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTune(row rowScanner) (Tune, error) {
	var t Tune
	var created sql.NullString
	err := row.Scan(&t.ID, &t.CollectionID, &t.ReferenceNumber, &t.Title, &t.Type, &t.Meter,
		&t.KeySignature, &t.RawText, &t.FilePath, &created)
	if err != nil {
		return Tune{}, err
	}
	t.CreatedAt = parseSQLiteTime(created.String)
	return t, nil
}

func (s *SQLiteStore) scanRows(rows *sql.Rows) ([]Tune, error) {
	defer rows.Close()
	var results []Tune
	for rows.Next() {
		t, err := scanTune(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// parseSQLiteTime accepts both CURRENT_TIMESTAMP text and the RFC 3339 form
// drivers produce when they hand back a time.Time.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
