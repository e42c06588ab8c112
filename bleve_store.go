package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	lowerKeyword   = "lower_keyword"
	internalNextID = "next_id"
	internalLast   = "last_run"
	runKeyPrefix   = "run:"
	// facetSize bounds the distinct values counted per facet.
	facetSize = 100000
)

// BleveStore keeps tunes as documents in a bleve index, keyed by their
// numeric id.
type BleveStore struct {
	index bleve.Index
	mu    sync.Mutex // guards id allocation
}

// bleveTune is the indexed document. Collection is the id as a keyword so
// it can be faceted.
type bleveTune struct {
	ID              int64     `json:"id"`
	CollectionID    int       `json:"collection_id"`
	Collection      string    `json:"collection"`
	ReferenceNumber string    `json:"reference_number"`
	Title           string    `json:"title"`
	Type            string    `json:"type"`
	Meter           string    `json:"meter"`
	KeySignature    string    `json:"key_signature"`
	RawText         string    `json:"raw_text"`
	FilePath        string    `json:"file_path"`
	CreatedAt       time.Time `json:"created_at"`
}

func newBleveTune(t Tune) bleveTune {
	return bleveTune{
		ID:              t.ID,
		CollectionID:    t.CollectionID,
		Collection:      strconv.Itoa(t.CollectionID),
		ReferenceNumber: t.ReferenceNumber,
		Title:           t.Title,
		Type:            t.Type,
		Meter:           t.Meter,
		KeySignature:    t.KeySignature,
		RawText:         t.RawText,
		FilePath:        t.FilePath,
		CreatedAt:       t.CreatedAt,
	}
}

func buildTuneMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(lowerKeyword, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	label := bleve.NewTextFieldMapping()
	label.Analyzer = lowerKeyword

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	num := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("id", num)
	doc.AddFieldMappingsAt("collection_id", num)
	doc.AddFieldMappingsAt("collection", exact)
	doc.AddFieldMappingsAt("reference_number", exact)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("type", label)
	doc.AddFieldMappingsAt("meter", label)
	doc.AddFieldMappingsAt("key_signature", label)
	doc.AddFieldMappingsAt("raw_text", text)
	doc.AddFieldMappingsAt("file_path", exact)
	doc.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

func (b *BleveStore) Initialize(path string) error {
	// Bleve indexes are directories.
	if filepath.Ext(path) == ".sqlite" {
		path = strings.TrimSuffix(path, ".sqlite") + ".bleve"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		m, err := buildTuneMapping()
		if err != nil {
			return err
		}
		index, err := bleve.New(path, m)
		if err != nil {
			return err
		}
		b.index = index
	} else {
		index, err := bleve.Open(path)
		if err != nil {
			return err
		}
		b.index = index
	}
	return nil
}

func (b *BleveStore) Close() error {
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func (b *BleveStore) nextID() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var id int64 = 1
	raw, err := b.index.GetInternal([]byte(internalNextID))
	if err != nil {
		return 0, err
	}
	if len(raw) > 0 {
		id, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt id counter: %w", err)
		}
	}
	if err := b.index.SetInternal([]byte(internalNextID), []byte(strconv.FormatInt(id+1, 10))); err != nil {
		return 0, err
	}
	return id, nil
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// InsertTune indexes one document; each Index call is its own commit.
func (b *BleveStore) InsertTune(ctx context.Context, collectionID int, filePath string, rec TuneRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := b.nextID()
	if err != nil {
		return 0, err
	}
	t := Tune{
		ID:              id,
		CollectionID:    collectionID,
		ReferenceNumber: rec.ReferenceNumber,
		Title:           rec.Title,
		Type:            rec.Type,
		Meter:           rec.Meter,
		KeySignature:    rec.Key,
		RawText:         rec.RawText,
		FilePath:        filePath,
		CreatedAt:       time.Now().UTC(),
	}
	if err := b.index.Index(docID(id), newBleveTune(t)); err != nil {
		return 0, err
	}
	return id, nil
}

func (b *BleveStore) GetTune(ctx context.Context, id int64) (Tune, error) {
	q := bleve.NewDocIDQuery([]string{docID(id)})
	results, err := b.runQuery(ctx, q, 1)
	if err != nil {
		return Tune{}, err
	}
	if len(results) == 0 {
		return Tune{}, fmt.Errorf("%w: %d", errNotFound, id)
	}
	return results[0], nil
}

func (b *BleveStore) UpdateTune(ctx context.Context, id int64, changes map[TuneField]string) error {
	if err := validateChanges(changes); err != nil {
		return err
	}
	t, err := b.GetTune(ctx, id)
	if err != nil {
		return err
	}
	t.apply(changes)
	return b.index.Index(docID(id), newBleveTune(t))
}

func (b *BleveStore) DeleteTune(ctx context.Context, id int64) error {
	if _, err := b.GetTune(ctx, id); err != nil {
		return err
	}
	return b.index.Delete(docID(id))
}

func (b *BleveStore) DeleteFile(ctx context.Context, path string) (int, error) {
	q := bleve.NewTermQuery(path)
	q.SetField("file_path")
	return b.deleteMatching(ctx, q)
}

func (b *BleveStore) deleteMatching(ctx context.Context, q bleveQuery.Query) (int, error) {
	size, err := b.Count(ctx)
	if err != nil || size == 0 {
		return 0, err
	}
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, err
	}
	if len(res.Hits) == 0 {
		return 0, nil
	}

	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return 0, err
	}
	return len(res.Hits), nil
}

func (b *BleveStore) Count(_ context.Context) (int, error) {
	c, err := b.index.DocCount()
	return int(c), err
}

func (b *BleveStore) GetAllPaths(ctx context.Context) ([]string, error) {
	terms, err := b.facetTerms(ctx, "file_path")
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(terms))
	for _, vc := range terms {
		paths = append(paths, vc.Value)
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *BleveStore) RemoveStaleEntries(ctx context.Context) (int, error) {
	paths, err := b.GetAllPaths(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			n, err := b.DeleteFile(ctx, path)
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	return removed, nil
}

func (b *BleveStore) Clear(ctx context.Context) error {
	_, err := b.deleteMatching(ctx, bleve.NewMatchAllQuery())
	return err
}

func (b *BleveStore) Search(ctx context.Context, q Query) ([]Tune, error) {
	if q.IsEmpty() {
		return b.runQuery(ctx, bleve.NewMatchAllQuery(), q.Limit)
	}

	// Input without any prefix syntax goes to bleve's own query string
	// parser, which allows field scoping and fuzzy terms.
	if q.plain() {
		return b.runQuery(ctx, bleve.NewQueryStringQuery(q.Text), q.Limit)
	}
	return b.runQuery(ctx, bleveBoolean(q), q.Limit)
}

func bleveBoolean(q Query) bleveQuery.Query {
	mainBoolQuery := bleve.NewBooleanQuery()

	addOrGroup := func(terms []string, fields ...string) {
		if len(terms) == 0 {
			return
		}
		sub := bleve.NewBooleanQuery()
		for _, t := range terms {
			for _, f := range fields {
				sub.AddShould(bleveTermMatch(f, t))
			}
		}
		mainBoolQuery.AddMust(sub)
	}

	addOrGroup(q.Types, "type")
	addOrGroup(q.Keys, "key_signature")
	addOrGroup(q.Titles, "title")
	addOrGroup(q.Meters, "meter")
	if len(q.Collections) > 0 {
		sub := bleve.NewBooleanQuery()
		for _, id := range q.Collections {
			tq := bleve.NewTermQuery(strconv.Itoa(id))
			tq.SetField("collection")
			sub.AddShould(tq)
		}
		mainBoolQuery.AddMust(sub)
	}
	addOrGroup(q.Any, "title", "type", "key_signature")
	return mainBoolQuery
}

// bleveTermMatch approximates a case-insensitive substring match. Label
// fields hold one lowercased token, so a wildcard covers them; titles are
// tokenized, so a multi-word term becomes a phrase.
func bleveTermMatch(field, term string) bleveQuery.Query {
	term = strings.ToLower(term)
	if field == "title" && strings.Contains(term, " ") {
		pq := bleve.NewMatchPhraseQuery(term)
		pq.SetField(field)
		return pq
	}
	replacer := strings.NewReplacer("*", "", "?", "")
	wq := bleve.NewWildcardQuery("*" + replacer.Replace(term) + "*")
	wq.SetField(field)
	return wq
}

func (b *BleveStore) runQuery(ctx context.Context, q bleveQuery.Query, limit int) ([]Tune, error) {
	size := limit
	if size <= 0 {
		c, err := b.Count(ctx)
		if err != nil {
			return nil, err
		}
		size = c
	}
	if size == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{"*"}
	req.SortBy([]string{"collection_id", "file_path", "id"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	var results []Tune
	for _, hit := range res.Hits {
		getStr := func(f string) string {
			if v, ok := hit.Fields[f].(string); ok {
				return v
			}
			return ""
		}
		getInt := func(f string) int64 {
			if v, ok := hit.Fields[f].(float64); ok {
				return int64(v)
			}
			return 0
		}

		t := Tune{
			ID:              getInt("id"),
			CollectionID:    int(getInt("collection_id")),
			ReferenceNumber: getStr("reference_number"),
			Title:           getStr("title"),
			Type:            getStr("type"),
			Meter:           getStr("meter"),
			KeySignature:    getStr("key_signature"),
			RawText:         getStr("raw_text"),
			FilePath:        getStr("file_path"),
		}
		if ts, err := time.Parse(time.RFC3339Nano, getStr("created_at")); err == nil {
			t.CreatedAt = ts.UTC()
		}
		results = append(results, t)
	}
	return results, nil
}

// facetTerms counts the distinct indexed values of field. Label fields are
// lowercased at index time, so their facet values are lowercase too.
func (b *BleveStore) facetTerms(ctx context.Context, field string) ([]ValueCount, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 0
	req.AddFacet(field, bleve.NewFacetRequest(field, facetSize))

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	fr, ok := res.Facets[field]
	if !ok || fr.Terms == nil {
		return nil, nil
	}

	var counts []ValueCount
	for _, tf := range fr.Terms.Terms() {
		if tf.Term == "" {
			continue
		}
		counts = append(counts, ValueCount{Value: tf.Term, Count: tf.Count})
	}
	return rankValues(counts), nil
}

func (b *BleveStore) Stats(ctx context.Context, topN int) (Stats, error) {
	var st Stats
	var err error
	if st.TotalTunes, err = b.Count(ctx); err != nil {
		return Stats{}, err
	}

	types, err := b.facetTerms(ctx, "type")
	if err != nil {
		return Stats{}, err
	}
	keys, err := b.facetTerms(ctx, "key_signature")
	if err != nil {
		return Stats{}, err
	}
	collections, err := b.facetTerms(ctx, "collection")
	if err != nil {
		return Stats{}, err
	}

	st.TotalTypes, st.TotalKeys = len(types), len(keys)
	st.MostCommonType, st.MostCommonKey = mostCommon(types), mostCommon(keys)
	st.TopTypes, st.TopKeys = topValues(types, topN), topValues(keys, topN)

	st.TotalCollections = len(collections)
	for _, vc := range collections {
		id, err := strconv.Atoi(vc.Value)
		if err != nil {
			continue
		}
		st.PerCollection = append(st.PerCollection, CollectionCount{CollectionID: id, Count: vc.Count})
	}
	sort.Slice(st.PerCollection, func(i, j int) bool {
		return st.PerCollection[i].CollectionID < st.PerCollection[j].CollectionID
	})
	return st, nil
}

// Runs live in the index's internal key space next to the id counter.
func (b *BleveStore) RecordRun(_ context.Context, run RunSummary) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	if err := b.index.SetInternal([]byte(runKeyPrefix+run.RunID), data); err != nil {
		return err
	}
	return b.index.SetInternal([]byte(internalLast), []byte(run.RunID))
}

func (b *BleveStore) LastRun(_ context.Context) (RunSummary, error) {
	id, err := b.index.GetInternal([]byte(internalLast))
	if err != nil {
		return RunSummary{}, err
	}
	if len(id) == 0 {
		return RunSummary{}, errNotFound
	}
	data, err := b.index.GetInternal([]byte(runKeyPrefix + string(id)))
	if err != nil {
		return RunSummary{}, err
	}
	if len(data) == 0 {
		return RunSummary{}, errNotFound
	}
	var run RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return RunSummary{}, err
	}
	return run, nil
}
