package main

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

const unknownType = "unknown type"

// exportedTune is a tune entry in the export tree when paths are shown.
type exportedTune struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// jsonizer nests tunes as collection -> type -> entries. Entries are bare
// titles, or id/title/path objects when showPaths is set. indent <= 0
// produces compact output.
func jsonizer(tunes []Tune, showPaths bool, indent int) ([]byte, error) {
	type typeMap map[string][]any
	type collectionMap map[string]typeMap

	hierarchy := make(collectionMap)
	for _, t := range tunes {
		coll := strconv.Itoa(t.CollectionID)
		if _, ok := hierarchy[coll]; !ok {
			hierarchy[coll] = make(typeMap)
		}
		typ := t.Type
		if typ == "" {
			typ = unknownType
		}

		var entry any
		if showPaths {
			entry = exportedTune{ID: t.ID, Title: t.Title, Path: t.FilePath}
		} else {
			entry = t.Title
		}
		hierarchy[coll][typ] = append(hierarchy[coll][typ], entry)
	}

	if indent > 0 {
		return json.MarshalIndent(hierarchy, "", strings.Repeat(" ", indent))
	}
	return json.Marshal(hierarchy)
}

// exportJSON writes the tune tree to path. Readers never see a partly
// written file.
func exportJSON(path string, tunes []Tune, showPaths bool, indent int) error {
	data, err := jsonizer(tunes, showPaths, indent)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomic.WriteFile(path, bytes.NewReader(data))
}
