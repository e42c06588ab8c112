package main

import "strings"

type fieldSetter func(rec *TuneRecord, value string)

// lastWins overwrites the field on every matching line.
func lastWins(field func(*TuneRecord) *string) fieldSetter {
	return func(rec *TuneRecord, value string) {
		*field(rec) = value
	}
}

// firstWins only sets the field while it is still empty.
func firstWins(field func(*TuneRecord) *string) fieldSetter {
	return func(rec *TuneRecord, value string) {
		if p := field(rec); *p == "" {
			*p = value
		}
	}
}

// fieldPrefixes maps the recognized two-character line prefixes to the
// field they fill. Any other line is ignored.
var fieldPrefixes = map[string]fieldSetter{
	"X:": lastWins(func(r *TuneRecord) *string { return &r.ReferenceNumber }),
	"T:": firstWins(func(r *TuneRecord) *string { return &r.Title }),
	"R:": lastWins(func(r *TuneRecord) *string { return &r.Type }),
	"M:": lastWins(func(r *TuneRecord) *string { return &r.Meter }),
	"K:": lastWins(func(r *TuneRecord) *string { return &r.Key }),
}

// Extract parses one tune chunk. It never fails: a chunk without any
// recognized field still yields a record with empty fields.
func Extract(chunk string) TuneRecord {
	rec := TuneRecord{RawText: chunk}
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 {
			continue
		}
		if set, ok := fieldPrefixes[line[:2]]; ok {
			set(&rec, strings.TrimSpace(line[2:]))
		}
	}
	return rec
}
