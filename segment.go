package main

import (
	"iter"
	"os"
	"strings"
	"unicode/utf8"
)

// recordMarker starts a tune when it begins a line.
const recordMarker = "X:"

// DecodeText converts file bytes to text, dropping invalid UTF-8 sequences.
// The bool reports whether anything was dropped.
func DecodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), false
	}
	return strings.ToValidUTF8(string(data), ""), true
}

// Sections splits text at every line that starts with the record marker.
// Each section keeps its trailing newline, so concatenating the sections
// (including any text before the first marker) gives back text unchanged.
func Sections(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		for pos := 0; pos < len(text); {
			nl := strings.IndexByte(text[pos:], '\n')
			if nl < 0 {
				break
			}
			lineStart := pos + nl + 1
			if strings.HasPrefix(text[lineStart:], recordMarker) {
				if !yield(text[start:lineStart]) {
					return
				}
				start = lineStart
			}
			pos = lineStart
		}
		if start < len(text) {
			yield(text[start:])
		}
	}
}

// Chunks yields the sections of text that hold a tune. Leading text before
// the first marker and blank sections are dropped.
func Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for s := range Sections(text) {
			if !isTuneChunk(s) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

func isTuneChunk(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), recordMarker)
}

// ReadTuneFile reads path and extracts every tune in it. lossy reports
// whether undecodable bytes had to be dropped.
func ReadTuneFile(path string) (tunes []TuneRecord, lossy bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	text, lossy := DecodeText(data)
	for chunk := range Chunks(text) {
		tunes = append(tunes, Extract(chunk))
	}
	return tunes, lossy, nil
}
