package main

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is a parsed tune search. Like-type terms are ORed together and
// unlike-type terms are ANDed.
type Query struct {
	Types       []string
	Keys        []string
	Titles      []string
	Meters      []string
	Collections []int
	Any         []string // title, type or key

	// Text is the raw input, kept for backends with their own query syntax.
	Text  string
	Limit int
}

// IsEmpty reports whether q matches every tune.
func (q Query) IsEmpty() bool {
	return len(q.Types) == 0 && len(q.Keys) == 0 && len(q.Titles) == 0 &&
		len(q.Meters) == 0 && len(q.Collections) == 0 && len(q.Any) == 0
}

// plain reports whether the input used none of the prefix syntax.
func (q Query) plain() bool {
	return q.Text != "" && !strings.ContainsAny(q.Text, "!@#$%,")
}

// ParseQuery parses comma-separated search terms:
//
//	!reel      type
//	@D         key signature
//	#12        collection
//	$wind      title
//	%6/8       meter
//	wind       title, type or key
func ParseQuery(input string) (Query, error) {
	q := Query{Text: strings.TrimSpace(input)}
	for _, word := range strings.Split(input, ",") {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		switch word[0] {
		case '!':
			q.Types = appendTerm(q.Types, word[1:])
		case '@':
			q.Keys = appendTerm(q.Keys, word[1:])
		case '$':
			q.Titles = appendTerm(q.Titles, word[1:])
		case '%':
			q.Meters = appendTerm(q.Meters, word[1:])
		case '#':
			id, err := strconv.Atoi(strings.TrimSpace(word[1:]))
			if err != nil || id < 0 {
				return Query{}, fmt.Errorf("%w: collection %q is not a number", errInvalidQuery, word[1:])
			}
			q.Collections = append(q.Collections, id)
		default:
			q.Any = append(q.Any, word)
		}
	}
	return q, nil
}

func appendTerm(terms []string, term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return terms
	}
	return append(terms, term)
}

const querySyntax = `Terms are comma-separated. Like-type terms are ORed, unlike-type terms ANDed.
All text terms match case-insensitively on partial hits.

  !<type>        tunes whose type matches, e.g. !reel
  @<key>         tunes whose key signature matches, e.g. @Dmix
  #<collection>  tunes from one collection (folder number), e.g. #3
  $<title>       tunes whose title matches, e.g. $wind
  %<meter>       tunes whose meter matches, e.g. %6/8
  <text>         tunes whose title, type or key matches

Examples:
  !jig, !slide, @D   jigs or slides in D
  #1, $hill          tunes from collection 1 with "hill" in the title`
