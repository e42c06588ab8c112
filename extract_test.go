package main

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func Test_Extract_Returns_Records_For_Two_Tune_File(t *testing.T) {
	t.Parallel()

	var got []TuneRecord
	for chunk := range Chunks(twoTunes) {
		got = append(got, Extract(chunk))
	}

	chunks := slices.Collect(Chunks(twoTunes))
	want := []TuneRecord{
		{ReferenceNumber: "1", Title: "Down the Hill", Type: "jig", Meter: "6/8", Key: "D", RawText: chunks[0]},
		{ReferenceNumber: "2", Title: "The Wind", Key: "G", RawText: chunks[1]},
	}
	assert.Empty(t, cmp.Diff(want, got), "records mismatch")
}

func Test_Extract_Keeps_Raw_Text_When_No_Field_Recognized(t *testing.T) {
	t.Parallel()

	chunk := "X:9\nsome free text"
	got := Extract(chunk)

	want := TuneRecord{ReferenceNumber: "9", RawText: chunk}
	assert.Empty(t, cmp.Diff(want, got))
}

// The first T: line wins while R, M and K take the last one. This mirrors
// how the loader has always behaved; multi-title tunes in real books
// usually list alternate titles after the main one, which should be
// confirmed against the corpus before changing it.
func Test_Extract_First_Title_Wins_Last_Key_Wins(t *testing.T) {
	t.Parallel()

	got := Extract("X:3\nT:Main Title\nT:Alternate Title\nK:D\nK:G\nM:4/4\nM:2/2\nR:reel\nR:hornpipe\n")

	assert.Equal(t, "Main Title", got.Title)
	assert.Equal(t, "G", got.Key)
	assert.Equal(t, "2/2", got.Meter)
	assert.Equal(t, "hornpipe", got.Type)
}

func Test_Extract_Trims_Lines_And_Values(t *testing.T) {
	t.Parallel()

	got := Extract("X: 4 \r\n   T:  Spaced Out  \r\n\tK:Ador\r\n")

	assert.Equal(t, "4", got.ReferenceNumber)
	assert.Equal(t, "Spaced Out", got.Title)
	assert.Equal(t, "Ador", got.Key)
}

func Test_Extract_Ignores_Unknown_And_Lowercase_Prefixes(t *testing.T) {
	t.Parallel()

	got := Extract("X:5\nC:Trad\nt:lower\nk:lower\nL:1/8\nT\n")

	assert.Equal(t, TuneRecord{ReferenceNumber: "5", RawText: "X:5\nC:Trad\nt:lower\nk:lower\nL:1/8\nT\n"}, got)
}

func Test_Extract_Is_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"X:1", "X:1\nT:A\nT:B\nK:C\n", "X:\nT:\n", "X:7\n\n\nK: Emin \n"}
	for _, in := range inputs {
		assert.Equal(t, Extract(in), Extract(in))
	}
}

func Test_Extract_Sets_Empty_Value_When_Prefix_Has_No_Value(t *testing.T) {
	t.Parallel()

	got := Extract("X:\nT:\nT:Later\n")

	assert.Equal(t, "", got.ReferenceNumber)
	// An empty first title does not block a later one.
	assert.Equal(t, "Later", got.Title)
}
