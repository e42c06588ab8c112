package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportTunes = []Tune{
	{ID: 1, CollectionID: 1, Title: "Down the Hill", Type: "jig", FilePath: "/b/1/a.abc"},
	{ID: 2, CollectionID: 1, Title: "The Wind", FilePath: "/b/1/a.abc"},
	{ID: 3, CollectionID: 1, Title: "Kesh", Type: "jig", FilePath: "/b/1/b.abc"},
	{ID: 4, CollectionID: 12, Title: "Morning Star", Type: "reel", FilePath: "/b/12/c.abc"},
}

func Test_Jsonizer_Nests_Collection_Type_Titles(t *testing.T) {
	t.Parallel()

	data, err := jsonizer(exportTunes, false, 0)
	require.NoError(t, err)

	var got map[string]map[string][]string
	require.NoError(t, json.Unmarshal(data, &got))

	want := map[string]map[string][]string{
		"1":  {"jig": {"Down the Hill", "Kesh"}, unknownType: {"The Wind"}},
		"12": {"reel": {"Morning Star"}},
	}
	assert.Empty(t, cmp.Diff(want, got))
	assert.NotContains(t, string(data), "\n", "indent 0 is compact")
}

func Test_Jsonizer_Shows_Paths_When_Asked(t *testing.T) {
	t.Parallel()

	data, err := jsonizer(exportTunes[3:], true, 2)
	require.NoError(t, err)

	var got map[string]map[string][]exportedTune
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []exportedTune{{ID: 4, Title: "Morning Star", Path: "/b/12/c.abc"}}, got["12"]["reel"])
	assert.Contains(t, string(data), "\n  \"12\"")
}

func Test_ExportJSON_Writes_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tunes.json")
	writeFile(t, path, "old contents")

	require.NoError(t, exportJSON(path, exportTunes, false, 2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
	assert.Contains(t, string(data), "Morning Star")
}
