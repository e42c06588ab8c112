package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfig_Uses_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	cfg, sources, err := LoadConfig(workDir, "", map[string]string{"HOME": t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workDir, "abc_books"), cfg.Root)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, strings.HasSuffix(cfg.Database, ".tunedb.sqlite"))
	assert.Equal(t, ConfigSources{}, sources)
	require.NoError(t, validateConfig(cfg))
}

func Test_LoadConfig_Layers_Global_Project_And_Explicit_Files(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	workDir := t.TempDir()
	globalPath := filepath.Join(home, ".config", "tunedb", "config.json")
	writeFile(t, globalPath, `{
		// user wide
		"database": "/var/lib/tunes.sqlite",
		"workers": 2,
		"log_level": "debug",
	}`)
	writeFile(t, filepath.Join(workDir, ConfigFileName), `{"root": "books", "workers": 4}`)

	cfg, sources, err := LoadConfig(workDir, "", map[string]string{"HOME": home})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workDir, "books"), cfg.Root)
	assert.Equal(t, "/var/lib/tunes.sqlite", cfg.Database)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, globalPath, sources.Global)
	assert.Equal(t, filepath.Join(workDir, ConfigFileName), sources.Project)

	writeFile(t, filepath.Join(workDir, "ci.json"), `{"root": "/abs/books", "insert_timeout": "250ms", "document_backend": true}`)
	cfg, sources, err = LoadConfig(workDir, "ci.json", map[string]string{"HOME": home})
	require.NoError(t, err)

	assert.Equal(t, "/abs/books", cfg.Root)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.InsertTimeout)
	assert.True(t, cfg.DocumentBackend)
	assert.Equal(t, 2, cfg.Workers, "explicit file replaces the project file")
	assert.Equal(t, filepath.Join(workDir, "ci.json"), sources.Project)
}

func Test_LoadConfig_Prefers_XDG_Config_Home(t *testing.T) {
	t.Parallel()

	xdg := t.TempDir()
	writeFile(t, filepath.Join(xdg, "tunedb", "config.json"), `{"log_format": "json"}`)

	cfg, sources, err := LoadConfig(t.TempDir(), "", map[string]string{"XDG_CONFIG_HOME": xdg, "HOME": t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, filepath.Join(xdg, "tunedb", "config.json"), sources.Global)
}

func Test_LoadConfig_Errors(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	env := map[string]string{"HOME": t.TempDir()}

	_, _, err := LoadConfig(workDir, "missing.json", env)
	require.ErrorIs(t, err, errConfigFileNotFound)

	writeFile(t, filepath.Join(workDir, "bad.json"), `{"workers": "many"}`)
	_, _, err = LoadConfig(workDir, "bad.json", env)
	require.ErrorIs(t, err, errConfigInvalid)

	writeFile(t, filepath.Join(workDir, "broken.json"), `{"root": `)
	_, _, err = LoadConfig(workDir, "broken.json", env)
	require.ErrorIs(t, err, errConfigInvalid)

	writeFile(t, filepath.Join(workDir, "dur.json"), `{"insert_timeout": "soon"}`)
	_, _, err = LoadConfig(workDir, "dur.json", env)
	require.ErrorIs(t, err, errConfigInvalid)
}

func Test_ValidateConfig(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig()
	require.NoError(t, validateConfig(valid))

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyRoot", func(c *Config) { c.Root = "" }},
		{"EmptyDatabase", func(c *Config) { c.Database = "" }},
		{"ZeroWorkers", func(c *Config) { c.Workers = 0 }},
		{"NegativeTimeout", func(c *Config) { c.InsertTimeout = Duration(-time.Second) }},
		{"BadLevel", func(c *Config) { c.LogLevel = "loud" }},
		{"BadFormat", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tc := range testCases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		assert.Error(t, validateConfig(cfg), tc.name)
	}

	cfg := DefaultConfig()
	cfg.Root = ""
	require.ErrorIs(t, validateConfig(cfg), errRootEmpty)
}

func Test_FormatConfig_Round_Trips(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.InsertTimeout = Duration(3 * time.Second)
	text, err := FormatConfig(cfg)
	require.NoError(t, err)
	assert.Contains(t, text, `"insert_timeout": "3s"`)

	back, err := parseConfig([]byte(text))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
