package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/config"
)

type nullLogger struct{}

func (nullLogger) Info(string) {}
func (nullLogger) Warn(string) {}
func (nullLogger) Error(error) {}

func TestLoader_LoadMissingFileYieldsEmptyConfig(t *testing.T) {
	l := config.NewLoader(nullLogger{})
	cfg, err := l.Load(filepath.Join(t.TempDir(), "config.ini"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Core)
	assert.Empty(t, cfg.Remotes)
	assert.Empty(t, cfg.Queues)
}

func TestLoader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	l := config.NewLoader(nullLogger{})

	cfg := &config.Config{
		Core: config.Core{Cache: "5G", Curl: "curl", Tmpdir: "/tmp/cellar"},
		Remotes: map[string]config.Remote{
			"origin": {Host: "build.example.com", Path: "/var/cellar"},
		},
		Queues: map[string]config.Queue{
			"ci": {Host: "https://queue.example.com", Token: "secret"},
		},
	}
	require.NoError(t, l.Save(path, cfg))

	loaded, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Core, loaded.Core)
	assert.Equal(t, cfg.Remotes, loaded.Remotes)
	assert.Equal(t, cfg.Queues, loaded.Queues)
}

func TestLoader_ParseQuotedSectionNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	content := "[core]\ncache = 1G\n\n[remote \"origin\"]\nhost = example.com\npath = /srv/cellar\n\n[queue \"default\"]\nhost = https://q\ntoken = tok\n"
	require.NoError(t, writeFile(path, content))

	l := config.NewLoader(nullLogger{})
	cfg, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1G", cfg.Core.Cache)
	require.Contains(t, cfg.Remotes, "origin")
	assert.Equal(t, "example.com", cfg.Remotes["origin"].Host)
	assert.Equal(t, "/srv/cellar", cfg.Remotes["origin"].Path)
	require.Contains(t, cfg.Queues, "default")
	assert.Equal(t, "tok", cfg.Queues["default"].Token)
}

func TestLoader_UnknownSectionIsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, writeFile(path, "[bogus]\nkey = value\n"))

	l := config.NewLoader(nullLogger{})
	_, err := l.Load(path)
	assert.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
