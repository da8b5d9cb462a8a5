package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "phone", cfg.Device.Name)
	assert.Equal(t, 10*time.Second, cfg.Link.ReplyTimeout)
	assert.Nil(t, cfg.SeedTexts())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "watch.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Device{Name: "watch", Role: RoleResponder}, cfg.Device)
	assert.Equal(t, "0.0.0.0:9000", cfg.Link.Listen)
	assert.Equal(t, "ws://127.0.0.1:8787/link", cfg.Link.URL, "unset keys keep defaults")
	assert.Equal(t, 2500*time.Millisecond, cfg.Link.ReplyTimeout)
	assert.Equal(t, "oneway", cfg.Link.SendMode)
	assert.True(t, cfg.Link.Reactivate)
	assert.Equal(t, []string{"buy bread", "call mom"}, cfg.SeedTexts())
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	f := cfg.Formatter()
	assert.Equal(t, "09:30", f.Format(time.Date(2023, 11, 18, 9, 30, 0, 0, time.UTC)))
}

func TestParse_SeedNilVersusEmpty(t *testing.T) {
	cfg, err := Parse([]byte("store:\n  seed: []\n"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.SeedTexts())
	assert.Empty(t, cfg.SeedTexts())

	cfg, err = Parse([]byte("store:\n  seed: null\n"))
	require.NoError(t, err)
	assert.Nil(t, cfg.SeedTexts())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "device:\n  nickname: x\n", "nickname"},
		{"bad role", "device:\n  role: observer\n", "role"},
		{"empty name", "device:\n  name: \"\"\n", "name"},
		{"bad send mode", "link:\n  send_mode: broadcast\n", "send_mode"},
		{"http url", "link:\n  url: http://example.com\n", "url"},
		{"zero timeout", "link:\n  reply_timeout: 0s\n", "reply_timeout"},
		{"bad duration", "link:\n  reply_timeout: soon\n", "time.Duration"},
		{"bad level", "logging:\n  level: loud\n", "level"},
		{"bad format", "logging:\n  format: xml\n", "format"},
		{"bad timezone", "display:\n  timezone: Mars/Olympus\n", "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		cfg := Default()
		cfg.Logging.Level = in
		assert.Equal(t, want, cfg.Level(), in)
	}
}
