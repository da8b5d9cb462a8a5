// Package config loads pairsync configuration from YAML and validates it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pairsync/internal/record"
)

//go:embed schema.cue
var schemaSource string

// Roles a device can take on the link.
const (
	RoleInitiator = "initiator"
	RoleResponder = "responder"
)

// Config is the full configuration. The json tags name the fields for
// schema validation; the yaml tags are the file format.
type Config struct {
	Device  Device  `yaml:"device" json:"device"`
	Link    Link    `yaml:"link" json:"link"`
	Store   Store   `yaml:"store" json:"store"`
	Display Display `yaml:"display" json:"display"`
	Logging Logging `yaml:"logging" json:"logging"`
}

// Device identifies this process.
type Device struct {
	Name string `yaml:"name" json:"name"`
	Role string `yaml:"role" json:"role"`
}

// Link configures the websocket session.
type Link struct {
	// Listen is the responder's HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`
	// URL is the responder's websocket endpoint, dialed by the initiator.
	URL          string        `yaml:"url" json:"url"`
	ReplyTimeout time.Duration `yaml:"reply_timeout" json:"reply_timeout"`
	SendMode     string        `yaml:"send_mode" json:"send_mode"`
	Reactivate   bool          `yaml:"reactivate" json:"reactivate"`
}

// Store configures the seed installed by Fetch. An absent or null seed
// means the built-in seed; an empty list means no seed at all.
type Store struct {
	Seed []string `yaml:"seed" json:"seed,omitempty"`
}

// Display configures timestamp rendering.
type Display struct {
	TimestampLayout string `yaml:"timestamp_layout" json:"timestamp_layout"`
	Timezone        string `yaml:"timezone" json:"timezone"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Device: Device{Name: "phone", Role: RoleInitiator},
		Link: Link{
			Listen:       "127.0.0.1:8787",
			URL:          "ws://127.0.0.1:8787/link",
			ReplyTimeout: 10 * time.Second,
			SendMode:     "reply",
		},
		Display: Display{
			TimestampLayout: record.DefaultTimestampLayout,
			Timezone:        "Local",
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the CUE schema and resolves the timezone.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: display.timezone: %w", err)
	}
	return nil
}

// Location resolves Display.Timezone. Empty means Local.
func (c Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Display.Timezone)
}

// Formatter builds the timestamp formatter for display.
func (c Config) Formatter() record.Formatter {
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return record.Formatter{Layout: c.Display.TimestampLayout, Location: loc}
}

// Level maps Logging.Level to a slog level.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SeedTexts returns the configured seed. Nil selects the built-in seed and
// a non-nil empty slice installs nothing.
func (c Config) SeedTexts() []string {
	return c.Store.Seed
}
