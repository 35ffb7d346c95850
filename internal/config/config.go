// Package config defines the importer's JSON configuration, its defaults and
// validation.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level configuration file.
type Config struct {
	// Job names the run in logs and metrics.
	Job string `json:"job"`

	Source  Source  `json:"source"`
	Storage Storage `json:"storage"`
	Aliases Aliases `json:"aliases"`
	Import  Import  `json:"import"`
	Logging Logging `json:"logging"`
	Metrics Metrics `json:"metrics"`
}

// Source describes where export files are found and archived.
type Source struct {
	Incoming  string `json:"incoming"`
	Processed string `json:"processed"`

	// IncludeProcessed also scans Processed, for re-imports.
	IncludeProcessed bool `json:"include_processed"`

	// NoMove leaves successfully imported files where they are.
	NoMove bool `json:"no_move"`
}

// Storage selects and configures the sink backend.
type Storage struct {
	// Kind is a registered backend: postgres, sqlite, mssql or memory.
	Kind string `json:"kind"`

	// DSN is expanded with os.ExpandEnv. When empty it is built from the
	// environment; see ResolveDSN.
	DSN string `json:"dsn"`

	RawTable   string `json:"raw_table"`
	CleanTable string `json:"clean_table"`

	// AutoCreateTable runs CREATE TABLE IF NOT EXISTS for both tables at startup.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Aliases points at an optional alias overlay file (JSON or TOML).
type Aliases struct {
	File string `json:"file"`
}

// Import holds pipeline knobs.
type Import struct {
	// Workers is how many files are processed at once.
	Workers int `json:"workers"`

	// FileTimeout bounds one file's processing, e.g. "5m". Zero disables it.
	FileTimeout Duration `json:"file_timeout"`

	// AllowCollisions overwrites rows whose stored sale_date differs.
	AllowCollisions bool `json:"allow_collisions"`

	// CollisionLimit caps how many collisions are listed in a report.
	CollisionLimit int `json:"collision_limit"`
}

// Logging configures the logrus logger.
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is none, datadog or pushgateway.
	Backend        string   `json:"backend"`
	PushgatewayURL string   `json:"pushgateway_url"`
	Tags           []string `json:"tags"`
	FlushEvery     Duration `json:"flush_every"`
}

// Duration is a time.Duration that reads from JSON strings like "90s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %w", err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Job: "pos_import",
		Source: Source{
			Incoming:  "data/incoming",
			Processed: "data/processed",
		},
		Storage: Storage{
			Kind:            "postgres",
			AutoCreateTable: true,
		},
		Import: Import{
			Workers:        1,
			FileTimeout:    Duration(10 * time.Minute),
			CollisionLimit: 25,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Metrics: Metrics{Backend: "none", FlushEvery: Duration(time.Minute)},
	}
}

// Parse decodes a config file over Default(), so omitted fields keep their
// defaults. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses the file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Expand applies os.ExpandEnv to paths and the DSN, then fills an empty DSN
// from the environment.
func (c *Config) Expand() error {
	c.Source.Incoming = os.ExpandEnv(c.Source.Incoming)
	c.Source.Processed = os.ExpandEnv(c.Source.Processed)
	c.Aliases.File = os.ExpandEnv(c.Aliases.File)
	c.Metrics.PushgatewayURL = os.ExpandEnv(c.Metrics.PushgatewayURL)

	dsn, err := ResolveDSN(c.Storage.Kind, os.ExpandEnv(c.Storage.DSN))
	if err != nil {
		return err
	}
	c.Storage.DSN = dsn
	return nil
}
