package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// AliasFile describes an alias overlay file.
//
// JSON:
//
//	{"aliases": {"Sale No.": "sale_id"}, "replace": false}
//
// TOML:
//
//	replace = false
//	[aliases]
//	"Sale No." = "sale_id"
type AliasFile struct {
	Aliases map[string]string `json:"aliases" toml:"aliases"`

	// Replace discards the built-in aliases instead of extending them.
	Replace bool `json:"replace,omitempty" toml:"replace"`
}

// LoadAliasFile reads an alias overlay. Files ending in .toml are decoded as
// TOML, everything else as JSON.
func LoadAliasFile(path string) (*AliasFile, error) {
	var af AliasFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &af); err != nil {
			return nil, fmt.Errorf("parse aliases toml: %w", err)
		}
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read aliases file: %w", err)
		}
		if err := json.Unmarshal(b, &af); err != nil {
			return nil, fmt.Errorf("parse aliases json: %w", err)
		}
	}

	if len(af.Aliases) == 0 {
		return nil, fmt.Errorf("aliases file %s has no aliases", path)
	}
	return &af, nil
}

// Load builds a Schema from the built-in aliases plus the overlay at path.
// An empty path yields Default().
func Load(path string) (*Schema, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	af, err := LoadAliasFile(path)
	if err != nil {
		return nil, err
	}

	aliases := DefaultAliases()
	if af.Replace {
		aliases = make(map[string]string, len(af.Aliases))
	}
	for label, field := range af.Aliases {
		aliases[label] = field
	}
	return New(aliases)
}
