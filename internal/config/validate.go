package config

import (
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by a JSON path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownStorage = map[string]bool{"postgres": true, "sqlite": true, "mssql": true, "memory": true}
	knownMetrics = map[string]bool{"": true, "none": true, "datadog": true, "dd": true, "pushgateway": true}
	knownLevels  = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	knownFormats = map[string]bool{"": true, "text": true, "json": true}
)

// Validate checks c and returns every problem found, errors and warnings.
func Validate(c Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, msg string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(msg, args...)})
	}

	if strings.TrimSpace(c.Source.Incoming) == "" {
		add(SeverityError, "source.incoming", "must be set")
	}
	if strings.TrimSpace(c.Source.Processed) == "" {
		if c.Source.IncludeProcessed {
			add(SeverityError, "source.processed", "must be set when include_processed is true")
		}
		if !c.Source.NoMove {
			add(SeverityError, "source.processed", "must be set unless no_move is true")
		}
	}

	kind := strings.ToLower(strings.TrimSpace(c.Storage.Kind))
	switch {
	case kind == "":
		add(SeverityError, "storage.kind", "must be set")
	case !knownStorage[kind]:
		add(SeverityError, "storage.kind", "unknown backend %q (postgres|sqlite|mssql|memory)", c.Storage.Kind)
	}
	if c.Storage.RawTable != "" && c.Storage.RawTable == c.Storage.CleanTable {
		add(SeverityError, "storage.clean_table", "must differ from storage.raw_table")
	}
	if kind != "memory" && !c.Storage.AutoCreateTable {
		add(SeverityWarning, "storage.auto_create_table", "false: tables must already exist")
	}

	if c.Import.Workers < 1 {
		add(SeverityError, "import.workers", "must be >= 1, got %d", c.Import.Workers)
	}
	if c.Import.FileTimeout < 0 {
		add(SeverityError, "import.file_timeout", "must not be negative")
	}
	if c.Import.CollisionLimit < 1 {
		add(SeverityError, "import.collision_limit", "must be >= 1, got %d", c.Import.CollisionLimit)
	}
	if c.Import.AllowCollisions {
		add(SeverityWarning, "import.allow_collisions", "rows with a different stored sale_date will be overwritten")
	}

	if !knownLevels[strings.ToLower(c.Logging.Level)] {
		add(SeverityError, "logging.level", "unknown level %q", c.Logging.Level)
	}
	if !knownFormats[strings.ToLower(c.Logging.Format)] {
		add(SeverityError, "logging.format", "unknown format %q (text|json)", c.Logging.Format)
	}

	backend := strings.ToLower(c.Metrics.Backend)
	if !knownMetrics[backend] {
		add(SeverityError, "metrics.backend", "unknown backend %q (none|datadog|pushgateway)", c.Metrics.Backend)
	}
	if backend == "pushgateway" && strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
		add(SeverityWarning, "metrics.pushgateway_url", "empty: PUSHGATEWAY_URL or http://localhost:9091 is used")
	}

	return out
}
