// Command pos_inspect explains how the importer sees an export file without
// writing anything: the sniffed format, every HTML table candidate with its
// score, the header mapping and a preview of the normalized rows.
//
// Usage:
//
//	pos_inspect data/incoming/report.xls
//
// Machine-readable output:
//
//	pos_inspect -json -rows 10 a.xlsx b.xls
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"posimport/internal/coerce"
	"posimport/internal/extract"
	"posimport/internal/extracthtml"
	"posimport/internal/importerr"
	"posimport/internal/mapping"
	"posimport/internal/schema"
	"posimport/internal/sniff"
	"posimport/internal/storage"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// report is the -json output for one file.
type report struct {
	File     string              `json:"file"`
	Format   string              `json:"format,omitempty"`
	Magic    string              `json:"magic,omitempty"`
	Headers  []string            `json:"headers,omitempty"`
	Mapped   map[string][]string `json:"mapped,omitempty"`
	Missing  []string            `json:"missing,omitempty"`
	Unmapped []string            `json:"unmapped,omitempty"`
	Rows     int                 `json:"rows"`
	Preview  []map[string]any    `json:"preview,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// run returns 0 when every file could be read and mapped, 1 when any could
// not, and 2 for usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pos_inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	aliasFile := fs.String("aliases", "", "alias overlay file (JSON or TOML)")
	asJSON := fs.Bool("json", false, "print one JSON object per file")
	previewRows := fs.Int("rows", 5, "normalized rows to preview per file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: pos_inspect [-aliases file] [-json] [-rows n] file...")
		return 2
	}

	s, err := schema.Load(*aliasFile)
	if err != nil {
		fmt.Fprintf(stderr, "load aliases: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)

	code := 0
	for _, path := range fs.Args() {
		var text io.Writer = stdout
		if *asJSON {
			text = io.Discard
		}
		rep := inspect(ctx, text, s, path, *previewRows)
		if rep.Error != "" {
			code = 1
		}
		if *asJSON {
			if err := enc.Encode(rep); err != nil {
				fmt.Fprintf(stderr, "encode json: %v\n", err)
				return 1
			}
		}
	}
	return code
}

func inspect(ctx context.Context, w io.Writer, s *schema.Schema, path string, preview int) report {
	rep := report{File: path}
	fail := func(err error) report {
		rep.Error = err.Error()
		fmt.Fprintf(w, "  error: %v\n", err)
		if hint := importerr.SuggestionOf(err); hint != "" {
			fmt.Fprintf(w, "  hint: %s\n", hint)
		}
		return rep
	}

	fmt.Fprintf(w, "== %s\n", path)
	det, err := sniff.Detect(ctx, path)
	if err != nil {
		return fail(err)
	}
	rep.Format, rep.Magic = det.Format.String(), det.Magic.String()
	fmt.Fprintf(w, "  format: %s (magic %s)\n", rep.Format, rep.Magic)
	if mm := det.MagicMismatch(); mm != "" {
		fmt.Fprintf(w, "  warning: %s\n", mm)
	}

	if det.Format == sniff.FormatHTML {
		b, err := os.ReadFile(path)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(w, "  tables:")
		if err := extracthtml.DebugTables(w, b, s.ExpectedHeaders()); err != nil {
			return fail(err)
		}
	}

	reader := extract.NewReader(extract.FirstSuccess(extracthtml.GoqueryStrategy{}, extracthtml.TokenizerStrategy{}))
	g, err := reader.Read(ctx, det, s.ExpectedHeaders())
	if err != nil {
		return fail(err)
	}
	rep.Headers = g.Headers
	rep.Rows = len(g.Rows)
	fmt.Fprintf(w, "  rows: %d\n", rep.Rows)

	p, err := mapping.Map(s, g)
	if err != nil {
		return fail(err)
	}

	rep.Mapped = make(map[string][]string)
	fmt.Fprintln(w, "  mapping:")
	for _, field := range p.Mapped() {
		var labels []string
		for _, i := range p.Sources(field) {
			labels = append(labels, g.Headers[i])
		}
		rep.Mapped[field] = labels
		fmt.Fprintf(w, "    %-24s <- %s\n", field, strings.Join(labels, " | "))
	}
	rep.Missing = p.Missing()
	rep.Unmapped = p.Unmapped()
	if len(rep.Missing) > 0 {
		fmt.Fprintf(w, "  null (no column): %s\n", strings.Join(rep.Missing, ", "))
	}
	if len(rep.Unmapped) > 0 {
		fmt.Fprintf(w, "  raw only: %s\n", strings.Join(rep.Unmapped, ", "))
	}

	fields := s.Fields()
	for i, r := range g.Rows {
		if i >= preview {
			break
		}
		clean := coerce.Row(s, p, r, "")
		row := make(map[string]any)
		var parts []string
		for j, f := range fields {
			v := storage.SQLValue(clean.Values[j], storage.AsISODate)
			if v == nil {
				continue
			}
			row[f.Name] = v
			parts = append(parts, fmt.Sprintf("%s=%v", f.Name, v))
		}
		rep.Preview = append(rep.Preview, row)
		fmt.Fprintf(w, "  row %d: %s\n", r.ID, strings.Join(parts, " "))
	}
	return rep
}
