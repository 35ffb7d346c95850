package extract

import (
	"context"
	"fmt"
	"os"

	"posimport/internal/importerr"
	"posimport/internal/sniff"
)

const (
	binarySuggestion = "open the file in a spreadsheet program and re-save it as .xlsx"
	htmlSuggestion   = "fix the source export or open it and re-save it as .xlsx"
)

// Reader dispatches a sniffed file to the matching decoder.
type Reader struct {
	// HTML extracts HTML exports; typically FirstSuccess over several parsers.
	HTML Strategy

	// Hooks for tests.
	decodeXLSX func(path string) (*Grid, error)
	decodeXLS  func(path string) (*Grid, error)
	readFile   func(path string) ([]byte, error)
}

// NewReader returns a Reader using the real decoders.
func NewReader(html Strategy) *Reader {
	return &Reader{
		HTML:       html,
		decodeXLSX: DecodeXLSX,
		decodeXLS:  DecodeXLS,
		readFile:   os.ReadFile,
	}
}

// Read extracts the table of a sniffed file. Failures are classified as
// importerr.ExtractionFailure with a BinaryDecode or HTMLNoTable cause.
func (r *Reader) Read(ctx context.Context, res sniff.Result, expected map[string]struct{}) (*Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch res.Format {
	case sniff.FormatXLSX:
		return r.binary(res, r.decodeXLSX)
	case sniff.FormatXLS:
		return r.binary(res, r.decodeXLS)
	case sniff.FormatHTML:
		return r.html(ctx, res, expected)
	default:
		return nil, importerr.Newf(importerr.UnsupportedFormat, "unsupported format %s", res.Format).WithFile(res.Path)
	}
}

func (r *Reader) binary(res sniff.Result, decode func(string) (*Grid, error)) (*Grid, error) {
	g, err := decode(res.Path)
	if err == nil {
		return g, nil
	}
	msg := "unsupported or corrupt spreadsheet"
	if mm := res.MagicMismatch(); mm != "" {
		msg = fmt.Sprintf("%s (%s)", msg, mm)
	}
	return nil, importerr.Wrap(err, importerr.ExtractionFailure, msg).
		WithCause(importerr.BinaryDecode).
		WithFile(res.Path).
		WithSuggestion(binarySuggestion)
}

func (r *Reader) html(ctx context.Context, res sniff.Result, expected map[string]struct{}) (*Grid, error) {
	if r.HTML == nil {
		return nil, fmt.Errorf("no HTML strategy configured")
	}
	b, err := r.readFile(res.Path)
	if err != nil {
		return nil, importerr.Wrap(err, importerr.ExtractionFailure, "read html export").
			WithCause(importerr.HTMLNoTable).
			WithFile(res.Path)
	}

	g, err := r.HTML.Extract(ctx, b, expected)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, importerr.Wrap(err, importerr.ExtractionFailure, "HTML export detected but no parseable table found").
			WithCause(importerr.HTMLNoTable).
			WithFile(res.Path).
			WithSuggestion(htmlSuggestion)
	}
	return g, nil
}
