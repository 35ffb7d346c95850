// Package sniff classifies POS export files by extension and content prefix.
package sniff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"posimport/internal/importerr"
)

// MaxSniffBytes is how much of a file is inspected.
const MaxSniffBytes = 4096

// Format is the detected container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatXLSX
	FormatXLS
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatXLSX:
		return "xlsx"
	case FormatXLS:
		return "xls"
	case FormatHTML:
		return "html"
	default:
		return "unknown"
	}
}

// Magic is the container signature found at the start of the file.
type Magic int

const (
	MagicNone Magic = iota
	MagicOLE2
	MagicZIP
)

func (m Magic) String() string {
	switch m {
	case MagicOLE2:
		return "ole2"
	case MagicZIP:
		return "zip"
	default:
		return "none"
	}
}

var (
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}

	htmlMarkers = [][]byte{
		[]byte("<html"),
		[]byte("<!doctype html"),
		[]byte("<table"),
	}
)

// Result is the outcome of Detect.
type Result struct {
	Path   string
	Format Format
	Magic  Magic
}

// MagicMismatch describes a disagreement between the extension-derived
// format and the container signature, or "" when they agree.
func (r Result) MagicMismatch() string {
	switch {
	case r.Format == FormatXLSX && r.Magic == MagicOLE2:
		return "extension says xlsx but content is a legacy xls container"
	case r.Format == FormatXLSX && r.Magic == MagicNone:
		return "extension says xlsx but content is not a zip container"
	case r.Format == FormatXLS && r.Magic == MagicZIP:
		return "extension says xls but content is an xlsx (zip) container"
	case r.Format == FormatXLS && r.Magic == MagicNone:
		return "extension says xls but content is neither ole2 nor html"
	}
	return ""
}

// Detect classifies path.
//
// Only .xlsx and .xls (case-insensitive) are accepted. A .xls whose leading
// bytes contain an HTML marker is an HTML export; everything else with that
// extension is treated as a binary workbook.
func Detect(ctx context.Context, path string) (Result, error) {
	res := Result{Path: path}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".xls" {
		return res, importerr.Newf(importerr.UnsupportedFormat, "unsupported file extension %q", filepath.Ext(path)).
			WithFile(path).
			WithSuggestion("only .xlsx and .xls exports are imported")
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	prefix, err := readPrefix(path, MaxSniffBytes)
	if err != nil {
		return res, importerr.Wrap(err, importerr.ExtractionFailure, "read file").WithFile(path)
	}
	res.Magic = magicOf(prefix)

	switch ext {
	case ".xlsx":
		res.Format = FormatXLSX
	case ".xls":
		if looksLikeHTML(prefix) {
			res.Format = FormatHTML
		} else {
			res.Format = FormatXLS
		}
	}
	return res, nil
}

// Classify is Detect without I/O, for callers that already hold the prefix.
func Classify(path string, prefix []byte) (Result, error) {
	res := Result{Path: path, Magic: magicOf(prefix)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		res.Format = FormatXLSX
	case ".xls":
		if len(prefix) > MaxSniffBytes {
			prefix = prefix[:MaxSniffBytes]
		}
		if looksLikeHTML(prefix) {
			res.Format = FormatHTML
		} else {
			res.Format = FormatXLS
		}
	default:
		return res, importerr.Newf(importerr.UnsupportedFormat, "unsupported file extension %q", filepath.Ext(path)).WithFile(path)
	}
	return res, nil
}

func readPrefix(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	m, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read prefix: %w", err)
	}
	return buf[:m], nil
}

func looksLikeHTML(prefix []byte) bool {
	lower := bytes.ToLower(prefix)
	for _, m := range htmlMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

func magicOf(prefix []byte) Magic {
	switch {
	case bytes.HasPrefix(prefix, ole2Magic):
		return MagicOLE2
	case bytes.HasPrefix(prefix, zipMagic):
		return MagicZIP
	default:
		return MagicNone
	}
}
