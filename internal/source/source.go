// Package source finds export files to import and archives them afterwards.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// Extensions are the file suffixes picked up by Scan, matched case-insensitively.
var Extensions = []string{".xlsx", ".xls"}

// Options controls Scan.
type Options struct {
	Incoming  string
	Processed string

	// IncludeProcessed also lists files already archived in Processed.
	IncludeProcessed bool
}

// EnsureDirs creates the incoming and processed directories when missing.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	return nil
}

// Scan lists candidate files sorted by path with duplicates removed.
//
// Directories are not descended into. Hidden files and Excel lock files
// ("~$name.xlsx") are skipped.
func Scan(opts Options) ([]string, error) {
	dirs := []string{opts.Incoming}
	if opts.IncludeProcessed && strings.TrimSpace(opts.Processed) != "" {
		dirs = append(dirs, opts.Processed)
	}

	seen := map[string]bool{}
	var out []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !isCandidate(e.Name()) {
				continue
			}
			full := filepath.Join(dir, e.Name())
			abs, err := filepath.Abs(full)
			if err != nil {
				abs = full
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, full)
		}
	}

	sort.Strings(out)
	return out, nil
}

func isCandidate(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Archive moves path into dir, replacing a file of the same name. It returns
// the destination and whether a move happened; a file already in dir is left
// alone.
func Archive(path, dir string) (dest string, moved bool, err error) {
	dest = filepath.Join(dir, filepath.Base(path))

	srcAbs, err := filepath.Abs(path)
	if err != nil {
		return "", false, err
	}
	dstAbs, err := filepath.Abs(dest)
	if err != nil {
		return "", false, err
	}
	if srcAbs == dstAbs {
		return dest, false, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create dir %s: %w", dir, err)
	}

	err = os.Rename(path, dest)
	if errors.Is(err, syscall.EXDEV) {
		err = copyThenRemove(path, dest)
	}
	if err != nil {
		return "", false, fmt.Errorf("move %s: %w", filepath.Base(path), err)
	}
	return dest, true, nil
}

// copyThenRemove moves across filesystems. The copy goes to a temporary name
// first so a crash never leaves a truncated file under the final name.
func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	in.Close()
	return os.Remove(src)
}
