package fib

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// StaticFile edits a cefnetd FIB file. Entries are compared by their
// formatted line; comments and blank lines are kept on rewrite.
type StaticFile struct {
	Path string
}

// Entries returns the entry lines in file order, skipping blanks and
// comments. A missing file reads as empty.
func (f StaticFile) Entries() ([]string, error) {
	lines, err := f.readLines()
	if err != nil {
		return nil, err
	}
	var entries []string
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" && !strings.HasPrefix(s, "#") {
			entries = append(entries, s)
		}
	}
	return entries, nil
}

// Add appends e unless an identical line is already present.
func (f StaticFile) Add(e Entry) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	entries, err := f.Entries()
	if err != nil {
		return false, err
	}
	line := e.Line()
	if slices.Contains(entries, line) {
		return false, nil
	}
	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", f.Path, err)
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		file.Close()
		return false, fmt.Errorf("append to %s: %w", f.Path, err)
	}
	if err := file.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", f.Path, err)
	}
	return true, nil
}

// Remove deletes every line equal to e. It reports false when e was absent.
func (f StaticFile) Remove(e Entry) (bool, error) {
	lines, err := f.readLines()
	if err != nil {
		return false, err
	}
	target := e.Line()
	kept := lines[:0:0]
	for _, l := range lines {
		if strings.TrimSpace(l) == target {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == len(lines) {
		return false, nil
	}
	if err := f.writeLines(kept); err != nil {
		return false, err
	}
	return true, nil
}

func (f StaticFile) readLines() ([]string, error) {
	file, err := os.Open(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer file.Close()

	var lines []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return lines, nil
}

// writeLines replaces the file through a temp file in the same directory.
func (f StaticFile) writeLines(lines []string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(f.Path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".cefnetd.fib.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", f.Path, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Path, err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}
