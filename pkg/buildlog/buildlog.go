package buildlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultName is the default name used for a build log file.
const DefaultName = "packages.log"

// Entry represents a single line in a build log: one package artifact that a
// build produced, recorded as "subdir|package|version-buildstring".
type Entry struct {
	Subdir, Package, FullVersion string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s|%s|%s", e.Subdir, e.Package, e.FullVersion)
}

// Parse parses a build log into a slice of entries.
func Parse(r io.Reader) ([]Entry, error) {
	splitFunc := func(ru rune) bool {
		return string(ru) == "|"
	}

	var entries []Entry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		fields := strings.FieldsFunc(line, splitFunc)
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid line %q, expected 3 '|'-delimited fields", line)
		}

		entry := Entry{
			Subdir:      fields[0],
			Package:     fields[1],
			FullVersion: fields[2],
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning lines of build log: %w", err)
	}

	return entries, nil
}

// ParseFile parses the build log at the given path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening build log: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Write writes entries in the build log line format.
func Write(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return fmt.Errorf("writing build log entry %q: %w", e, err)
		}
	}
	return nil
}

// Append adds one entry to the build log at the given path, creating the
// file if needed.
func Append(path string, e Entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening build log: %w", err)
	}
	defer f.Close()

	return Write(f, []Entry{e})
}
