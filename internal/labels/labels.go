// Package labels loads class label tables, one "<index>: <name>" entry per line.
package labels

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrLabelFile is returned when the label file cannot be read.
	ErrLabelFile = errors.New("label file unreadable")

	// ErrLabelFormat is returned when an entry has no ":" delimiter.
	ErrLabelFormat = errors.New("label entry malformed")
)

// Table is an ordered list of raw label entries, index-aligned with a model's
// output classes.
type Table []string

// Load reads a label table from path.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLabelFile, err)
	}
	t, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLabelFile, path, err)
	}
	return t, nil
}

// Parse reads one entry per line. Lines are trimmed and trailing blank lines
// are dropped; blank lines in the middle are kept so indices stay aligned.
func Parse(r io.Reader) (Table, error) {
	var t Table
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t = append(t, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for len(t) > 0 && t[len(t)-1] == "" {
		t = t[:len(t)-1]
	}
	return t, nil
}

// Name returns the display name of entry i: the text after the first colon,
// trimmed.
func (t Table) Name(i int) (string, error) {
	if i < 0 || i >= len(t) {
		return "", fmt.Errorf("label index %d out of range [0, %d)", i, len(t))
	}
	return DisplayName(t[i])
}

// DisplayName extracts the name from a "<id>: <name>" entry.
func DisplayName(entry string) (string, error) {
	_, name, ok := strings.Cut(entry, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q has no ':' delimiter", ErrLabelFormat, entry)
	}
	return strings.TrimSpace(name), nil
}
