// Package labels - Ordered class-name tables for detection models.
package labels

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
)

// Table is an ordered list of class names. Index stability is load order:
// a model's class index i always resolves to the i-th line of the source
// file for the lifetime of the table.
type Table struct {
	names []string
}

// NewTable builds a table directly from an ordered name list.
func NewTable(names []string) *Table {
	out := make([]string, len(names))
	copy(out, names)
	return &Table{names: out}
}

// Load reads a newline-delimited label file into a Table.
//
// Arguments:
//   - path: Path to the label file, one class name per line.
//
// Returns:
//   - *Table: The loaded table.
//   - error: Error if the file cannot be read or contains no names.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening label file %s", path)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading label file %s", path)
	}

	// Trailing blank lines are a file-format artifact, not classes.
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}

	if len(names) == 0 {
		return nil, errors.Errorf("label file %s contains no class names", path)
	}

	return &Table{names: names}, nil
}

// Len returns the number of classes in the table.
func (t *Table) Len() int {
	return len(t.names)
}

// Name resolves a class index to its name. The second return is false when
// the index falls outside the table.
func (t *Table) Name(index int) (string, bool) {
	if index < 0 || index >= len(t.names) {
		return "", false
	}
	return t.names[index], true
}
