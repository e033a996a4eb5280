package pics

import (
	"slices"
	"strings"
)

// Format is the on-disk format of a PICS table.
type Format int

const (
	// FormatAuto detects the format from the content.
	FormatAuto Format = iota
	// FormatKeyValue is one KEY=VALUE entry per line.
	FormatKeyValue
	// FormatYAML is an items mapping.
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatKeyValue:
		return "key=value"
	case FormatYAML:
		return "yaml"
	default:
		return "auto"
	}
}

// EnabledValue is the only value that enables an entry.
const EnabledValue = "1"

// Entry is one parsed table entry.
type Entry struct {
	// Key is the normalized (lowercase) code.
	Key string

	// Raw is the normalized value as written.
	Raw string

	// LineNumber is the line in the source file (1-based).
	LineNumber int
}

// Enabled reports whether the entry value enables the code.
func (e Entry) Enabled() bool {
	return e.Raw == EnabledValue
}

// Table is a loaded PICS table. It is read-only once loaded and safe for
// concurrent lookups.
type Table struct {
	// Entries contains all parsed entries in source order.
	Entries []Entry

	// SourceFile is the path the table was loaded from, if any.
	SourceFile string

	// Format is the format the table was parsed from.
	Format Format

	byKey map[string]Entry
}

// NewTable creates a table from a code to enabled mapping. Codes are
// normalized the same way file entries are.
func NewTable(flags map[string]bool) *Table {
	t := &Table{byKey: make(map[string]Entry, len(flags))}
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		raw := "0"
		if flags[k] {
			raw = EnabledValue
		}
		t.add(Entry{Key: normalizeKey(k), Raw: raw})
	}
	return t
}

func (t *Table) add(e Entry) {
	if t.byKey == nil {
		t.byKey = make(map[string]Entry)
	}
	t.Entries = append(t.Entries, e)
	t.byKey[e.Key] = e
}

// Len returns the number of distinct codes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Lookup returns the enabled flag of a code and whether the code is
// present at all.
func (t *Table) Lookup(code string) (enabled, present bool) {
	if t == nil {
		return false, false
	}
	e, ok := t.byKey[normalizeKey(code)]
	if !ok {
		return false, false
	}
	return e.Enabled(), true
}

// Has returns true if the code is present and enabled.
func (t *Table) Has(code string) bool {
	enabled, _ := t.Lookup(code)
	return enabled
}

// Enabled returns the enabled codes in sorted order.
func (t *Table) Enabled() []string {
	if t == nil {
		return nil
	}
	var out []string
	for k, e := range t.byKey {
		if e.Enabled() {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func normalizeKey(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
