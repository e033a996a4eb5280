package pics

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

const (
	commentChar    = '#'
	valueSeparator = "="
)

// detectFormat examines the data to determine if it's key=value or YAML format.
func detectFormat(data []byte) Format {
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)

		// Skip empty lines and comments
		if len(trimmed) == 0 || trimmed[0] == commentChar {
			continue
		}

		if bytes.HasPrefix(trimmed, []byte("items:")) {
			return FormatYAML
		}
		if bytes.Contains(trimmed, []byte(valueSeparator)) {
			return FormatKeyValue
		}
		if bytes.Contains(trimmed, []byte(": ")) {
			return FormatYAML
		}
	}

	// Default to key=value if no clear indicators
	return FormatKeyValue
}

// ParseOptions configures PICS parsing behavior.
type ParseOptions struct {
	// Format specifies the input format. Use FormatAuto to auto-detect.
	Format Format
}

// Parser parses PICS tables.
type Parser struct{}

// NewParser creates a new PICS parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses a PICS file from the filesystem.
func (p *Parser) ParseFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	t, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.SourceFile = path
	return t, nil
}

// Parse parses a PICS table from a reader with auto-detection.
func (p *Parser) Parse(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes parses a PICS table from a byte slice with auto-detection.
func (p *Parser) ParseBytes(data []byte) (*Table, error) {
	return p.ParseBytesWithOptions(data, ParseOptions{Format: FormatAuto})
}

// ParseBytesWithOptions parses a PICS table with explicit options.
func (p *Parser) ParseBytesWithOptions(data []byte, opts ParseOptions) (*Table, error) {
	format := opts.Format
	if format == FormatAuto {
		format = detectFormat(data)
	}

	var (
		t   *Table
		err error
	)
	switch format {
	case FormatYAML:
		t, err = p.parseYAML(data)
	default:
		t, err = p.parseKeyValue(data)
	}
	if err != nil {
		return nil, err
	}

	t.Format = format
	return t, nil
}

// parseKeyValue parses PICS data in key=value format.
func (p *Parser) parseKeyValue(data []byte) (*Table, error) {
	t := &Table{byKey: make(map[string]Entry)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := clearInput(scanner.Text())

		// Skip empty lines and comments
		if line == "" || line[0] == commentChar {
			continue
		}

		parts := strings.Split(line, valueSeparator)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format: expected CODE=VALUE", lineNum)
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("line %d: empty code", lineNum)
		}

		t.add(Entry{Key: parts[0], Raw: parts[1], LineNumber: lineNum})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return t, nil
}

// clearInput removes control and other non-printing characters and spaces,
// then lowercases the rest.
func clearInput(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == ' ' || unicode.In(r, unicode.C) {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// ParseString is a convenience function to parse a PICS table from a string.
func ParseString(s string) (*Table, error) {
	return NewParser().ParseBytes([]byte(s))
}

// ParseBytes is a convenience function to parse a PICS table from bytes.
func ParseBytes(data []byte) (*Table, error) {
	return NewParser().ParseBytes(data)
}

// Parse is a convenience function to parse a PICS table from a reader.
func Parse(r io.Reader) (*Table, error) {
	return NewParser().Parse(r)
}

// LoadFile is a convenience function to parse a PICS file.
func LoadFile(path string) (*Table, error) {
	return NewParser().ParseFile(path)
}
