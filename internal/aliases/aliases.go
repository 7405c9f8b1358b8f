// Package aliases maps short internal names to canonical URLs.
package aliases

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Entry struct {
	Name string
	URL  string
}

// Table is loaded once at startup and read-only afterwards, so it is safe
// for unsynchronized concurrent reads.
type Table struct {
	entries []Entry
	byName  map[string]string
}

func Empty() *Table {
	return &Table{byName: make(map[string]string)}
}

// Load reads a YAML mapping of alias name to URL. A missing or malformed
// file degrades to an empty table with a warning; startup never fails on it.
func Load(path string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Empty()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("alias_file_unavailable", "path", path, "error", err.Error())
		return Empty()
	}
	table, err := Parse(raw)
	if err != nil {
		logger.Warn("alias_file_invalid", "path", path, "error", err.Error())
		return Empty()
	}
	logger.Info("alias_table_loaded", "path", path, "count", table.Len())
	return table
}

// Parse decodes the YAML mapping preserving document order, which keeps the
// prompt rendering stable.
func Parse(raw []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	table := Empty()
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return table, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("alias file must be a mapping of name to url")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := strings.TrimSpace(root.Content[i].Value)
		url := strings.TrimSpace(root.Content[i+1].Value)
		if name == "" || url == "" {
			return nil, fmt.Errorf("alias entry %d has an empty name or url", i/2)
		}
		table.entries = append(table.entries, Entry{Name: name, URL: url})
		table.byName[strings.ToLower(name)] = url
	}
	return table, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Resolve looks up an alias case-insensitively.
func (t *Table) Resolve(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	url, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return url, ok
}

// PromptSection renders the table as instructional text for the analyzer
// prompt. Empty tables render as an empty string.
func (t *Table) PromptSection() string {
	if t.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Custom internal domain aliases (use these exact URLs):")
	for _, e := range t.entries {
		fmt.Fprintf(&b, "\n  - %q -> %q", e.Name, e.URL)
	}
	return b.String()
}
