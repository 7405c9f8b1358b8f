package aliases

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseAndResolve(t *testing.T) {
	t.Parallel()

	table, err := Parse([]byte("CRM: https://crm.internal.example.com\nWiki: https://wiki.internal.example.com\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	cases := []struct {
		name    string
		wantURL string
		wantOK  bool
	}{
		{"CRM", "https://crm.internal.example.com", true},
		{"crm", "https://crm.internal.example.com", true},
		{"  WIKI  ", "https://wiki.internal.example.com", true},
		{"unknown", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		url, ok := table.Resolve(tc.name)
		if url != tc.wantURL || ok != tc.wantOK {
			t.Fatalf("Resolve(%q) = (%q, %v), want (%q, %v)", tc.name, url, ok, tc.wantURL, tc.wantOK)
		}
	}
}

func TestPromptSection(t *testing.T) {
	t.Parallel()

	table, err := Parse([]byte("CRM: https://crm.internal.example.com\nWiki: https://wiki.internal.example.com\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	section := table.PromptSection()
	if !strings.Contains(section, `"CRM" -> "https://crm.internal.example.com"`) {
		t.Fatalf("prompt section missing CRM entry: %q", section)
	}
	crm := strings.Index(section, "CRM")
	wiki := strings.Index(section, "Wiki")
	if crm < 0 || wiki < 0 || crm > wiki {
		t.Fatalf("prompt section does not preserve file order: %q", section)
	}
}

func TestPromptSectionEmptyTable(t *testing.T) {
	t.Parallel()

	if got := Empty().PromptSection(); got != "" {
		t.Fatalf("PromptSection() = %q, want empty", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	table := Load(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
	if _, ok := table.Resolve("anything"); ok {
		t.Fatalf("empty table resolved an alias")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	if err := os.WriteFile(path, []byte("- just\n- a\n- list\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	table := Load(path, testLogger())
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
}

func TestParseEmptyDocument(t *testing.T) {
	t.Parallel()

	table, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
}
