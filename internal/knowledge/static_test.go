package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestQueryMatchesKeywordsAndUntagged(t *testing.T) {
	p := NewStaticProvider([]Document{
		{FileName: "pricing.md", Content: "Gold plan costs 100", Keywords: []string{"price", "plan"}},
		{FileName: "about.md", Content: "We sell CRM software"},
		{FileName: "holidays.md", Content: "Closed on Friday", Keywords: []string{"holiday"}},
	}, 0)

	got := p.Query("What is the PRICE of gold?")
	if len(got) != 2 || got[0].FileName != "pricing.md" || got[1].FileName != "about.md" {
		t.Fatalf("unexpected documents: %+v", got)
	}
}

func TestQueryRespectsMaxResults(t *testing.T) {
	p := NewStaticProvider([]Document{{FileName: "a"}, {FileName: "b"}, {FileName: "c"}}, 2)
	if got := p.Query("anything"); len(got) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(got))
	}
	var nilProvider *StaticProvider
	if got := nilProvider.Query("x"); got != nil {
		t.Fatalf("nil provider should return nil")
	}
}

func TestRender(t *testing.T) {
	if got := Render(nil); got != EmptyText {
		t.Fatalf("unexpected empty render: %q", got)
	}
	got := Render([]Document{{FileName: "a.md", Content: "one"}, {FileName: "b.md", Content: "two"}})
	want := "File: a.md\nContent: one\n---\nFile: b.md\nContent: two"
	if got != want {
		t.Fatalf("unexpected render:\n%s", got)
	}
}

func TestLoadStaticProviderYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "kb.yaml")
	if err := os.WriteFile(yamlPath, []byte("- file_name: faq.md\n  content: Open 9-5\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	p, err := LoadStaticProvider(yamlPath, 3)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if docs := p.Query("hours?"); len(docs) != 1 || docs[0].Content != "Open 9-5" {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	jsonPath := filepath.Join(dir, "kb.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"file_name":"x.md","content":"y"}]`), 0o600); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if _, err := LoadStaticProvider(jsonPath, 3); err != nil {
		t.Fatalf("load json: %v", err)
	}

	if _, err := LoadStaticProvider("", 3); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadStaticProviderDirectory(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"returns.md": "Returns accepted within 30 days",
		"notes.txt":  "Support hours 9-17",
		"image.png":  "binary",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.md"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	p, err := LoadStaticProvider(dir, 0)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	docs := p.Query("anything")
	if len(docs) != 2 || docs[0].FileName != "notes.txt" || docs[1].FileName != "returns.md" {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	if _, err := LoadStaticProvider(filepath.Join(dir, "missing"), 1); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
