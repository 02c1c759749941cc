package migrations

import (
	"strings"
	"testing"
)

func TestStatements(t *testing.T) {
	script := `
-- header comment
CREATE TABLE a (id INT);

  -- indented comment
CREATE INDEX a_idx ON a (id);
`
	got := Statements(script)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (id INT)" {
		t.Fatalf("unexpected first statement %q", got[0])
	}
	for _, s := range got {
		if strings.Contains(s, "--") {
			t.Fatalf("comment leaked into %q", s)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) == 0 || names[0] != "0001_init.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}
	content, err := files.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	stmts := Statements(string(content))
	want := []string{"orders", "vendors", "menu_items", "delivery_partners", "vendor_stats", "partner_stats"}
	for _, table := range want {
		found := false
		for _, s := range stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("table %s not created", table)
		}
	}
}
