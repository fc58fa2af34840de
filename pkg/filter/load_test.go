package filter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filters.json")

	data := `[
		{
			"id": "bank-do",
			"name": "Banco Popular",
			"subject_patterns": ["Notificación"],
			"extraction_rules": [
				{"name": "monto", "pattern": "DOP\\s+([\\d,.]+)", "content_type": "table", "table_label": "Monto"}
			]
		},
		{
			"name": "Catch nothing",
			"disabled": true,
			"from_patterns": ["noreply@example\\.com"]
		}
	]`

	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	filters, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filters) != 2 {
		t.Fatalf("got %d filters, want 2", len(filters))
	}

	if filters[0].ID != "bank-do" {
		t.Errorf("explicit ID overwritten: %q", filters[0].ID)
	}
	if filters[1].ID == "" {
		t.Error("second filter should get a generated ID")
	}
	if !filters[1].Disabled {
		t.Error("disabled flag not honored")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for empty filter set")
	}
}

func TestParse_NullEntry(t *testing.T) {
	var verr *ValidationError
	_, err := Parse([]byte(`[null]`))
	if err == nil {
		t.Fatal("expected error for null filter entry")
	}
	if !errors.As(err, &verr) {
		t.Errorf("error type = %T, want *ValidationError", err)
	}

	_, err = Parse([]byte(`[{"name": "ok"}, null]`))
	if err == nil {
		t.Fatal("expected error for null entry after valid filter")
	}
}
