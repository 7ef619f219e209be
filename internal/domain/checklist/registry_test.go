package checklist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checklists.yaml")
	content := `templates:
  pacemaker:
    - day_offset: 7
      text: Device check
    - day_offset: 1
      text: Check wound site
  chest-drain:
    - day_offset: 1
      text: Review drain output
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	keys := reg.Keys()
	if len(keys) != 2 || keys[0] != "chest-drain" || keys[1] != "pacemaker" {
		t.Errorf("unexpected keys: %v", keys)
	}

	entries := reg.Template("pacemaker")
	if len(entries) != 2 || entries[0].DayOffset != 1 || entries[1].Text != "Device check" {
		t.Errorf("entries not loaded in offset order: %+v", entries)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("templates: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); err == nil {
		t.Error("expected error for file with no templates")
	}
}
