package rsyncdconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromFileParsesListenersAndModules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gorsyncd.toml")
	const doc = `
[[listener]]
rsyncd = "0.0.0.0:8730"

[[module]]
name = "data"
path = "/srv/data"
writable = true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Rsyncd != "0.0.0.0:8730" {
		t.Errorf("Listeners = %+v, want one listener on 0.0.0.0:8730", cfg.Listeners)
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].Name != "data" || cfg.Modules[0].Path != "/srv/data" {
		t.Errorf("Modules = %+v, want one module named data at /srv/data", cfg.Modules)
	}
	if !cfg.Modules[0].Writable {
		t.Error("expected the data module to be writable")
	}
}

func TestFromFileRejectsModuleWithoutPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gorsyncd.toml")
	const doc = `
[[module]]
name = "broken"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); err == nil {
		t.Error("expected an error for a module with no path")
	}
}

func TestFromFileMissingFile(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error for a nonexistent config file")
	}
}
