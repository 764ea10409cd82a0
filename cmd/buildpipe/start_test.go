// start_test.go covers manifest loading for the start command.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifestConvertsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := "metadata:\n  name: demo\nspec:\n  pipelineRef:\n    name: build\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	data, err := loadManifest(path)
	if err != nil {
		t.Fatalf("loadManifest returned error: %v", err)
	}
	var doc struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("manifest was not converted to JSON: %v", err)
	}
	if doc.Metadata.Name != "demo" {
		t.Fatalf("unexpected manifest name %q", doc.Metadata.Name)
	}
}

func TestLoadManifestPassesJSONThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{"metadata":{"name":"demo"}}`), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	data, err := loadManifest(path)
	if err != nil {
		t.Fatalf("loadManifest returned error: %v", err)
	}
	if !json.Valid(data) {
		t.Fatalf("expected valid JSON, got %s", data)
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	if _, err := loadManifest(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing manifest file")
	}
}
