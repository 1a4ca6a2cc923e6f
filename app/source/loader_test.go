package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderLoadValidSource(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "qbitai.yml", `
url: "https://www.qbitai.com/feed"
format: rss
category: AI
weight: 1.2

settings:
  cadence: 300
  timeout: 15

filters:
  - field: "title"
    excludes:
      - "sponsored"
`)

	descriptors, err := NewLoader(tempDir).Run()
	if err != nil {
		t.Fatal(err)
	}

	if len(descriptors) != 1 {
		t.Fatalf("Expected 1 source, got %d", len(descriptors))
	}

	desc := descriptors[0]
	if desc.ID != "qbitai" {
		t.Errorf("Expected ID 'qbitai', got '%s'", desc.ID)
	}
	if desc.Format != FormatRSS {
		t.Errorf("Expected format rss, got %s", desc.Format)
	}
	if desc.Category != "ai" {
		t.Errorf("Expected category to be lower-cased to 'ai', got '%s'", desc.Category)
	}
	if desc.Cadence() != 300*time.Second {
		t.Errorf("Expected cadence 300s, got %v", desc.Cadence())
	}
	if desc.Timeout() != 15*time.Second {
		t.Errorf("Expected timeout 15s, got %v", desc.Timeout())
	}
	if !desc.Enabled() {
		t.Error("Expected source to be enabled by default")
	}
	if len(desc.Filters) != 1 {
		t.Errorf("Expected 1 filter, got %d", len(desc.Filters))
	}
}

func TestLoaderAppliesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	writeSource(t, tempDir, "minimal.yaml", `url: "https://example.com/feed.xml"`)

	descriptors, err := NewLoader(tempDir).Run()
	if err != nil {
		t.Fatal(err)
	}

	desc := descriptors[0]
	if desc.Format != FormatRSS {
		t.Errorf("Expected default format rss, got %s", desc.Format)
	}
	if desc.Settings.Cadence != DefaultCadence {
		t.Errorf("Expected default cadence %d, got %d", DefaultCadence, desc.Settings.Cadence)
	}
	if desc.Settings.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %d, got %d", DefaultTimeout, desc.Settings.Timeout)
	}
	if desc.Weight != DefaultWeight {
		t.Errorf("Expected default weight %v, got %v", DefaultWeight, desc.Weight)
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	descriptors, err := NewLoader(filepath.Join(t.TempDir(), "nope")).Run()
	if err != nil {
		t.Fatalf("Expected no error for missing directory, got %v", err)
	}
	if len(descriptors) != 0 {
		t.Errorf("Expected no sources, got %d", len(descriptors))
	}
}

func TestLoaderConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    ConfigErrorKind
	}{
		{
			name:    "unknown format",
			content: "url: https://example.com\nformat: gopher\n",
			kind:    ErrUnknownSourceFormat,
		},
		{
			name:    "negative cadence",
			content: "url: https://example.com\nsettings:\n  cadence: -10\n",
			kind:    ErrInvalidCadence,
		},
		{
			name:    "relative url",
			content: "url: /feed.xml\n",
			kind:    ErrInvalidURL,
		},
		{
			name:    "html without selectors",
			content: "url: https://example.com\nformat: html\n",
			kind:    ErrMissingSelectors,
		},
		{
			name:    "bad filter field",
			content: "url: https://example.com\nfilters:\n  - field: color\n    includes: [red]\n",
			kind:    ErrInvalidFilter,
		},
		{
			name:    "empty filter",
			content: "url: https://example.com\nfilters:\n  - field: title\n",
			kind:    ErrInvalidFilter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("broken", []byte(tt.content))
			if err == nil {
				t.Fatal("Expected config error, got nil")
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected *ConfigError, got %T", err)
			}
			if cfgErr.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, cfgErr.Kind)
			}
			if cfgErr.Source != "broken" {
				t.Errorf("Expected source 'broken', got '%s'", cfgErr.Source)
			}
		})
	}
}

func TestLoaderDuplicateID(t *testing.T) {
	tempDir := t.TempDir()
	writeSource(t, tempDir, "dup.yml", `url: "https://example.com/a.xml"`)
	writeSource(t, tempDir, "dup.yaml", `url: "https://example.com/b.xml"`)

	_, err := NewLoader(tempDir).Run()

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Kind != ErrDuplicateSource {
		t.Fatalf("Expected duplicate source error, got %v", err)
	}
}

func TestLoaderDisabledSource(t *testing.T) {
	desc, err := Parse("off", []byte("url: https://example.com\nsettings:\n  enabled: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.Enabled() {
		t.Error("Expected source to be disabled")
	}
}
