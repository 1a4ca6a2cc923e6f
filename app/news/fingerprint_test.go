package news

import (
	"testing"
)

func TestFingerprint_IgnoresCosmeticDifferences(t *testing.T) {
	a := Fingerprint("New Model Released", "https://www.example.com/posts/1/?utm_source=rss#comments", "")
	b := Fingerprint("  new   MODEL released ", "http://example.com/posts/1", "different body")

	if a != b {
		t.Errorf("Expected equal fingerprints, got %s and %s", a, b)
	}
}

func TestFingerprint_DifferentURLs(t *testing.T) {
	a := Fingerprint("Same title", "https://example.com/a", "")
	b := Fingerprint("Same title", "https://example.com/b", "")

	if a == b {
		t.Error("Expected different fingerprints for different URLs")
	}
}

func TestFingerprint_FallsBackToBodyWithoutURL(t *testing.T) {
	a := Fingerprint("Title", "", "First body")
	b := Fingerprint("Title", "", "Second body")
	c := Fingerprint("title", "", "first  body")

	if a == b {
		t.Error("Expected different fingerprints for different bodies")
	}
	if a != c {
		t.Error("Expected body comparison to be normalized")
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	first := Fingerprint("Title", "https://example.com/x", "body")
	for i := 0; i < 10; i++ {
		if got := Fingerprint("Title", "https://example.com/x", "body"); got != first {
			t.Fatalf("Expected stable fingerprint, got %s then %s", first, got)
		}
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(first))
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.Example.com/path/", "example.com/path"},
		{"http://example.com:80/path", "example.com/path"},
		{"https://example.com:8443/path", "example.com:8443/path"},
		{"https://example.com/path?b=2&a=1&utm_medium=feed", "example.com/path?a=1&b=2"},
		{"https://example.com/#top", "example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalURL(tt.input); got != tt.expected {
			t.Errorf("CanonicalURL(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle("  Ｆｕｌｌ\tWidth  TITLE "); got != "full width title" {
		t.Errorf("Expected 'full width title', got %q", got)
	}
}

func TestContentHash_ChangesWithBody(t *testing.T) {
	a := Article{Title: "T", URL: "https://example.com", Body: "one"}
	b := a
	b.Body = "two"

	if ContentHash(a) == ContentHash(b) {
		t.Error("Expected content hash to change with body")
	}
	if ContentHash(a) != ContentHash(a) {
		t.Error("Expected content hash to be stable")
	}
}
