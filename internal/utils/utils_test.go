package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  hello   world  ", "hello world"},
		{"line\n\tbreak", "line break"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeWhitespace(tt.input); got != tt.expected {
			t.Errorf("NormalizeWhitespace(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestIsHTTPURL(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"https://example.com/page", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"/relative/path", false},
		{"not a url", false},
		{"https://", false},
	}
	for _, tt := range tests {
		if got := IsHTTPURL(tt.input); got != tt.valid {
			t.Errorf("IsHTTPURL(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestHostHelpers(t *testing.T) {
	if h := Hostname("https://Example.COM:8443/x"); h != "example.com" {
		t.Errorf("Hostname() = %q", h)
	}
	if !SameHost("https://example.com/a", "http://example.com/b") {
		t.Error("expected same host")
	}
	if SameHost("https://example.com", "https://other.com") {
		t.Error("expected different hosts")
	}
	if name := FileNameFromURL("https://example.com/docs/annual%20report.pdf"); name != "annual report.pdf" {
		t.Errorf("FileNameFromURL() = %q", name)
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("Go Concurrency: Patterns!", 0); got != "go_concurrency_patterns" {
		t.Errorf("Slugify() = %q", got)
	}
	if got := Slugify("!!!", 0); got != "query" {
		t.Errorf("Slugify() = %q", got)
	}
	if got := Slugify("abcdefghij", 4); got != "abcd" {
		t.Errorf("Slugify() = %q", got)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("héllo wörld", 5); got != "héllo..." {
		t.Errorf("Preview() = %q", got)
	}
	if got := Preview("short", 10); got != "short" {
		t.Errorf("Preview() = %q", got)
	}
}

func TestZapLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLogger(LoggerOptions{Level: WarnLevel, JSON: true, Output: &buf})

	logger.Infof("hidden %d", 1)
	logger.WithField("url", "https://example.com").Warnf("fetch failed: %s", "timeout")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered, got %q", out)
	}
	if !strings.Contains(out, "fetch failed: timeout") || !strings.Contains(out, `"url":"https://example.com"`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	if ParseLogLevel("DEBUG") != DebugLevel || ParseLogLevel("warning") != WarnLevel || ParseLogLevel("bogus") != InfoLevel {
		t.Error("ParseLogLevel mapping mismatch")
	}
}
