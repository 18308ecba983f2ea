// internal/errors/errors_test.go
package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("loading job: %w", Config("sources[0].seeds", New("at least one seed is required")))

	if !Is(err, ErrConfig) {
		t.Fatalf("expected config error to match ErrConfig")
	}
	if Is(err, ErrFetch) {
		t.Fatalf("config error must not match ErrFetch")
	}

	kind, ok := KindOf(err)
	if !ok || kind != KindConfig {
		t.Fatalf("KindOf() = %q, %v; want %q", kind, ok, KindConfig)
	}
}

func TestError_Message(t *testing.T) {
	err := Fetch("https://example.com/a", 503, New("unexpected status"))
	want := "FETCH_ERROR: fetch https://example.com/a (HTTP 503): unexpected status"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", Config("sources", New("empty")), ExitConfig},
		{"fetch", Fetch("https://x", 0, New("timeout")), ExitNetwork},
		{"output", Output("write jsonl", New("disk full")), ExitOutput},
		{"canceled", Pipeline("run", context.Canceled), ExitInterrupted},
		{"plain", New("boom"), ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatForCLI_ConfigShowsDetails(t *testing.T) {
	err := Config("sources[0].export.format", New("unsupported format \"xlsx\""))
	out := FormatForCLI(err, false)

	if !strings.Contains(out, "Invalid Job Configuration") {
		t.Errorf("missing title in %q", out)
	}
	if !strings.Contains(out, "sources[0].export.format") {
		t.Errorf("config errors must show the field path, got %q", out)
	}
}
