// internal/errors/messages.go - CLI presentation of pipeline errors
package errors

import (
	"context"
	"fmt"
	"strings"
)

// Exit codes returned by the CLI.
const (
	ExitOK          = 0
	ExitGeneral     = 1
	ExitConfig      = 2
	ExitNetwork     = 3
	ExitParse       = 4
	ExitOutput      = 5
	ExitInterrupted = 130
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if Is(err, context.Canceled) {
		return ExitInterrupted
	}

	kind, ok := KindOf(err)
	if !ok {
		return ExitGeneral
	}
	switch kind {
	case KindConfig:
		return ExitConfig
	case KindFetch:
		return ExitNetwork
	case KindParse, KindFieldExtraction:
		return ExitParse
	case KindOutput:
		return ExitOutput
	default:
		return ExitGeneral
	}
}

// UserFriendly converts an error into a title, message and suggestions.
func UserFriendly(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	kind, _ := KindOf(err)
	errStr := strings.ToLower(err.Error())

	switch {
	case kind == KindConfig && strings.Contains(errStr, "yaml"):
		return "Configuration Syntax Error",
			"The job file could not be parsed.",
			[]string{
				"Check YAML indentation (use spaces, not tabs)",
				"Ensure proper quoting of selector strings",
			}
	case kind == KindConfig:
		return "Invalid Job Configuration",
			"The job was rejected before any page was fetched.",
			[]string{
				"Fix the fields listed in the technical details",
				"Run 'extractstudio template' for a valid starting point",
			}
	case strings.Contains(errStr, "timeout"):
		return "Connection Timeout",
			"The request timed out while trying to reach the website.",
			[]string{
				"Increase settings.request_timeout",
				"The website might be slow or experiencing issues",
			}
	case strings.Contains(errStr, "no such host"):
		return "Domain Not Found",
			"Could not resolve the website domain.",
			[]string{"Check that the seed URL is spelled correctly"}
	case kind == KindOutput:
		return "Export Failed",
			"Records were extracted but could not be written.",
			[]string{"Check that the export output_path is writable"}
	case kind == KindPipeline && Is(err, context.Canceled):
		return "Interrupted",
			"The run was stopped before it finished.",
			nil
	default:
		return "Unexpected Error",
			"An unexpected error occurred during the run.",
			[]string{"Re-run with --verbose for details"}
	}
}

// FormatForCLI renders err for terminal output.
func FormatForCLI(err error, verbose bool) string {
	title, message, suggestions := UserFriendly(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n%s\n", title, message)

	// Validation problems are only useful with their field paths.
	kind, _ := KindOf(err)
	if verbose || kind == KindConfig {
		fmt.Fprintf(&b, "\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}
	return b.String()
}
