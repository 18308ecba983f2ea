// internal/errors/errors.go - Error taxonomy shared by all pipeline stages
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies an error by the scope it is recovered at.
type Kind string

const (
	// KindConfig is a schema or validation failure. Fatal before any fetch.
	KindConfig Kind = "CONFIG_ERROR"
	// KindFetch is a per-URL network, timeout or HTTP status failure.
	KindFetch Kind = "FETCH_ERROR"
	// KindParse is a per-document parsing failure.
	KindParse Kind = "PARSE_ERROR"
	// KindFieldExtraction is a per-rule failure; the field gets its default.
	KindFieldExtraction Kind = "FIELD_EXTRACTION_ERROR"
	// KindEnrichment is a per-record failure that yields a fallback record.
	KindEnrichment Kind = "ENRICHMENT_ERROR"
	// KindPipeline is an unexpected failure or an interrupt that stops the run.
	KindPipeline Kind = "PIPELINE_FAILURE"
	// KindOutput is a failure while exporting or persisting records.
	KindOutput Kind = "OUTPUT_ERROR"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrConfig          = &Error{Kind: KindConfig}
	ErrFetch           = &Error{Kind: KindFetch}
	ErrParse           = &Error{Kind: KindParse}
	ErrFieldExtraction = &Error{Kind: KindFieldExtraction}
	ErrEnrichment      = &Error{Kind: KindEnrichment}
	ErrPipeline        = &Error{Kind: KindPipeline}
	ErrOutput          = &Error{Kind: KindOutput}
)

// Error is the structured error carried through the pipeline.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "fetch" or "extract field".
	Op string
	// Path is a config field path or a custom field name.
	Path string
	// URL is the document the error belongs to, if any.
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " [%s]", e.Path)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " %s", e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Config wraps err as a configuration error at the given field path.
func Config(path string, err error) error {
	return &Error{Kind: KindConfig, Op: "load config", Path: path, Err: err}
}

// Fetch wraps a per-URL retrieval failure.
func Fetch(url string, status int, err error) error {
	return &Error{Kind: KindFetch, Op: "fetch", URL: url, StatusCode: status, Err: err}
}

// Parse wraps a per-document parsing failure.
func Parse(url string, err error) error {
	return &Error{Kind: KindParse, Op: "parse", URL: url, Err: err}
}

// FieldExtraction wraps a per-rule extraction failure.
func FieldExtraction(field, url string, err error) error {
	return &Error{Kind: KindFieldExtraction, Op: "extract field", Path: field, URL: url, Err: err}
}

// Enrichment wraps a per-record enrichment failure.
func Enrichment(url string, err error) error {
	return &Error{Kind: KindEnrichment, Op: "enrich", URL: url, Err: err}
}

// Pipeline wraps a failure that stops the run.
func Pipeline(op string, err error) error {
	return &Error{Kind: KindPipeline, Op: op, Err: err}
}

// Output wraps an export or storage failure.
func Output(op string, err error) error {
	return &Error{Kind: KindOutput, Op: op, Err: err}
}

// Is, As, New and Join re-export the standard helpers so callers need one import.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	New  = stderrors.New
	Join = stderrors.Join
)
