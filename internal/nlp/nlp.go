// internal/nlp/nlp.go

// Package nlp provides the optional language and tagging capability used
// by enrichment. Backends are constructed once and injected; Noop stands
// in when no backend is available.
package nlp

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Backend detects languages and derives topical tags from text.
type Backend interface {
	// DetectLanguage returns an ISO 639-1 code.
	DetectLanguage(text string) (string, error)
	// Tags returns candidate tags, most relevant first.
	Tags(text string) ([]string, error)
	// Available reports whether the backend does any work.
	Available() bool
}

// ErrUnavailable is returned by Noop.
var ErrUnavailable = fmt.Errorf("nlp backend unavailable")

// Noop is the backend used when no NLP support is configured.
type Noop struct{}

func (Noop) DetectLanguage(string) (string, error) { return "", ErrUnavailable }
func (Noop) Tags(string) ([]string, error)          { return nil, nil }
func (Noop) Available() bool                        { return false }

// Lexical detects language with whatlanggo and tags text by term frequency
// after dropping stop words, short tokens and numbers.
type Lexical struct {
	// MaxTags caps Tags output; zero means 15.
	MaxTags int
	// MinTokenLength is the shortest token kept; zero means 3.
	MinTokenLength int
}

// NewLexical creates a Lexical backend with default limits.
func NewLexical() *Lexical {
	return &Lexical{MaxTags: 15, MinTokenLength: 3}
}

func (l *Lexical) Available() bool { return true }

// DetectLanguage fails when whatlanggo cannot name a language.
func (l *Lexical) DetectLanguage(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text to detect language from")
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", fmt.Errorf("language not detected (confidence %.2f)", info.Confidence)
	}
	return code, nil
}

// Tags ranks distinct terms by frequency, breaking ties alphabetically.
func (l *Lexical) Tags(text string) ([]string, error) {
	maxTags := l.MaxTags
	if maxTags <= 0 {
		maxTags = 15
	}
	minLen := l.MinTokenLength
	if minLen <= 0 {
		minLen = 3
	}

	counts := make(map[string]int)
	for _, token := range tokenize(text) {
		if len([]rune(token)) < minLen || isStopWord(token) || isNumeric(token) {
			continue
		}
		counts[token]++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxTags {
		terms = terms[:maxTags]
	}
	return terms, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}
