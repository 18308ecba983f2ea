// internal/extract/fields.go
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// FieldExtractor applies selector rules to a DOM subtree.
type FieldExtractor struct {
	Logger utils.Logger
	// URL is only used to annotate errors and logs.
	URL string
	// OnFieldError receives every per-field failure. The failing field has
	// already been defaulted when it is called.
	OnFieldError func(err error)
}

// Extract runs rules against root in declaration order. Every rule yields a
// key: a value, Null, or an empty List. Nested structured_list rules are
// applied to each matched container, to any depth.
func (fe *FieldExtractor) Extract(root *goquery.Selection, rules []config.SelectorRule) types.Fields {
	fields := make(types.Fields, len(rules))
	for _, rule := range rules {
		fields[rule.Name] = fe.extractField(root, rule)
	}
	return fields
}

func (fe *FieldExtractor) extractField(root *goquery.Selection, rule config.SelectorRule) (value types.FieldValue) {
	defer func() {
		if r := recover(); r != nil {
			fe.fail(rule, fmt.Errorf("panic: %v", r))
			value = emptyValue(rule)
		}
	}()

	matcher, err := rule.Matcher()
	if err != nil {
		fe.fail(rule, err)
		return emptyValue(rule)
	}

	matches := root.FindMatcher(matcher)
	if matches.Length() == 0 {
		fe.logger().Debugf("field %q: selector %q matched nothing", rule.Name, rule.Selector)
		return emptyValue(rule)
	}

	if nested, ok := rule.Extract.(config.StructuredListExtraction); ok {
		records := make(types.List, 0, matches.Length())
		matches.Each(func(_ int, container *goquery.Selection) {
			records = append(records, types.Record(fe.Extract(container, nested.Rules)))
		})
		fe.logger().Debugf("field %q: %d records", rule.Name, len(records))
		return records
	}

	values := make(types.List, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		v, err := extractOne(s, rule.Extract)
		if err != nil {
			fe.fail(rule, err)
			return
		}
		if _, isNull := v.(types.Null); !isNull {
			values = append(values, v)
		}
	})

	switch {
	case rule.IsList:
		return values
	case len(values) > 0:
		return values[0]
	default:
		return types.Null{}
	}
}

// extractOne turns a single matched element into a value. A missing
// attribute yields Null.
func extractOne(s *goquery.Selection, extraction config.Extraction) (types.FieldValue, error) {
	switch e := extraction.(type) {
	case config.AttributeExtraction:
		raw, ok := s.Attr(e.Name)
		if !ok {
			return types.Null{}, nil
		}
		if multiValuedAttribute(e.Name) {
			raw = strings.Join(strings.Fields(raw), " ")
		}
		return types.String(raw), nil
	case config.HTMLExtraction:
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			return types.Null{}, fmt.Errorf("failed to serialize element: %w", err)
		}
		return types.String(markup), nil
	default:
		return types.String(spacedText(s)), nil
	}
}

func multiValuedAttribute(name string) bool {
	switch strings.ToLower(name) {
	case "class", "rel", "rev", "headers", "accept-charset", "accesskey", "dropzone":
		return true
	}
	return false
}

func emptyValue(rule config.SelectorRule) types.FieldValue {
	if rule.YieldsList() {
		return types.List{}
	}
	return types.Null{}
}

func (fe *FieldExtractor) fail(rule config.SelectorRule, err error) {
	wrapped := errors.FieldExtraction(rule.Name, fe.URL, fmt.Errorf("selector %q: %w", rule.Selector, err))
	fe.logger().Warnf("%v", wrapped)
	if fe.OnFieldError != nil {
		fe.OnFieldError(wrapped)
	}
}

func (fe *FieldExtractor) logger() utils.Logger {
	return utils.OrNop(fe.Logger)
}
