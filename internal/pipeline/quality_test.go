// internal/pipeline/quality_test.go
package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/pkg/types"
)

func defaultQualityFilter() *QualityFilter {
	return NewQualityFilter(config.QualitySettings{}, nil)
}

func TestQualityFilter_LengthBuckets(t *testing.T) {
	q := defaultQualityFilter()

	// Combined length is text + " " + title.
	tests := []struct {
		name    string
		textLen int
		want    int
	}{
		{"too short", 50, 0},
		{"just below minimum", 98, 0},
		{"minimum", 99, 2},
		{"substantial", 499, 3},
		{"comprehensive", 1999, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &types.NormalizedRecord{SourceURL: "https://example.com/x", CleanedText: strings.Repeat("a", tt.textLen)}
			score, _ := q.Score(rec)
			assert.Equal(t, tt.want, score)
		})
	}
}

func TestQualityFilter_Monotonicity(t *testing.T) {
	q := defaultQualityFilter()
	text := strings.Repeat("word ", 40)

	base := &types.NormalizedRecord{
		SourceURL:    "https://example.com/page",
		CleanedText:  text,
		CustomFields: types.Fields{"a": types.String("x")},
	}
	baseScore, _ := q.Score(base)

	withField := *base
	withField.CustomFields = types.Fields{"a": types.String("x"), "b": types.List{types.String("y")}}
	fieldScore, _ := q.Score(&withField)
	assert.Equal(t, baseScore+2, fieldScore)

	withEmptyField := *base
	withEmptyField.CustomFields = types.Fields{"a": types.String("x"), "b": types.Null{}}
	emptyScore, _ := q.Score(&withEmptyField)
	assert.Equal(t, baseScore, emptyScore)

	withPenalty := *base
	withPenalty.CleanedText = text + " Please log in. Login required to continue."
	penaltyScore, reasons := q.Score(&withPenalty)
	assert.LessOrEqual(t, penaltyScore, baseScore-2)
	assert.Contains(t, reasons, "quality penalties: 1")
}

func TestQualityFilter_StructureAndAuthority(t *testing.T) {
	q := defaultQualityFilter()

	rec := &types.NormalizedRecord{
		SourceURL:     "https://en.wikipedia.org/wiki/Go",
		CleanedBlocks: []types.StructuredBlock{{Type: "a"}, {Type: "b"}, {Type: "c"}},
	}
	score, reasons := q.Score(rec)
	assert.Equal(t, 3+2, score)
	assert.Contains(t, reasons, "authoritative domain")

	for _, host := range []string{"https://data.gov/x", "https://mit.edu/", "https://official-site.example.com/"} {
		assert.True(t, isAuthoritative(host), host)
	}
	for _, host := range []string{"https://example.com/gov/edu", "https://organic.example.com/", "not a url"} {
		assert.False(t, isAuthoritative(host), host)
	}
}

func TestQualityFilter_Filter(t *testing.T) {
	records := []types.NormalizedRecord{
		{SourceURL: "https://example.com/1", CleanedText: strings.Repeat("x", 600)},
		{SourceURL: "https://example.com/2", CleanedText: "tiny"},
		{SourceURL: "https://example.com/3", CustomFields: types.Fields{"a": types.String("v"), "b": types.String("w")}},
		{SourceURL: "https://example.com/4", CleanedText: strings.Repeat("x", 150) + " page not found"},
	}

	kept, filtered := defaultQualityFilter().Filter(records)
	assert.Equal(t, 2, filtered)
	if assert.Len(t, kept, 2) {
		assert.Equal(t, "https://example.com/1", kept[0].SourceURL)
		assert.Equal(t, "https://example.com/3", kept[1].SourceURL)
	}

	disabled := false
	kept, filtered = NewQualityFilter(config.QualitySettings{Enabled: &disabled}, nil).Filter(records)
	assert.Equal(t, 0, filtered)
	assert.Len(t, kept, 4)

	strict := 5
	kept, filtered = NewQualityFilter(config.QualitySettings{MinScore: &strict}, nil).Filter(records)
	assert.Equal(t, 4, filtered)
	assert.Empty(t, kept)
}
