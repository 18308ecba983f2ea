// internal/pipeline/quality.go
package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

var (
	authoritySuffixes = []string{".gov", ".edu", ".org"}
	authorityTokens   = []string{"wikipedia", "official"}

	penaltyPhrases = []string{
		"error 404", "page not found", "access denied", "cookies required", "javascript required",
		"please enable", "subscribe to continue", "login required", "paywall",
	}
)

// QualityFilter scores normalized records and drops those below a minimum.
type QualityFilter struct {
	enabled       bool
	minScore      int
	minLength     int
	substantial   int
	comprehensive int
	logger        utils.Logger
}

// NewQualityFilter creates a filter from job settings. Zero lengths take
// the defaults.
func NewQualityFilter(settings config.QualitySettings, logger utils.Logger) *QualityFilter {
	q := &QualityFilter{
		enabled:       settings.IsEnabled(),
		minScore:      settings.Threshold(),
		minLength:     settings.MinLength,
		substantial:   settings.SubstantialLength,
		comprehensive: settings.ComprehensiveLength,
		logger:        utils.OrNop(logger),
	}
	if q.minLength <= 0 {
		q.minLength = config.DefaultMinLength
	}
	if q.substantial <= 0 {
		q.substantial = config.DefaultSubstantialLength
	}
	if q.comprehensive <= 0 {
		q.comprehensive = config.DefaultComprehensiveLength
	}
	return q
}

// Score rates rec and explains the contributing signals.
func (q *QualityFilter) Score(rec *types.NormalizedRecord) (int, []string) {
	var reasons []string
	score := 0

	content := rec.CleanedText + " " + rec.Title
	length := utf8.RuneCountInString(content)
	switch {
	case length >= q.comprehensive:
		score += 4
	case length >= q.substantial:
		score += 3
	case length >= q.minLength:
		score += 2
	default:
		reasons = append(reasons, fmt.Sprintf("content too short (%d chars)", length))
	}

	if n := len(rec.CleanedBlocks); n > 0 {
		score += n
		reasons = append(reasons, fmt.Sprintf("has %d structured elements", n))
	}

	if n := rec.CustomFields.PopulatedCount(); n > 0 {
		score += 2 * n
		reasons = append(reasons, fmt.Sprintf("rich data: %d custom fields", n))
	}

	if isAuthoritative(rec.SourceURL) {
		score += 2
		reasons = append(reasons, "authoritative domain")
	}

	lower := strings.ToLower(content)
	penalties := 0
	for _, phrase := range penaltyPhrases {
		if strings.Contains(lower, phrase) {
			penalties++
		}
	}
	if penalties > 0 {
		score -= 2 * penalties
		reasons = append(reasons, fmt.Sprintf("quality penalties: %d", penalties))
	}

	return score, reasons
}

// Filter partitions records, keeping those scoring at least the minimum.
// It returns the kept records in input order and the number dropped.
func (q *QualityFilter) Filter(records []types.NormalizedRecord) ([]types.NormalizedRecord, int) {
	if !q.enabled {
		q.logger.Info("quality filter is disabled; passing all items")
		return records, 0
	}

	kept := make([]types.NormalizedRecord, 0, len(records))
	filtered := 0
	for i := range records {
		score, reasons := q.Score(&records[i])
		if score >= q.minScore {
			kept = append(kept, records[i])
			q.logger.Debugf("quality pass: %s (score %d)", records[i].SourceURL, score)
			continue
		}
		filtered++
		if len(reasons) > 3 {
			reasons = reasons[:3]
		}
		q.logger.Debugf("quality filter: %s (score %d, reasons: %s)", records[i].SourceURL, score, strings.Join(reasons, "; "))
	}

	q.logger.Infof("quality filter: %d/%d items passed (filtered: %d)", len(kept), len(records), filtered)
	return kept, filtered
}

func isAuthoritative(rawURL string) bool {
	host := utils.Hostname(rawURL)
	if host == "" {
		return false
	}
	for _, suffix := range authoritySuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	for _, token := range authorityTokens {
		if strings.Contains(host, token) {
			return true
		}
	}
	return false
}
