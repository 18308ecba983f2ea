// internal/pipeline/dedup.go
package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// Deduplicator is an exact-match filter over content signatures. It is not
// safe for concurrent use; dedup runs after the fetch pool has drained.
type Deduplicator struct {
	seen       map[string]struct{}
	checked    int
	duplicates int
}

// DedupStats counts deduplicator activity.
type DedupStats struct {
	Checked    int
	Duplicates int
	Unique     int
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Signature is the lower-cased, whitespace-normalised main text followed by
// the custom fields serialised with sorted keys.
func Signature(rec *types.ParsedRecord) string {
	fields, err := json.Marshal(rec.CustomFields)
	if err != nil {
		fields = []byte(strings.Join(rec.CustomFields.Names(), ","))
	}
	return cleanForDedup(rec.MainText) + cleanForDedup(string(fields))
}

func cleanForDedup(s string) string {
	return utils.NormalizeWhitespace(strings.ToLower(s))
}

// IsDuplicate reports whether signature was added before.
func (d *Deduplicator) IsDuplicate(signature string) bool {
	d.checked++
	_, ok := d.seen[utils.HashString(signature)]
	if ok {
		d.duplicates++
	}
	return ok
}

// Add remembers signature.
func (d *Deduplicator) Add(signature string) {
	d.seen[utils.HashString(signature)] = struct{}{}
}

// Stats returns counters since creation.
func (d *Deduplicator) Stats() DedupStats {
	return DedupStats{Checked: d.checked, Duplicates: d.duplicates, Unique: len(d.seen)}
}
