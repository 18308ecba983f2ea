// pkg/types/types.go
package types

import (
	"time"
)

// StructuredBlock is one generic content block found in a document.
type StructuredBlock struct {
	Type         string     `json:"type"`
	Content      string     `json:"content"`
	Language     string     `json:"language,omitempty"`
	Caption      string     `json:"caption,omitempty"`
	Heading      string     `json:"heading,omitempty"`
	TagName      string     `json:"tag_name,omitempty"`
	ElementIndex int        `json:"element_index"`
	SourceURL    string     `json:"source_url,omitempty"`
	EnrichedAt   *time.Time `json:"enriched_at,omitempty"`
}

// Link is a same-domain hyperlink found in a document.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
	Rel  string `json:"rel,omitempty"`
}

// FetchedDocument is the raw result of retrieving one URL.
type FetchedDocument struct {
	ID           string    `json:"id"`
	SourceURL    string    `json:"source_url"`
	Content      string    `json:"content,omitempty"`
	ContentBytes []byte    `json:"-"`
	ContentType  string    `json:"content_type"`
	SourceType   string    `json:"source_type"`
	SourceName   string    `json:"source_name,omitempty"`
	JobLabel     string    `json:"job_label,omitempty"`
	Title        string    `json:"title,omitempty"`
	Encoding     string    `json:"encoding,omitempty"`
	StatusCode   int       `json:"status_code"`
	Depth        int       `json:"depth"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// HasContent reports whether the document carries decoded text or raw bytes.
func (d *FetchedDocument) HasContent() bool {
	return d.Content != "" || len(d.ContentBytes) > 0
}

// ParsedRecord is what the router extracted from one document.
type ParsedRecord struct {
	ID                 string            `json:"id"`
	OriginalDocumentID string            `json:"original_document_id"`
	SourceURL          string            `json:"source_url"`
	SourceType         string            `json:"source_type"`
	SourceName         string            `json:"source_name,omitempty"`
	JobLabel           string            `json:"job_label,omitempty"`
	Title              string            `json:"title"`
	MainText           string            `json:"main_text,omitempty"`
	Blocks             []StructuredBlock `json:"structured_blocks"`
	Links              []Link            `json:"links,omitempty"`
	CustomFields       Fields            `json:"custom_fields"`
	ParserMetadata     map[string]string `json:"parser_metadata,omitempty"`
	Depth              int               `json:"depth"`
	// FollowURLs holds links_to_follow matches; nil when the source does
	// not configure that selector.
	FollowURLs []string `json:"-"`
}

// IsEmpty reports whether nothing useful was extracted.
func (r *ParsedRecord) IsEmpty() bool {
	return r.MainText == "" && len(r.Blocks) == 0 && len(r.CustomFields) == 0
}

// NormalizedRecord is a parsed record that survived duplicate suppression.
type NormalizedRecord struct {
	ID             string            `json:"id"`
	ParsedRecordID string            `json:"parsed_record_id"`
	SourceURL      string            `json:"source_url"`
	SourceType     string            `json:"source_type"`
	SourceName     string            `json:"source_name,omitempty"`
	JobLabel       string            `json:"job_label,omitempty"`
	Title          string            `json:"title"`
	CleanedText    string            `json:"cleaned_text"`
	CleanedBlocks  []StructuredBlock `json:"cleaned_structured_blocks"`
	Links          []Link            `json:"links,omitempty"`
	CustomFields   Fields            `json:"custom_fields"`
	IsDuplicate    bool              `json:"is_duplicate"`
	LanguageHint   string            `json:"language_hint,omitempty"`
}

// EnrichedRecord is the final output of the pipeline.
type EnrichedRecord struct {
	ID                 string            `json:"id"`
	NormalizedRecordID string            `json:"normalized_record_id"`
	SourceURL          string            `json:"source_url"`
	SourceType         string            `json:"source_type"`
	SourceName         string            `json:"source_name,omitempty"`
	JobLabel           string            `json:"job_label,omitempty"`
	Title              string            `json:"title"`
	PrimaryText        string            `json:"primary_text"`
	StructuredElements []StructuredBlock `json:"structured_elements"`
	Links              []Link            `json:"links,omitempty"`
	CustomFields       Fields            `json:"custom_fields"`
	Categories         []string          `json:"categories"`
	Tags               []string          `json:"tags"`
	Language           string            `json:"language"`
	QualityScore       float64           `json:"quality_score"`
	MetadataSummary    map[string]any    `json:"metadata_summary"`
	Degraded           bool              `json:"degraded,omitempty"`
	EnrichedAt         time.Time         `json:"enriched_at"`
}
