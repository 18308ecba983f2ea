package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/extract"
	"github.com/valpere/extractstudio/pkg/types"
)

var enrichedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords() []types.EnrichedRecord {
	return []types.EnrichedRecord{
		{
			ID:          "11111111-aaaa-bbbb-cccc-000000000001",
			SourceURL:   "https://example.com/league",
			SourceName:  "league",
			SourceType:  "sports",
			JobLabel:    "football",
			Title:       "League Table",
			PrimaryText: "Standings after the final round.",
			StructuredElements: []types.StructuredBlock{
				{Type: extract.BlockTable, Content: "| Rank | Name |\n| --- | --- |\n| 1 | Alice |", Caption: "Top"},
				{Type: extract.BlockFormatted, Language: "python", Content: "print('hi')"},
			},
			CustomFields: types.Fields{
				"rows": types.List{types.Record{"rank": types.String("1"), "name": types.String("Alice")}},
			},
			Categories:      []string{"sports", "league"},
			Tags:            []string{"standings", "season"},
			Language:        "en",
			QualityScore:    7.6,
			MetadataSummary: map[string]any{"url": "https://example.com/league"},
			EnrichedAt:      enrichedAt,
		},
		{
			ID:           "11111111-aaaa-bbbb-cccc-000000000002",
			SourceURL:    "https://news.example.org/a",
			SourceName:   "news",
			SourceType:   "news",
			Title:        "Breaking: \"quotes\", commas",
			PrimaryText:  "Line one\nline two",
			CustomFields: types.Fields{},
			Language:     "unknown",
			QualityScore: 2.0,
			Degraded:     true,
			Categories:   []string{"news", "fallback_enrichment"},
			Tags:         []string{"enrichment_failed"},
			EnrichedAt:   enrichedAt,
		},
	}
}

func TestManager_ExportFormats(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil)
	records := sampleRecords()

	t.Run("jsonl", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "out.jsonl")
		result, err := m.Export(records, config.ExportTarget{Format: config.FormatJSONL, OutputPath: path})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 2, result.RecordsCount)
		assert.Positive(t, result.Size)

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		var lines []map[string]any
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			lines = append(lines, line)
		}
		require.Len(t, lines, 2)
		assert.Equal(t, "League Table", lines[0]["title"])
		assert.Equal(t, map[string]any{"rows": []any{map[string]any{"name": "Alice", "rank": "1"}}}, lines[0]["custom_fields"])
		assert.Equal(t, true, lines[1]["degraded"])
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "out.json")
		_, err := m.Export(records, config.ExportTarget{Format: config.FormatJSON, OutputPath: path})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, records[1].Title, decoded[1]["title"])
		assert.Contains(t, string(data), "\n  {")
	})

	t.Run("json empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		_, err := m.Export(nil, config.ExportTarget{Format: config.FormatJSON, OutputPath: path})
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(data))
	})

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(dir, "out.csv")
		_, err := m.Export(records, config.ExportTarget{Format: config.FormatCSV, OutputPath: path})
		require.NoError(t, err)

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, CSVColumns, rows[0])

		row := make(map[string]string)
		for i, col := range CSVColumns {
			row[col] = rows[1][i]
		}
		assert.Equal(t, "7.6", row["quality_score"])
		assert.Equal(t, "sports;league", row["categories"])
		assert.Equal(t, "2", row["structured_elements"])
		assert.Equal(t, `{"rows":[{"name":"Alice","rank":"1"}]}`, row["custom_fields"])
		assert.Equal(t, "2024-05-01T12:00:00Z", row["enriched_at"])
		assert.Equal(t, `Breaking: "quotes", commas`, rows[2][5])
		assert.Equal(t, "Line one\nline two", rows[2][len(CSVColumns)-1])
	})

	t.Run("markdown", func(t *testing.T) {
		path := filepath.Join(dir, "out.md")
		_, err := m.Export(records, config.ExportTarget{Format: config.FormatMarkdown, OutputPath: path})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		text := string(data)
		assert.Contains(t, text, "## League Table\n")
		assert.Contains(t, text, "- Quality score: 7.6\n")
		assert.Contains(t, text, "#### html_table_markdown: Top\n\n| Rank | Name |")
		assert.Contains(t, text, "```python\nprint('hi')\n```")
		assert.Contains(t, text, "- Enrichment: fallback\n")
		assert.Equal(t, 1, strings.Count(text, "\n---\n"))
	})
}

func TestManager_ExportUnsupportedFormat(t *testing.T) {
	result, err := NewManager(nil).Export(sampleRecords(), config.ExportTarget{
		Format:     config.ExportFormat("xlsx"),
		OutputPath: filepath.Join(t.TempDir(), "out.xlsx"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOutput))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestManager_ExportJob(t *testing.T) {
	dir := t.TempDir()
	yaml := fmt.Sprintf(`
sources:
  - name: league
    seeds: ["https://example.com/league"]
    export:
      format: jsonl
      output_path: %[1]s/league.jsonl
  - name: news
    seeds: ["https://news.example.org/"]
    export:
      format: csv
      output_path: %[1]s/news.csv
  - name: idle
    seeds: ["https://idle.example.net/"]
    export:
      format: json
      output_path: %[1]s/idle.json
`, dir)
	job, err := config.LoadFromBytes([]byte(yaml), "export.yaml")
	require.NoError(t, err)

	results, err := NewManager(nil).ExportJob(job, sampleRecords())
	require.NoError(t, err)
	require.Len(t, results, 3)

	counts := map[string]int{}
	for _, r := range results {
		assert.True(t, r.Success)
		counts[filepath.Base(r.FilePath)] = r.RecordsCount
	}
	assert.Equal(t, map[string]int{"league.jsonl": 1, "news.csv": 1, "idle.json": 0}, counts)

	data, err := os.ReadFile(filepath.Join(dir, "idle.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestTreeWriter(t *testing.T) {
	base := t.TempDir()
	w, err := NewTreeWriter(base, "league tables: 2024", nil)
	require.NoError(t, err)
	w.now = func() time.Time { return enrichedAt }

	require.NoError(t, w.Write(sampleRecords()))
	require.NoError(t, w.Close())
	assert.Equal(t, filepath.Join(base, "league_tables_2024"), w.Root())

	item := filepath.Join(w.Root(), "000_League_Table")
	entries, err := os.ReadDir(item)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"metadata.json", "main_content.txt",
		"element_00_html_table_markdown.md", "element_01_formatted_text_block.py",
	}, names)

	var meta map[string]any
	data, err := os.ReadFile(filepath.Join(item, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "2024-05-01T12:00:00Z", meta["processed_timestamp"])
	assert.Equal(t, "en", meta["language"])

	_, err = os.Stat(filepath.Join(w.Root(), "001_Breaking_quotes_,_commas"))
	assert.NoError(t, err)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"", 10, "untitled"},
		{"   ", 10, "untitled"},
		{"a/b\\c", 10, "a_b_c"},
		{"many   spaces __ here", 30, "many_spaces_here"},
		{"abcdefghij", 4, "abcd"},
		{"Café ünïcode", 20, "Café_ünïcode"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in, tt.max), tt.in)
	}
}
