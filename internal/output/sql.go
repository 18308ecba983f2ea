// internal/output/sql.go
package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// DefaultTable receives records when the storage block names no table.
const DefaultTable = config.DefaultStorageTable

// recordColumns are stored for every record; source_url is the key.
var recordColumns = []string{
	"source_url", "id", "source_name", "source_type", "job_label", "title", "language",
	"quality_score", "categories", "tags", "custom_fields", "structured_elements",
	"metadata_summary", "primary_text", "degraded", "enriched_at",
}

// dialect holds what differs between the supported SQL databases.
type dialect struct {
	name        string
	driver      string
	quote       func(string) string
	placeholder func(n int) string
	columnType  func(column string) string
	upsert      func(table string, columns []string) string
}

func doubleQuote(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func backtick(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		driver:      "sqlite3",
		quote:       doubleQuote,
		placeholder: func(int) string { return "?" },
		columnType: func(column string) string {
			switch column {
			case "source_url":
				return "TEXT PRIMARY KEY"
			case "quality_score":
				return "REAL"
			case "degraded":
				return "BOOLEAN"
			case "enriched_at":
				return "DATETIME"
			default:
				return "TEXT"
			}
		},
		upsert: onConflictUpsert(doubleQuote, func(int) string { return "?" }),
	}

	postgresDialect = dialect{
		name:        "postgresql",
		driver:      "postgres",
		quote:       doubleQuote,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		columnType: func(column string) string {
			switch column {
			case "source_url":
				return "TEXT PRIMARY KEY"
			case "quality_score":
				return "DOUBLE PRECISION"
			case "degraded":
				return "BOOLEAN"
			case "enriched_at":
				return "TIMESTAMPTZ"
			case "categories", "tags", "custom_fields", "structured_elements", "metadata_summary":
				return "JSONB"
			default:
				return "TEXT"
			}
		},
		upsert: onConflictUpsert(doubleQuote, func(n int) string { return fmt.Sprintf("$%d", n) }),
	}

	mysqlDialect = dialect{
		name:        "mysql",
		driver:      "mysql",
		quote:       backtick,
		placeholder: func(int) string { return "?" },
		columnType: func(column string) string {
			switch column {
			case "source_url":
				return "VARCHAR(768) PRIMARY KEY"
			case "id", "source_name", "source_type", "language":
				return "VARCHAR(255)"
			case "quality_score":
				return "DOUBLE"
			case "degraded":
				return "BOOLEAN"
			case "enriched_at":
				return "DATETIME(6)"
			default:
				return "LONGTEXT"
			}
		},
		upsert: func(table string, columns []string) string {
			quoted, values := columnLists(columns, backtick, func(int) string { return "?" })
			updates := make([]string, 0, len(columns)-1)
			for _, c := range columns[1:] {
				updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", backtick(c), backtick(c)))
			}
			return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
				backtick(table), strings.Join(quoted, ", "), strings.Join(values, ", "), strings.Join(updates, ", "))
		},
	}
)

// onConflictUpsert builds the INSERT ... ON CONFLICT form shared by SQLite
// and PostgreSQL. The first column is the conflict key.
func onConflictUpsert(quote func(string) string, placeholder func(int) string) func(string, []string) string {
	return func(table string, columns []string) string {
		quoted, values := columnLists(columns, quote, placeholder)
		updates := make([]string, 0, len(columns)-1)
		for _, c := range columns[1:] {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			quote(table), strings.Join(quoted, ", "), strings.Join(values, ", "), quote(columns[0]), strings.Join(updates, ", "))
	}
}

func columnLists(columns []string, quote func(string) string, placeholder func(int) string) ([]string, []string) {
	quoted := make([]string, len(columns))
	values := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
		values[i] = placeholder(i + 1)
	}
	return quoted, values
}

func dialectFor(driver string) (dialect, bool) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return sqliteDialect, true
	case "postgres", "postgresql":
		return postgresDialect, true
	case "mysql":
		return mysqlDialect, true
	default:
		return dialect{}, false
	}
}

// SQLSink upserts records into a table keyed by source URL, so re-running
// a job refreshes rows instead of duplicating them.
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	table   string
	logger  utils.Logger
}

// NewSQLSink opens the database, checks the connection and creates the
// table when missing.
func NewSQLSink(ctx context.Context, cfg config.StorageConfig, logger utils.Logger) (*SQLSink, error) {
	d, ok := dialectFor(cfg.Driver)
	if !ok {
		return nil, errors.Output("open storage", fmt.Errorf("unsupported SQL driver: %s", cfg.Driver))
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateSQLIdentifier(table); err != nil {
		return nil, errors.Output("open storage", err)
	}

	dsn := cfg.DSN
	if d.driver == "sqlite3" {
		if dir := filepath.Dir(strings.SplitN(dsn, "?", 2)[0]); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Output("open storage", fmt.Errorf("failed to create database directory: %w", err))
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000&_journal_mode=WAL"
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Output("open storage", fmt.Errorf("failed to connect to %s: %w", d.name, err))
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Output("open storage", fmt.Errorf("failed to ping %s database: %w", d.name, err))
	}
	if d.driver == "sqlite3" {
		// SQLite works best with a single writer.
		db.SetMaxOpenConns(1)
	}

	s := &SQLSink{db: db, dialect: d, table: table, logger: utils.OrNop(logger)}
	if _, err := db.ExecContext(ctx, s.createTableSQL()); err != nil {
		db.Close()
		return nil, errors.Output("create table", fmt.Errorf("failed to create table %s: %w", table, err))
	}
	return s, nil
}

func (s *SQLSink) createTableSQL() string {
	defs := make([]string, len(recordColumns))
	for i, c := range recordColumns {
		defs[i] = fmt.Sprintf("%s %s", s.dialect.quote(c), s.dialect.columnType(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.dialect.quote(s.table), strings.Join(defs, ", "))
}

// Store upserts records in one transaction and returns how many were
// written.
func (s *SQLSink) Store(ctx context.Context, records []types.EnrichedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Output("store", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsert(s.table, recordColumns))
	if err != nil {
		return 0, errors.Output("store", fmt.Errorf("failed to prepare upsert: %w", err))
	}
	defer stmt.Close()

	for i := range records {
		args, err := recordArgs(&records[i])
		if err != nil {
			return 0, errors.Output("store", err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errors.Output("store", fmt.Errorf("failed to upsert %s: %w", records[i].SourceURL, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Output("store", fmt.Errorf("failed to commit: %w", err))
	}
	s.logger.Infof("stored %d records in %s table %s", len(records), s.dialect.name, s.table)
	return len(records), nil
}

// Close closes the database.
func (s *SQLSink) Close() error { return s.db.Close() }

func recordArgs(rec *types.EnrichedRecord) ([]any, error) {
	encoded := make(map[string]string, 5)
	for name, v := range map[string]any{
		"categories":          nonNil(rec.Categories),
		"tags":                nonNil(rec.Tags),
		"custom_fields":       rec.CustomFields,
		"structured_elements": rec.StructuredElements,
		"metadata_summary":    rec.MetadataSummary,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s for %s: %w", name, rec.SourceURL, err)
		}
		encoded[name] = string(data)
	}

	return []any{
		rec.SourceURL,
		rec.ID,
		rec.SourceName,
		rec.SourceType,
		rec.JobLabel,
		rec.Title,
		rec.Language,
		rec.QualityScore,
		encoded["categories"],
		encoded["tags"],
		encoded["custom_fields"],
		encoded["structured_elements"],
		encoded["metadata_summary"],
		rec.PrimaryText,
		rec.Degraded,
		rec.EnrichedAt.UTC(),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// OpenSink opens the sink for a job's storage block.
func OpenSink(ctx context.Context, cfg config.StorageConfig, logger utils.Logger) (Sink, error) {
	switch strings.ToLower(cfg.Driver) {
	case "mongodb", "mongo":
		return NewMongoSink(ctx, cfg, logger)
	default:
		return NewSQLSink(ctx, cfg, logger)
	}
}
