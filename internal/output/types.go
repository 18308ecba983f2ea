// internal/output/types.go
package output

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/valpere/extractstudio/pkg/types"
)

// Writer writes enriched records to one destination.
type Writer interface {
	Write(records []types.EnrichedRecord) error
	Close() error
}

// Sink persists enriched records in a database.
type Sink interface {
	Store(ctx context.Context, records []types.EnrichedRecord) (int, error)
	Close() error
}

// Result represents the output operation result
type Result struct {
	Success      bool          `json:"success"`
	RecordsCount int           `json:"records_count"`
	FilePath     string        `json:"file_path,omitempty"`
	Format       string        `json:"format"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
	Size         int64         `json:"size,omitempty"`
}

// SQL identifier validation
var sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Reserved words shared by the supported dialects. The table name is the
// only identifier taken from configuration.
var reservedWords = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "BY": true, "CASE": true, "CHECK": true, "COLUMN": true,
	"CONSTRAINT": true, "CREATE": true, "DEFAULT": true, "DELETE": true, "DISTINCT": true, "DROP": true,
	"ELSE": true, "FROM": true, "GROUP": true, "HAVING": true, "IN": true, "INDEX": true, "INSERT": true,
	"INTO": true, "IS": true, "JOIN": true, "KEY": true, "LIMIT": true, "NOT": true, "NULL": true,
	"ON": true, "OR": true, "ORDER": true, "PRIMARY": true, "REFERENCES": true, "SELECT": true,
	"SET": true, "TABLE": true, "THEN": true, "TO": true, "UNION": true, "UNIQUE": true, "UPDATE": true,
	"USER": true, "VALUES": true, "WHEN": true, "WHERE": true, "WITH": true,
}

// MaxIdentifierLength is the lowest identifier limit of the supported
// databases (MySQL).
const MaxIdentifierLength = 64

// ValidateSQLIdentifier validates that a string is a safe SQL identifier.
func ValidateSQLIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(identifier) > MaxIdentifierLength {
		return fmt.Errorf("identifier too long (max %d characters): %s", MaxIdentifierLength, identifier)
	}
	if !sqlIdentifierRegex.MatchString(identifier) {
		return fmt.Errorf("invalid identifier format: %s", identifier)
	}
	if reservedWords[strings.ToUpper(identifier)] {
		return fmt.Errorf("identifier is a reserved SQL keyword: %s", identifier)
	}
	return nil
}
