package sqlite

import (
	"strings"

	"github.com/ainautilus/trademem-go/pkg/storage"
)

// defaultListLimit caps unbounded queries.
const defaultListLimit = 100

// buildEntryWhere builds a WHERE clause for entry queries.
//
// Returns the clause string (starting with "WHERE") and the corresponding
// arguments in placeholder order.
func buildEntryWhere(category string, opts *storage.ListOptions) (string, []interface{}) {
	conditions := []string{"category = ?"}
	args := []interface{}{category}

	if opts.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, opts.Source)
	}
	if opts.KeyPrefix != "" {
		conditions = append(conditions, `entry_key LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(opts.KeyPrefix)+"%")
	}
	if !opts.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.Since)
	}
	if opts.MinConfidence > 0 {
		conditions = append(conditions, "confidence >= ?")
		args = append(args, opts.MinConfidence)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// buildEventWhere builds a WHERE clause for event queries.
//
// A target filter also matches broadcast events, which carry an empty target.
func buildEventWhere(opts *storage.EventOptions) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if opts.Target != "" {
		conditions = append(conditions, "(target = ? OR target = '')")
		args = append(args, opts.Target)
	}
	if opts.UnprocessedOnly {
		conditions = append(conditions, "processed = 0")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix)
}

// normalizeLimit applies the default limit when none is given.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// normalizeOffset clamps negative offsets to zero.
func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// placeholders returns n comma-separated "?" placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
