package postgres

import (
	"fmt"
	"strings"

	"github.com/ainautilus/trademem-go/pkg/storage"
)

// defaultListLimit caps unbounded queries.
const defaultListLimit = 100

// buildEntryWhere builds a WHERE clause for entry queries using numbered
// placeholders starting at $1.
//
// Returns the clause, the arguments in placeholder order, and the next free
// placeholder index.
func buildEntryWhere(category string, opts *storage.ListOptions) (string, []interface{}, int) {
	conditions := []string{"category = $1"}
	args := []interface{}{category}
	idx := 2

	if opts.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", idx))
		args = append(args, opts.Source)
		idx++
	}
	if opts.KeyPrefix != "" {
		conditions = append(conditions, fmt.Sprintf("entry_key LIKE $%d", idx))
		args = append(args, escapeLike(opts.KeyPrefix)+"%")
		idx++
	}
	if !opts.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, opts.Since)
		idx++
	}
	if opts.MinConfidence > 0 {
		conditions = append(conditions, fmt.Sprintf("confidence >= $%d", idx))
		args = append(args, opts.MinConfidence)
		idx++
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, idx
}

// buildEventWhere builds a WHERE clause for event queries using numbered
// placeholders starting at $1.
func buildEventWhere(opts *storage.EventOptions) (string, []interface{}, int) {
	var conditions []string
	var args []interface{}
	idx := 1

	if opts.Target != "" {
		conditions = append(conditions, fmt.Sprintf("(target = $%d OR target = '')", idx))
		args = append(args, opts.Target)
		idx++
	}
	if opts.UnprocessedOnly {
		conditions = append(conditions, "processed = FALSE")
	}

	if len(conditions) == 0 {
		return "", args, idx
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, idx
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

// numberedPlaceholders returns n comma-separated placeholders beginning at
// $start.
func numberedPlaceholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
