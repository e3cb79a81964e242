package store

import (
	"strings"
	"time"
)

// maxListLimit is a defense-in-depth cap on limit values for list queries.
const maxListLimit = 1000

const defaultListLimit = 50

// clampLimit applies the default and the cap to a requested page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}

	return min(limit, maxListLimit)
}

// dateArg converts a YYYY-MM-DD string into a DATE parameter.
// Blank or unparsable values become NULL; callers validate beforehand.
func dateArg(s *string) any {
	if s == nil {
		return nil
	}

	t, err := time.Parse("2006-01-02", strings.TrimSpace(*s))
	if err != nil {
		return nil
	}

	return t
}

// likePattern escapes LIKE wildcards in s and wraps it for substring matching.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return "%" + r.Replace(s) + "%"
}
