package txn

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ParseIsolation maps a configuration value such as "serializable" or
// "read committed" to a pgx isolation level. Empty input keeps the default.
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	norm := strings.ToLower(strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), " "))

	switch norm {
	case "", "default":
		return "", nil
	case "serializable":
		return pgx.Serializable, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "read committed":
		return pgx.ReadCommitted, nil
	case "read uncommitted":
		return pgx.ReadUncommitted, nil
	default:
		return "", fmt.Errorf("unknown isolation level %q", s)
	}
}
