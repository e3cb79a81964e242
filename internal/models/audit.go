package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the verb recorded on an audit entry.
type AuditAction string

// Audit actions accepted by the audit_logs check constraint.
const (
	ActionCreate AuditAction = "CREATE"
	ActionRead   AuditAction = "READ"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
	ActionLogin  AuditAction = "LOGIN"
	ActionLogout AuditAction = "LOGOUT"
	ActionExport AuditAction = "EXPORT"
)

// Valid reports whether a is a known action.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionExport:
		return true
	}

	return false
}

// ParseAuditDate parses an audit filter bound given as RFC3339 or YYYY-MM-DD.
// A date-only upper bound covers the whole day.
func ParseAuditDate(s string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}

	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}

	return t, nil
}

// ParseAuditAction normalises s to an AuditAction. An empty string yields "".
func ParseAuditAction(s string) (AuditAction, error) {
	if s == "" {
		return "", nil
	}

	a := AuditAction(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", ErrInvalidAction
	}

	return a, nil
}

// AuditEntry is one immutable row of the audit log.
type AuditEntry struct {
	ID          uuid.UUID      `json:"id"`
	UserID      *int64         `json:"user_id"`
	Action      AuditAction    `json:"action"`
	TableName   string         `json:"table_name"`
	RecordID    *string        `json:"record_id"`
	OldValues   map[string]any `json:"old_values,omitempty"`
	NewValues   map[string]any `json:"new_values,omitempty"`
	IPAddress   *string        `json:"ip_address,omitempty"`
	UserAgent   *string        `json:"user_agent,omitempty"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Actor identifies who performed an operation and from where.
// A zero Actor denotes a system action.
type Actor struct {
	UserID    *int64
	IPAddress *string
	UserAgent *string
}

// AuditInput carries the fields of a new audit entry.
type AuditInput struct {
	Actor
	Action      AuditAction
	TableName   string
	RecordID    *string
	OldValues   map[string]any
	NewValues   map[string]any
	Description string
}

// Validate checks the action and target table.
func (in *AuditInput) Validate() error {
	if !in.Action.Valid() {
		return ErrInvalidAction
	}

	if strings.TrimSpace(in.TableName) == "" {
		return ErrMissingTable
	}

	if len(in.TableName) > 100 {
		return ErrFieldTooLong("table_name", 100)
	}

	return nil
}

// AuditFilters narrows audit log queries. Zero values mean "no filter".
type AuditFilters struct {
	UserID    *int64
	Action    AuditAction
	TableName string
	IPAddress string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries    []AuditEntry `json:"data"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
}

// AuditStats summarises the audit log.
type AuditStats struct {
	Total    int64            `json:"total"`
	ByAction map[string]int64 `json:"by_action"`
	ByTable  map[string]int64 `json:"by_table"`
	Recent   []AuditEntry     `json:"recent"`
}

// Snapshot converts v to the generic map stored in old_values/new_values.
// It returns nil for nil input or values that do not encode to a JSON object.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}

	return out
}

// RecordID formats an integer primary key for AuditEntry.RecordID.
func RecordID(id int64) *string {
	s := strconv.FormatInt(id, 10)

	return &s
}
