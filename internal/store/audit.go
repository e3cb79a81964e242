package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
)

// maxExportRows caps the number of audit entries rendered by one export.
const maxExportRows = 10000

// recentEntries is the number of entries included in audit statistics.
const recentEntries = 10

// AuditStore provides data access for the append-only audit_logs table.
type AuditStore struct {
	Base
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(base Base) *AuditStore {
	return &AuditStore{Base: base}
}

// Insert appends one entry. On a transaction the row becomes visible on
// commit and disappears on rollback; on the pool it is committed at once.
// ID and CreatedAt are filled in on e.
func (s *AuditStore) Insert(ctx context.Context, q dbpool.Querier, e *models.AuditEntry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	oldJSON, err := encodeSnapshot(e.OldValues)
	if err != nil {
		return fmt.Errorf("marshaling audit old values: %w", err)
	}

	newJSON, err := encodeSnapshot(e.NewValues)
	if err != nil {
		return fmt.Errorf("marshaling audit new values: %w", err)
	}

	err = s.querier(q).QueryRow(ctx, `
		INSERT INTO audit_logs
			(id, user_id, action, table_name, record_id, old_values, new_values, ip_address, user_agent, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		e.ID, e.UserID, string(e.Action), e.TableName, e.RecordID,
		oldJSON, newJSON, e.IPAddress, e.UserAgent, e.Description,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// buildAuditFilter builds WHERE clause and args from AuditFilters.
func buildAuditFilter(f models.AuditFilters) (where string, args []any, nextArg int) {
	var conditions []string
	argIdx := 1

	if f.UserID != nil {
		conditions = append(conditions, "user_id = $"+strconv.Itoa(argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.Action != "" {
		conditions = append(conditions, "action = $"+strconv.Itoa(argIdx))
		args = append(args, string(f.Action))
		argIdx++
	}
	if f.TableName != "" {
		conditions = append(conditions, "table_name = $"+strconv.Itoa(argIdx))
		args = append(args, f.TableName)
		argIdx++
	}
	if f.IPAddress != "" {
		conditions = append(conditions, "ip_address ILIKE $"+strconv.Itoa(argIdx))
		args = append(args, likePattern(f.IPAddress))
		argIdx++
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= $"+strconv.Itoa(argIdx))
		args = append(args, *f.StartDate)
		argIdx++
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= $"+strconv.Itoa(argIdx))
		args = append(args, *f.EndDate)
		argIdx++
	}

	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	return where, args, argIdx
}

// Find returns one page of entries matching f, newest first, and the total
// number of matches. f.Page is 1-based.
func (s *AuditStore) Find(ctx context.Context, q dbpool.Querier, f models.AuditFilters) ([]models.AuditEntry, int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	qr := s.querier(q)
	where, args, argIdx := buildAuditFilter(f)

	var total int64
	if err := qr.QueryRow(ctx, "SELECT count(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	limit := clampLimit(f.Limit)
	offset := (max(f.Page, 1) - 1) * limit

	query := fmt.Sprintf(
		"SELECT %s FROM audit_logs %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		auditColumns, where, argIdx, argIdx+1,
	)
	args = append(args, limit, offset)

	entries, err := s.query(ctx, qr, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// FindByUser returns every entry attributed to userID, newest first.
func (s *AuditStore) FindByUser(ctx context.Context, q dbpool.Querier, userID int64) ([]models.AuditEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.query(ctx, s.querier(q),
		"SELECT "+auditColumns+" FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC, id", userID)
}

// FindByTable returns every entry for table, newest first.
func (s *AuditStore) FindByTable(ctx context.Context, q dbpool.Querier, table string) ([]models.AuditEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.query(ctx, s.querier(q),
		"SELECT "+auditColumns+" FROM audit_logs WHERE table_name = $1 ORDER BY created_at DESC, id", table)
}

// ListForExport returns up to 10,000 entries matching f, newest first.
// Paging fields of f are ignored.
func (s *AuditStore) ListForExport(ctx context.Context, q dbpool.Querier, f models.AuditFilters) ([]models.AuditEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where, args, argIdx := buildAuditFilter(f)
	query := fmt.Sprintf("SELECT %s FROM audit_logs %s ORDER BY created_at DESC, id LIMIT $%d", auditColumns, where, argIdx)
	args = append(args, maxExportRows)

	return s.query(ctx, s.querier(q), query, args...)
}

// Stats returns the total count, counts by action and by table, and the most
// recent entries.
func (s *AuditStore) Stats(ctx context.Context, q dbpool.Querier) (*models.AuditStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	qr := s.querier(q)
	stats := &models.AuditStats{}

	if err := qr.QueryRow(ctx, "SELECT count(*) FROM audit_logs").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	var err error

	stats.ByAction, err = s.countBy(ctx, qr, "action")
	if err != nil {
		return nil, err
	}

	stats.ByTable, err = s.countBy(ctx, qr, "table_name")
	if err != nil {
		return nil, err
	}

	stats.Recent, err = s.query(ctx, qr,
		"SELECT "+auditColumns+" FROM audit_logs ORDER BY created_at DESC, id LIMIT $1", recentEntries)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// countBy groups audit entries by column. column is a fixed identifier, never user input.
func (s *AuditStore) countBy(ctx context.Context, q dbpool.Querier, column string) (map[string]int64, error) {
	rows, err := q.Query(ctx, "SELECT "+column+", count(*) FROM audit_logs GROUP BY "+column)
	if err != nil {
		return nil, fmt.Errorf("grouping audit entries by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)

	for rows.Next() {
		var key string
		var n int64

		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scanning audit %s count: %w", column, err)
		}

		counts[key] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit %s counts: %w", column, err)
	}

	return counts, nil
}

func (s *AuditStore) query(ctx context.Context, q dbpool.Querier, query string, args ...any) ([]models.AuditEntry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	return collectAuditEntries(rows, s.Log)
}
