package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/models"
)

// Page size bounds for audit queries.
const (
	defaultAuditLimit = 20
	maxAuditLimit     = 100
)

// maxChangesLen caps the Changes column of the audit CSV export, in characters.
const maxChangesLen = 200

var auditCSVHeader = []string{
	"ID", "Timestamp", "Action", "Table", "Record ID", "User ID", "IP Address", "User Agent", "Changes",
}

// AuditService records audit entries and answers audit log queries.
//
// Entries written with CreateAuditLogTx (and the *Tx wrappers) share the
// caller's transaction: they become visible on commit and vanish on rollback.
// Entries written without a transaction are committed immediately and survive
// whatever happens to the surrounding business operation.
type AuditService struct {
	store AuditStore
	log   *logrus.Logger
}

// NewAuditService creates an AuditService.
func NewAuditService(store AuditStore, log *logrus.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

// CreateAuditLog writes a standalone entry committed independently of any
// transaction the caller may hold.
func (s *AuditService) CreateAuditLog(ctx context.Context, in models.AuditInput) (*models.AuditEntry, error) {
	return s.create(ctx, nil, in)
}

// CreateAuditLogTx writes an entry on tx so that it commits or rolls back with it.
func (s *AuditService) CreateAuditLogTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) (*models.AuditEntry, error) {
	return s.create(ctx, tx, in)
}

func (s *AuditService) create(ctx context.Context, tx pgx.Tx, in models.AuditInput) (*models.AuditEntry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	e := &models.AuditEntry{
		UserID:      in.UserID,
		Action:      in.Action,
		TableName:   in.TableName,
		RecordID:    in.RecordID,
		OldValues:   in.OldValues,
		NewValues:   in.NewValues,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Description: in.Description,
	}

	if err := s.store.Insert(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("creating audit log: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"audit_id":  e.ID.String(),
		"action":    e.Action,
		"table":     e.TableName,
		"in_tx":     tx != nil,
		"record_id": deref(e.RecordID),
	}).Debug("audit.record")

	return e, nil
}

func (s *AuditService) logAs(ctx context.Context, tx pgx.Tx, action models.AuditAction, in models.AuditInput) error {
	in.Action = action
	_, err := s.create(ctx, tx, in)

	return err
}

// LogCreate records a CREATE entry.
func (s *AuditService) LogCreate(ctx context.Context, in models.AuditInput) error {
	return s.logAs(ctx, nil, models.ActionCreate, in)
}

// LogUpdate records an UPDATE entry.
func (s *AuditService) LogUpdate(ctx context.Context, in models.AuditInput) error {
	return s.logAs(ctx, nil, models.ActionUpdate, in)
}

// LogDelete records a DELETE entry.
func (s *AuditService) LogDelete(ctx context.Context, in models.AuditInput) error {
	return s.logAs(ctx, nil, models.ActionDelete, in)
}

// LogRead records a READ entry.
func (s *AuditService) LogRead(ctx context.Context, in models.AuditInput) error {
	return s.logAs(ctx, nil, models.ActionRead, in)
}

// LogExport records an EXPORT entry.
func (s *AuditService) LogExport(ctx context.Context, in models.AuditInput) error {
	return s.logAs(ctx, nil, models.ActionExport, in)
}

// LogAuth records a LOGIN or LOGOUT entry. Any other action is recorded as LOGIN.
func (s *AuditService) LogAuth(ctx context.Context, in models.AuditInput) error {
	return s.logAs(ctx, nil, authAction(in.Action), in)
}

// LogCreateTx records a CREATE entry on tx.
func (s *AuditService) LogCreateTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error {
	return s.logAs(ctx, tx, models.ActionCreate, in)
}

// LogUpdateTx records an UPDATE entry on tx.
func (s *AuditService) LogUpdateTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error {
	return s.logAs(ctx, tx, models.ActionUpdate, in)
}

// LogDeleteTx records a DELETE entry on tx.
func (s *AuditService) LogDeleteTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error {
	return s.logAs(ctx, tx, models.ActionDelete, in)
}

// LogReadTx records a READ entry on tx.
func (s *AuditService) LogReadTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error {
	return s.logAs(ctx, tx, models.ActionRead, in)
}

// LogExportTx records an EXPORT entry on tx.
func (s *AuditService) LogExportTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error {
	return s.logAs(ctx, tx, models.ActionExport, in)
}

// LogAuthTx records a LOGIN or LOGOUT entry on tx.
func (s *AuditService) LogAuthTx(ctx context.Context, tx pgx.Tx, in models.AuditInput) error {
	return s.logAs(ctx, tx, authAction(in.Action), in)
}

func authAction(a models.AuditAction) models.AuditAction {
	if a == models.ActionLogout {
		return a
	}

	return models.ActionLogin
}

// FindAll returns one page of entries matching f, newest first.
func (s *AuditService) FindAll(ctx context.Context, f models.AuditFilters) (*models.AuditPage, error) {
	f.Page = max(f.Page, 1)
	if f.Limit <= 0 {
		f.Limit = defaultAuditLimit
	}
	f.Limit = min(f.Limit, maxAuditLimit)

	entries, total, err := s.store.Find(ctx, nil, f)
	if err != nil {
		return nil, err
	}

	return &models.AuditPage{
		Entries:    entries,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: int((total + int64(f.Limit) - 1) / int64(f.Limit)),
	}, nil
}

// FindByUserID returns every entry attributed to userID, newest first.
func (s *AuditService) FindByUserID(ctx context.Context, userID int64) ([]models.AuditEntry, error) {
	return s.store.FindByUser(ctx, nil, userID)
}

// FindByTableName returns every entry for table, newest first.
func (s *AuditService) FindByTableName(ctx context.Context, table string) ([]models.AuditEntry, error) {
	return s.store.FindByTable(ctx, nil, table)
}

// Stats returns totals by action and by table plus the ten most recent entries.
func (s *AuditService) Stats(ctx context.Context) (*models.AuditStats, error) {
	return s.store.Stats(ctx, nil)
}

// ExportCSV renders up to 10,000 entries matching f as UTF-8 CSV with a BOM.
// It returns the document and the number of entries it contains.
func (s *AuditService) ExportCSV(ctx context.Context, f models.AuditFilters) ([]byte, int, error) {
	entries, err := s.store.ListForExport(ctx, nil, f)
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	writeQuotedRow(&buf, auditCSVHeader...)

	for i := range entries {
		writeQuotedRow(&buf, auditRecord(&entries[i])...)
	}

	return buf.Bytes(), len(entries), nil
}

func auditRecord(e *models.AuditEntry) []string {
	userID := ""
	if e.UserID != nil {
		userID = strconv.FormatInt(*e.UserID, 10)
	}

	return []string{
		e.ID.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
		string(e.Action),
		e.TableName,
		deref(e.RecordID),
		userID,
		deref(e.IPAddress),
		deref(e.UserAgent),
		changesSummary(e),
	}
}

var whitespaceCollapser = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\t", " ")

// changesSummary serialises the new values, falling back to the old values,
// as single-line JSON truncated to maxChangesLen characters.
func changesSummary(e *models.AuditEntry) string {
	values := e.NewValues
	if values == nil {
		values = e.OldValues
	}

	if values == nil {
		return ""
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return ""
	}

	s := whitespaceCollapser.Replace(string(raw))
	if utf8.RuneCountInString(s) <= maxChangesLen {
		return s
	}

	return string([]rune(s)[:maxChangesLen])
}
