package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bookvault/bookvault/internal/api"
	"github.com/bookvault/bookvault/internal/models"
)

func TestAuditList_ParsesFilters(t *testing.T) {
	t.Parallel()

	var got models.AuditFilters
	svc := &mockAuditService{
		findAllFn: func(_ context.Context, f models.AuditFilters) (*models.AuditPage, error) {
			got = f
			return &models.AuditPage{Entries: []models.AuditEntry{}, Page: f.Page, Limit: f.Limit}, nil
		},
	}

	r := newTestRouter()
	h := api.NewAuditHandler(svc, nil, testLogger())
	r.GET("/audit", h.List)

	w := doRequest(r, http.MethodGet, "/audit?user_id=3&action=update&table_name=books&start_date=2024-01-01&end_date=2024-01-31&page=2&limit=10", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got.UserID == nil || *got.UserID != 3 {
		t.Errorf("unexpected user filter %v", got.UserID)
	}
	if got.Action != models.ActionUpdate || got.TableName != "books" {
		t.Errorf("unexpected action/table %q %q", got.Action, got.TableName)
	}
	if got.Page != 2 || got.Limit != 10 {
		t.Errorf("unexpected paging %d/%d", got.Page, got.Limit)
	}

	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got.StartDate == nil || !got.StartDate.Equal(wantStart) {
		t.Errorf("unexpected start %v", got.StartDate)
	}

	wantEnd := time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC)
	if got.EndDate == nil || !got.EndDate.Equal(wantEnd) {
		t.Errorf("end date should cover the whole day, got %v", got.EndDate)
	}
}

func TestAuditList_InvalidFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
	}{
		{"unknown action", "?action=purge"},
		{"bad start", "?start_date=yesterday"},
		{"bad end", "?end_date=31-01-2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter()
			h := api.NewAuditHandler(&mockAuditService{}, nil, testLogger())
			r.GET("/audit", h.List)

			w := doRequest(r, http.MethodGet, "/audit"+tt.query, "")

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestAuditExport_Attachment(t *testing.T) {
	t.Parallel()

	svc := &mockAuditService{
		exportFn: func(_ context.Context, f models.AuditFilters) ([]byte, int, error) {
			if f.TableName != "books" {
				t.Errorf("filters not forwarded: %+v", f)
			}
			return []byte("\ufeff\"ID\"\r\n"), 0, nil
		},
	}

	r := newTestRouter()
	h := api.NewAuditHandler(svc, nil, testLogger())
	r.GET("/audit/export", h.Export)

	w := doRequest(r, http.MethodGet, "/audit/export?table_name=books", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "audit_logs.csv") {
		t.Errorf("unexpected content disposition %q", cd)
	}
}

func TestAuditByTable(t *testing.T) {
	t.Parallel()

	svc := &mockAuditService{
		byTableFn: func(_ context.Context, table string) ([]models.AuditEntry, error) {
			return []models.AuditEntry{{TableName: table, Action: models.ActionCreate}}, nil
		},
	}

	r := newTestRouter()
	h := api.NewAuditHandler(svc, nil, testLogger())
	r.GET("/audit/tables/:table", h.ByTable)

	w := doRequest(r, http.MethodGet, "/audit/tables/genres", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Data []models.AuditEntry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].TableName != "genres" {
		t.Errorf("unexpected entries %+v", body.Data)
	}
}
