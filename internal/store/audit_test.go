package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/store"
	"github.com/bookvault/bookvault/internal/txn"
)

func TestAuditStore_InsertAndFind(t *testing.T) {
	base := setupTestBase(t)
	as := store.NewAuditStore(base)
	ctx := context.Background()

	userID := int64(7)
	ip := "10.0.0.15"

	entries := []*models.AuditEntry{
		{UserID: &userID, Action: models.ActionCreate, TableName: "books", RecordID: models.RecordID(1),
			NewValues: map[string]any{"title": "Dune"}, IPAddress: &ip, Description: "created"},
		{UserID: &userID, Action: models.ActionUpdate, TableName: "books", RecordID: models.RecordID(1),
			OldValues: map[string]any{"stock": 1.0}, NewValues: map[string]any{"stock": 2.0}},
		{Action: models.ActionRead, TableName: "authors"},
	}
	for _, e := range entries {
		require.NoError(t, as.Insert(ctx, nil, e))
		assert.NotZero(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	page, total, err := as.Find(ctx, nil, models.AuditFilters{TableName: "books", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, models.ActionUpdate, page[0].Action, "newest first")
	assert.Equal(t, map[string]any{"stock": 2.0}, page[0].NewValues)

	_, total, err = as.Find(ctx, nil, models.AuditFilters{IPAddress: "0.0.15"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = as.Find(ctx, nil, models.AuditFilters{UserID: &userID, Action: models.ActionCreate})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	paged, total, err := as.Find(ctx, nil, models.AuditFilters{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, paged, 1)

	byUser, err := as.FindByUser(ctx, nil, userID)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byTable, err := as.FindByTable(ctx, nil, "authors")
	require.NoError(t, err)
	assert.Len(t, byTable, 1)
}

func TestAuditStore_DateRange(t *testing.T) {
	base := setupTestBase(t)
	as := store.NewAuditStore(base)
	ctx := context.Background()

	require.NoError(t, as.Insert(ctx, nil, &models.AuditEntry{Action: models.ActionRead, TableName: "books"}))

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	_, total, err := as.Find(ctx, nil, models.AuditFilters{StartDate: &past, EndDate: &future})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = as.Find(ctx, nil, models.AuditFilters{StartDate: &future})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	_, total, err = as.Find(ctx, nil, models.AuditFilters{EndDate: &past})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestAuditStore_Stats(t *testing.T) {
	base := setupTestBase(t)
	as := store.NewAuditStore(base)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		action := models.ActionRead
		if i%3 == 0 {
			action = models.ActionExport
		}

		require.NoError(t, as.Insert(ctx, nil, &models.AuditEntry{Action: action, TableName: "books"}))
	}

	stats, err := as.Stats(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 12, stats.Total)
	assert.EqualValues(t, 4, stats.ByAction["EXPORT"])
	assert.EqualValues(t, 8, stats.ByAction["READ"])
	assert.EqualValues(t, 12, stats.ByTable["books"])
	assert.Len(t, stats.Recent, 10)
}

func TestAuditStore_TransactionVisibility(t *testing.T) {
	base := setupTestBase(t)
	as := store.NewAuditStore(base)
	runner := txn.NewRunner(base.Pool, base.Log, 0)
	ctx := context.Background()

	errBoom := errors.New("boom")

	err := runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, as.Insert(ctx, tx, &models.AuditEntry{Action: models.ActionCreate, TableName: "books"}))

		// Not visible to other connections before commit.
		_, total, err := as.Find(ctx, nil, models.AuditFilters{})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, total, err := as.Find(ctx, nil, models.AuditFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total, "rolled back entry must vanish")

	err = runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return as.Insert(ctx, tx, &models.AuditEntry{Action: models.ActionCreate, TableName: "books"})
	})
	require.NoError(t, err)

	_, total, err = as.Find(ctx, nil, models.AuditFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "committed entry must be visible")
}

func TestAuditStore_RowsAreImmutable(t *testing.T) {
	base := setupTestBase(t)
	as := store.NewAuditStore(base)
	ctx := context.Background()

	e := &models.AuditEntry{Action: models.ActionCreate, TableName: "books"}
	require.NoError(t, as.Insert(ctx, nil, e))

	_, err := base.Pool.Exec(ctx, "UPDATE audit_logs SET description = 'tampered' WHERE id = $1", e.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestAuditStore_ListForExportAppliesFilters(t *testing.T) {
	base := setupTestBase(t)
	as := store.NewAuditStore(base)
	ctx := context.Background()

	require.NoError(t, as.Insert(ctx, nil, &models.AuditEntry{Action: models.ActionCreate, TableName: "books"}))
	require.NoError(t, as.Insert(ctx, nil, &models.AuditEntry{Action: models.ActionDelete, TableName: "books"}))

	got, err := as.ListForExport(ctx, nil, models.AuditFilters{Action: models.ActionDelete, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.ActionDelete, got[0].Action)
}
