package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/txn"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	return l
}

// fakeTx records commit, rollback and savepoint statements. Query methods
// are never reached because the stores are faked too.
type fakeTx struct {
	pgx.Tx

	mu         sync.Mutex
	committed  bool
	rolledBack bool
	execs      []string
}

func (f *fakeTx) Commit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.committed = true

	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.committed {
		f.rolledBack = true
	}

	return nil
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.execs = append(f.execs, sql)

	return pgconn.NewCommandTag(strings.Fields(sql)[0]), nil
}

func (f *fakeTx) state() (committed, rolledBack bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.committed, f.rolledBack
}

func (f *fakeTx) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.execs...)
}

// fakeDB hands out a fresh fakeTx per transaction.
type fakeDB struct {
	mu  sync.Mutex
	txs []*fakeTx
}

func (d *fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &fakeTx{}
	d.txs = append(d.txs, tx)

	return tx, nil
}

func (d *fakeDB) begun() []*fakeTx {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*fakeTx(nil), d.txs...)
}

func newTestRunner() (*txn.Runner, *fakeDB) {
	db := &fakeDB{}
	return txn.NewRunner(db, testLogger(), 4), db
}

// memBookStore is an in-memory BookStore. The *Err hooks inject failures.
type memBookStore struct {
	mu     sync.Mutex
	books  map[int64]models.Book
	nextID int64

	createErr   func(b *models.Book) error
	updateErr   func(b *models.Book) error
	setStockErr func(call int) error

	setStockCalls int
	queriers      []dbpool.Querier
}

func newMemBookStore(seed ...models.Book) *memBookStore {
	m := &memBookStore{books: make(map[int64]models.Book)}
	for _, b := range seed {
		m.books[b.ID] = b
		m.nextID = max(m.nextID, b.ID)
	}

	return m
}

func (m *memBookStore) track(q dbpool.Querier) {
	m.queriers = append(m.queriers, q)
}

func (m *memBookStore) Get(_ context.Context, q dbpool.Querier, id int64) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.track(q)

	b, ok := m.books[id]
	if !ok {
		return nil, models.ErrBookNotFound
	}

	return &b, nil
}

func (m *memBookStore) GetForUpdate(ctx context.Context, q dbpool.Querier, id int64) (*models.Book, error) {
	return m.Get(ctx, q, id)
}

func (m *memBookStore) find(match func(b *models.Book) bool) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := m.books[id]
		if match(&b) {
			return &b, nil
		}
	}

	return nil, models.ErrBookNotFound
}

func (m *memBookStore) FindByISBN(_ context.Context, _ dbpool.Querier, isbn string) (*models.Book, error) {
	isbn = strings.TrimSpace(isbn)
	return m.find(func(b *models.Book) bool { return b.ISBN != nil && *b.ISBN == isbn })
}

func (m *memBookStore) FindByTitle(_ context.Context, _ dbpool.Querier, title string) (*models.Book, error) {
	return m.find(func(b *models.Book) bool { return b.Title == title })
}

func (m *memBookStore) List(ctx context.Context, q dbpool.Querier, _ models.BookListOpts) ([]models.Book, int64, error) {
	all, err := m.ListAll(ctx, q)
	return all, int64(len(all)), err
}

func (m *memBookStore) ListAll(_ context.Context, _ dbpool.Querier) ([]models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *memBookStore) Create(_ context.Context, q dbpool.Querier, b *models.Book) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.track(q)

	if m.createErr != nil {
		if err := m.createErr(b); err != nil {
			return nil, err
		}
	}

	m.nextID++
	created := *b
	created.ID = m.nextID
	m.books[created.ID] = created

	return &created, nil
}

func (m *memBookStore) Update(_ context.Context, q dbpool.Querier, b *models.Book) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.track(q)

	if m.updateErr != nil {
		if err := m.updateErr(b); err != nil {
			return nil, err
		}
	}

	if _, ok := m.books[b.ID]; !ok {
		return nil, models.ErrBookNotFound
	}

	m.books[b.ID] = *b
	updated := *b

	return &updated, nil
}

func (m *memBookStore) SetStock(_ context.Context, q dbpool.Querier, id int64, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.track(q)
	m.setStockCalls++

	if m.setStockErr != nil {
		if err := m.setStockErr(m.setStockCalls); err != nil {
			return err
		}
	}

	b, ok := m.books[id]
	if !ok {
		return models.ErrBookNotFound
	}

	b.Stock = stock
	m.books[id] = b

	return nil
}

func (m *memBookStore) Delete(_ context.Context, q dbpool.Querier, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.track(q)

	if _, ok := m.books[id]; !ok {
		return models.ErrBookNotFound
	}

	delete(m.books, id)

	return nil
}

func (m *memBookStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.books)
}

// memRefStore is an in-memory ReferenceStore.
type memRefStore struct {
	mu      sync.Mutex
	refs    map[int64]models.Reference
	nextID  int64
	creates []string
}

func newMemRefStore(seed ...models.Reference) *memRefStore {
	m := &memRefStore{refs: make(map[int64]models.Reference)}
	for _, r := range seed {
		m.refs[r.ID] = r
		m.nextID = max(m.nextID, r.ID)
	}

	return m
}

func (m *memRefStore) Get(_ context.Context, _ dbpool.Querier, kind models.RefKind, id int64) (*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.refs[id]
	if !ok || r.Kind != kind {
		return nil, models.ErrReferenceNotFound
	}

	return &r, nil
}

func (m *memRefStore) FindByName(_ context.Context, _ dbpool.Querier, kind models.RefKind, name string) (*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.refs {
		if r.Kind == kind && r.Name == name {
			return &r, nil
		}
	}

	return nil, models.ErrReferenceNotFound
}

func (m *memRefStore) List(_ context.Context, _ dbpool.Querier, kind models.RefKind, _ string, _, _ int) ([]models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Reference
	for _, r := range m.refs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (m *memRefStore) Create(_ context.Context, _ dbpool.Querier, kind models.RefKind, name string) (*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.refs {
		if r.Kind == kind && r.Name == name {
			return nil, models.ErrDuplicateKey
		}
	}

	m.nextID++
	r := models.Reference{ID: m.nextID, Kind: kind, Name: name}
	m.refs[r.ID] = r
	m.creates = append(m.creates, string(kind)+":"+name)

	return &r, nil
}

func (m *memRefStore) Rename(_ context.Context, _ dbpool.Querier, kind models.RefKind, id int64, name string) (*models.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.refs[id]
	if !ok || r.Kind != kind {
		return nil, models.ErrReferenceNotFound
	}

	r.Name = name
	m.refs[id] = r

	return &r, nil
}

func (m *memRefStore) Delete(_ context.Context, _ dbpool.Querier, kind models.RefKind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.refs[id]
	if !ok || r.Kind != kind {
		return models.ErrReferenceNotFound
	}

	delete(m.refs, id)

	return nil
}

func (m *memRefStore) createdNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.creates...)
}

// txAuditCall is one entry recorded by mockTxAuditor.
type txAuditCall struct {
	action models.AuditAction
	tx     pgx.Tx
	in     models.AuditInput
}

// mockTxAuditor records in-transaction audit calls.
type mockTxAuditor struct {
	mu    sync.Mutex
	calls []txAuditCall
	err   error
}

func (m *mockTxAuditor) log(action models.AuditAction, tx pgx.Tx, in models.AuditInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, txAuditCall{action: action, tx: tx, in: in})

	return m.err
}

func (m *mockTxAuditor) LogCreateTx(_ context.Context, tx pgx.Tx, in models.AuditInput) error {
	return m.log(models.ActionCreate, tx, in)
}

func (m *mockTxAuditor) LogUpdateTx(_ context.Context, tx pgx.Tx, in models.AuditInput) error {
	return m.log(models.ActionUpdate, tx, in)
}

func (m *mockTxAuditor) LogDeleteTx(_ context.Context, tx pgx.Tx, in models.AuditInput) error {
	return m.log(models.ActionDelete, tx, in)
}

func (m *mockTxAuditor) getCalls() []txAuditCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]txAuditCall(nil), m.calls...)
}

// mockRecorder records standalone audit writes made by AuditWorker.
type mockRecorder struct {
	mu    sync.Mutex
	calls []models.AuditInput
	err   error
}

func (m *mockRecorder) CreateAuditLog(_ context.Context, in models.AuditInput) (*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, in)
	if m.err != nil {
		return nil, m.err
	}

	return &models.AuditEntry{Action: in.Action, TableName: in.TableName}, nil
}

func (m *mockRecorder) getCalls() []models.AuditInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.AuditInput(nil), m.calls...)
}

// mockAuditStore records inserts and serves canned query results.
type mockAuditStore struct {
	mu        sync.Mutex
	inserted  []*models.AuditEntry
	queriers  []dbpool.Querier
	insertErr error

	entries    []models.AuditEntry
	total      int64
	lastFilter models.AuditFilters
}

func (m *mockAuditStore) Insert(_ context.Context, q dbpool.Querier, e *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return m.insertErr
	}

	m.inserted = append(m.inserted, e)
	m.queriers = append(m.queriers, q)

	return nil
}

func (m *mockAuditStore) Find(_ context.Context, _ dbpool.Querier, f models.AuditFilters) ([]models.AuditEntry, int64, error) {
	m.lastFilter = f
	return m.entries, m.total, nil
}

func (m *mockAuditStore) FindByUser(_ context.Context, _ dbpool.Querier, _ int64) ([]models.AuditEntry, error) {
	return m.entries, nil
}

func (m *mockAuditStore) FindByTable(_ context.Context, _ dbpool.Querier, _ string) ([]models.AuditEntry, error) {
	return m.entries, nil
}

func (m *mockAuditStore) ListForExport(_ context.Context, _ dbpool.Querier, f models.AuditFilters) ([]models.AuditEntry, error) {
	m.lastFilter = f
	return m.entries, nil
}

func (m *mockAuditStore) Stats(_ context.Context, _ dbpool.Querier) (*models.AuditStats, error) {
	return &models.AuditStats{Total: int64(len(m.entries))}, nil
}
