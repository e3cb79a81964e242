package service

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/txn"
)

type bookFixture struct {
	svc     *BookService
	store   *memBookStore
	auditor *mockTxAuditor
	db      *fakeDB
	sleeps  []time.Duration
}

func newBookFixture(seed ...models.Book) *bookFixture {
	runner, db := newTestRunner()
	f := &bookFixture{store: newMemBookStore(seed...), auditor: &mockTxAuditor{}, db: db}

	exec := apperr.NewExecutor(apperr.DefaultRetryStrategy(), nil, testLogger())
	exec.SetSleep(func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	})

	f.svc = NewBookService(f.store, f.auditor, runner, exec, testLogger())

	return f
}

func TestCreateBook_AuditsInSameTransaction(t *testing.T) {
	f := newBookFixture()

	b, err := f.svc.CreateBook(context.Background(), models.Actor{}, models.BookInput{Title: " Dune ", Price: 9.99, Stock: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Title != "Dune" || !b.Available {
		t.Errorf("book = %+v, want trimmed title and available default", b)
	}

	txs := f.db.begun()
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}

	calls := f.auditor.getCalls()
	if len(calls) != 1 || calls[0].action != models.ActionCreate {
		t.Fatalf("audit calls = %+v, want one CREATE", calls)
	}
	if calls[0].tx != txs[0] {
		t.Error("audit entry must share the book's transaction")
	}
	if *calls[0].in.RecordID != "1" || calls[0].in.NewValues["title"] != "Dune" {
		t.Errorf("audit input = %+v", calls[0].in)
	}
	if committed, _ := txs[0].state(); !committed {
		t.Error("transaction should be committed")
	}
}

func TestCreateBook_ValidationFailsBeforeTransaction(t *testing.T) {
	f := newBookFixture()

	_, err := f.svc.CreateBook(context.Background(), models.Actor{}, models.BookInput{Title: "Dune", Price: 0})
	if !errors.Is(err, models.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if n := len(f.db.begun()); n != 0 {
		t.Errorf("expected no transaction, got %d", n)
	}
}

func TestCreateBook_AuditFailureRollsBack(t *testing.T) {
	f := newBookFixture()
	f.auditor.err = errors.New("audit insert failed")

	if _, err := f.svc.CreateBook(context.Background(), models.Actor{}, models.BookInput{Title: "Dune", Price: 1}); err == nil {
		t.Fatal("expected error")
	}

	committed, rolledBack := f.db.begun()[0].state()
	if committed || !rolledBack {
		t.Errorf("committed=%v rolledBack=%v, want rollback", committed, rolledBack)
	}
}

func TestCreateBook_JoinsTransactionFromContext(t *testing.T) {
	f := newBookFixture()
	outer := &fakeTx{}

	ctx := txn.WithTx(context.Background(), outer)

	if _, err := f.svc.CreateBook(ctx, models.Actor{}, models.BookInput{Title: "Dune", Price: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := len(f.db.begun()); n != 0 {
		t.Errorf("expected the context transaction to be reused, %d begun", n)
	}
	if calls := f.auditor.getCalls(); calls[0].tx != outer {
		t.Error("audit entry must use the context transaction")
	}
	if committed, _ := outer.state(); committed {
		t.Error("joined transaction must be left for its owner to commit")
	}
}

func TestUpdateBook_RecordsOldAndNewValues(t *testing.T) {
	f := newBookFixture(models.Book{ID: 7, Title: "Old", Price: 5, Stock: 1})

	title := "New"
	b, err := f.svc.UpdateBook(context.Background(), models.Actor{}, 7, models.BookPatch{Title: &title})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Title != "New" || b.Price != 5 {
		t.Errorf("book = %+v", b)
	}

	call := f.auditor.getCalls()[0]
	if call.action != models.ActionUpdate {
		t.Errorf("action = %s, want UPDATE", call.action)
	}
	if call.in.OldValues["title"] != "Old" || call.in.NewValues["title"] != "New" {
		t.Errorf("old=%v new=%v", call.in.OldValues["title"], call.in.NewValues["title"])
	}
}

func TestUpdateBook_NotFound(t *testing.T) {
	f := newBookFixture()

	title := "x"
	_, err := f.svc.UpdateBook(context.Background(), models.Actor{}, 1, models.BookPatch{Title: &title})
	if !errors.Is(err, models.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
	if n := len(f.auditor.getCalls()); n != 0 {
		t.Errorf("expected no audit entries, got %d", n)
	}
}

func TestDeleteBook_AuditsLastState(t *testing.T) {
	f := newBookFixture(models.Book{ID: 3, Title: "Gone", Price: 2})

	if err := f.svc.DeleteBook(context.Background(), models.Actor{}, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := f.auditor.getCalls()[0]
	if call.action != models.ActionDelete || call.in.OldValues["title"] != "Gone" || call.in.NewValues != nil {
		t.Errorf("audit call = %+v", call)
	}
	if f.store.count() != 0 {
		t.Error("book should be deleted")
	}
}

func TestAdjustStock_InsufficientStockIsBusinessError(t *testing.T) {
	f := newBookFixture(models.Book{ID: 1, Title: "A", Price: 1, Stock: 2})

	_, err := f.svc.AdjustStock(context.Background(), models.Actor{}, 1, -5)

	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if appErr.Status != http.StatusUnprocessableEntity || appErr.Retryable {
		t.Errorf("status=%d retryable=%v, want 422 and not retryable", appErr.Status, appErr.Retryable)
	}
	if n := len(f.db.begun()); n != 1 {
		t.Errorf("business errors must not be retried, %d transactions", n)
	}
}

func TestAdjustStock_RetriesSerializationFailure(t *testing.T) {
	f := newBookFixture(models.Book{ID: 1, Title: "A", Price: 1, Stock: 2})
	f.store.setStockErr = func(call int) error {
		if call == 1 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		}
		return nil
	}

	b, err := f.svc.AdjustStock(context.Background(), models.Actor{}, 1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Stock != 5 {
		t.Errorf("stock = %d, want 5", b.Stock)
	}

	txs := f.db.begun()
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if _, rolledBack := txs[0].state(); !rolledBack {
		t.Error("first attempt should roll back")
	}
	if committed, _ := txs[1].state(); !committed {
		t.Error("second attempt should commit")
	}
	if len(f.sleeps) != 1 || f.sleeps[0] < time.Second {
		t.Errorf("sleeps = %v, want one backoff of at least 1s", f.sleeps)
	}

	calls := f.auditor.getCalls()
	if len(calls) != 1 || calls[0].in.NewValues["stock"] != 5 {
		t.Errorf("audit calls = %+v, want one stock update", calls)
	}
}

func TestExportBooksCSV_QuotesFieldsAndAddsBOM(t *testing.T) {
	isbn := "978-0"
	author := "Frank \"F\" Herbert"
	f := newBookFixture(models.Book{ID: 1, Title: "Dune, Part 1", ISBN: &isbn, Price: 9.5, Stock: 2, Available: true, AuthorName: &author})

	out, n, err := f.svc.ExportBooksCSV(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if !bytes.HasPrefix(out, []byte(utf8BOM)) {
		t.Error("missing BOM")
	}

	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(string(out), utf8BOM), "\n"), "\n")
	if !strings.HasPrefix(lines[0], `"title","isbn","price"`) {
		t.Errorf("header = %s", lines[0])
	}

	want := `"Dune, Part 1","978-0","9.50","2","true","","","","","Frank ""F"" Herbert","",""`
	if lines[1] != want {
		t.Errorf("row = %s\nwant  %s", lines[1], want)
	}
}

func TestExportBooksCSV_RoundTripsThroughImport(t *testing.T) {
	author := "Ann"
	f := newBookFixture(models.Book{ID: 1, Title: "Dune", Price: 9.5, Stock: 2, Available: false, AuthorName: &author})

	out, _, err := f.svc.ExportBooksCSV(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := parseBookCSV(string(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	br, err := rows[0].toBookRow()
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if br.Input.Title != "Dune" || br.Input.Price != 9.5 || *br.Input.Available || br.Author != "Ann" {
		t.Errorf("row = %+v author=%q", br.Input, br.Author)
	}
}
