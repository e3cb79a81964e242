package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/models"
)

var _ apperr.AuditSink = (*AuditWorker)(nil)

func TestAuditWorker_ProcessesJob(t *testing.T) {
	recorder := &mockRecorder{}

	aw := NewAuditWorker(recorder, testLogger(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	go aw.Run(ctx)

	aw.Enqueue(models.AuditInput{
		Action:    models.ActionRead,
		TableName: "books",
		RecordID:  models.RecordID(1),
	})

	time.Sleep(50 * time.Millisecond)
	cancel()

	calls := recorder.getCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 audit call, got %d", len(calls))
	}
	if calls[0].Action != models.ActionRead {
		t.Errorf("action = %q, want %q", calls[0].Action, models.ActionRead)
	}
	if *calls[0].RecordID != "1" {
		t.Errorf("record_id = %q, want %q", *calls[0].RecordID, "1")
	}
}

func TestAuditWorker_DropsWhenFull(t *testing.T) {
	recorder := &mockRecorder{}

	// Queue size 2, don't start the worker so it can't drain.
	aw := NewAuditWorker(recorder, testLogger(), 2)

	aw.Enqueue(models.AuditInput{Action: models.ActionRead, TableName: "a"})
	aw.Enqueue(models.AuditInput{Action: models.ActionRead, TableName: "b"})

	done := make(chan struct{})
	go func() {
		aw.Enqueue(models.AuditInput{Action: models.ActionRead, TableName: "c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked when queue was full")
	}

	if len(aw.jobs) != 2 {
		t.Errorf("queue len = %d, want 2", len(aw.jobs))
	}
}

func TestAuditWorker_StopDrains(t *testing.T) {
	recorder := &mockRecorder{}

	aw := NewAuditWorker(recorder, testLogger(), 100)

	for i := range 5 {
		aw.Enqueue(models.AuditInput{Action: models.ActionExport, TableName: "books", RecordID: models.RecordID(int64(i))})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		aw.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run didn't return after cancel")
	}

	if calls := recorder.getCalls(); len(calls) != 5 {
		t.Errorf("expected 5 drained audit calls, got %d", len(calls))
	}
}

func TestAuditWorker_SwallowsRecorderErrors(t *testing.T) {
	recorder := &mockRecorder{err: errors.New("db down")}

	aw := NewAuditWorker(recorder, testLogger(), 10)
	aw.Enqueue(models.AuditInput{Action: models.ActionRead, TableName: "books"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	aw.Run(ctx)

	if calls := recorder.getCalls(); len(calls) != 1 {
		t.Errorf("expected 1 attempted call, got %d", len(calls))
	}
}
