package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/metrics"
	"github.com/bookvault/bookvault/internal/models"
)

// AuditRecorder writes standalone audit entries. *AuditService satisfies it.
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, in models.AuditInput) (*models.AuditEntry, error)
}

// AuditWorker buffers standalone audit entries and writes them via a single
// worker goroutine. Request-level READ/EXPORT entries and retry reports go
// through it so that recording them never delays or fails the caller.
type AuditWorker struct {
	recorder AuditRecorder
	log      *logrus.Logger
	jobs     chan models.AuditInput
}

// NewAuditWorker creates an AuditWorker with the given queue capacity.
func NewAuditWorker(recorder AuditRecorder, log *logrus.Logger, queueSize int) *AuditWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &AuditWorker{
		recorder: recorder,
		log:      log,
		jobs:     make(chan models.AuditInput, queueSize),
	}
}

// Enqueue adds an entry. Non-blocking; drops the entry if the queue is full.
func (w *AuditWorker) Enqueue(in models.AuditInput) {
	select {
	case w.jobs <- in:
		metrics.AuditQueueDepth.Set(float64(len(w.jobs)))
	default:
		metrics.AuditDroppedTotal.Inc()
		w.log.WithFields(logrus.Fields{
			"action": in.Action,
			"table":  in.TableName,
		}).Warn("audit queue full, dropping entry")
	}
}

// QueueDepth reports the number of entries waiting to be written.
func (w *AuditWorker) QueueDepth() int {
	return len(w.jobs)
}

// Run processes entries until the context is cancelled, then drains remaining entries.
func (w *AuditWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case in := <-w.jobs:
			w.process(in)
		}
	}
}

func (w *AuditWorker) drain() {
	for {
		select {
		case in := <-w.jobs:
			w.process(in)
		default:
			return
		}
	}
}

func (w *AuditWorker) process(in models.AuditInput) {
	metrics.AuditQueueDepth.Set(float64(len(w.jobs)))

	if _, err := w.recorder.CreateAuditLog(context.Background(), in); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"action": in.Action,
			"table":  in.TableName,
		}).Warn("audit record failed")
	}
}
