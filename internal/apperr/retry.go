package apperr

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/metrics"
	"github.com/bookvault/bookvault/internal/models"
)

// RetryStrategy bounds how often and how patiently an operation is retried.
// It is a value type; copies are independent.
type RetryStrategy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	RetryableKinds []Kind
}

// DefaultRetryStrategy returns the process-wide default: three attempts,
// one second base delay doubling up to ten seconds, retrying deadlocks,
// timeouts and connection errors.
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2,
		RetryableKinds: []Kind{KindDeadlock, KindTimeout, KindConnection},
	}
}

// Delay returns the wait after failed attempt n (1-based):
// min(BaseDelay * BackoffFactor^(n-1), MaxDelay).
func (s RetryStrategy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(s.BaseDelay) * math.Pow(s.BackoffFactor, float64(attempt-1))
	if s.MaxDelay > 0 && d > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(d)
}

// Retries reports whether failures of kind are retried.
func (s RetryStrategy) Retries(kind Kind) bool {
	return slices.Contains(s.RetryableKinds, kind)
}

func (s RetryStrategy) normalized() RetryStrategy {
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 1
	}
	if s.BackoffFactor < 1 {
		s.BackoffFactor = 1
	}

	s.RetryableKinds = slices.Clone(s.RetryableKinds)

	return s
}

// OperationContext describes the call being executed, for logging and audit.
type OperationContext struct {
	Operation string
	Action    models.AuditAction
	TableName string
	RecordID  *string
	Actor     models.Actor
}

func (op OperationContext) fields() logrus.Fields {
	f := logrus.Fields{"operation": op.Operation}
	if op.TableName != "" {
		f["table"] = op.TableName
	}
	if op.RecordID != nil {
		f["record_id"] = *op.RecordID
	}
	if op.Actor.UserID != nil {
		f["user_id"] = *op.Actor.UserID
	}

	return f
}

// AuditSink accepts standalone audit entries. Implementations must not block
// and must swallow their own failures.
type AuditSink interface {
	Enqueue(in models.AuditInput)
}

// Executor classifies failures, retries transient ones and reports every
// classified failure to the audit trail.
type Executor struct {
	strategy RetryStrategy
	audit    AuditSink
	log      *logrus.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor using strategy as its default policy.
// audit may be nil.
func NewExecutor(strategy RetryStrategy, audit AuditSink, log *logrus.Logger) *Executor {
	return &Executor{
		strategy: strategy.normalized(),
		audit:    audit,
		log:      log,
		sleep:    sleepCtx,
	}
}

// SetSleep replaces the backoff wait. Tests use it to observe delays.
func (e *Executor) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	e.sleep = fn
}

// Strategy returns the executor's default policy.
func (e *Executor) Strategy() RetryStrategy {
	return e.strategy.normalized()
}

// ExecuteWithRetry calls fn until it succeeds, fails with a non-retryable
// error, or the attempts are exhausted. An optional strategy overrides the
// default for this call. The returned error, if any, is an *AppError.
func (e *Executor) ExecuteWithRetry(
	ctx context.Context, op OperationContext, fn func(ctx context.Context) error, strategy ...RetryStrategy,
) error {
	s := e.strategy
	if len(strategy) > 0 {
		s = strategy[0].normalized()
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.recordRecovery(op, attempt)
			}

			return nil
		}

		c := Classify(err)
		metrics.RetryAttemptsTotal.WithLabelValues(string(c.Kind)).Inc()

		retry := s.Retries(c.Kind) && attempt < s.MaxAttempts && ctx.Err() == nil
		if !retry {
			return e.fail(op, c, err, attempt)
		}

		delay := s.Delay(attempt)

		e.log.WithFields(op.fields()).WithFields(logrus.Fields{
			"attempt":    attempt,
			"error_kind": c.Kind,
			"delay":      delay.String(),
		}).WithError(err).Warn("operation failed, retrying")
		e.record(op, fmt.Sprintf("attempt %d of %s failed (%s), retrying in %s", attempt, op.Operation, c.Kind, delay), c, err, attempt)

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return e.fail(op, c, err, attempt)
		}
	}
}

// HandleTransactionError classifies err, logs and audits it, and returns the
// user-facing error without retrying. A nil err yields nil.
func (e *Executor) HandleTransactionError(_ context.Context, op OperationContext, err error) *AppError {
	if err == nil {
		return nil
	}

	c := Classify(err)
	e.logFailure(op, c, err, 1)
	e.record(op, fmt.Sprintf("%s failed (%s): %s", op.Operation, c.Kind, c.Message), c, err, 1)

	return c.AppError(err)
}

func (e *Executor) fail(op OperationContext, c Classification, err error, attempts int) *AppError {
	e.logFailure(op, c, err, attempts)
	e.record(op, fmt.Sprintf("%s failed after %d attempt(s) (%s): %s", op.Operation, attempts, c.Kind, c.Message), c, err, attempts)

	return c.AppError(err)
}

func (e *Executor) logFailure(op OperationContext, c Classification, err error, attempts int) {
	entry := e.log.WithFields(op.fields()).WithFields(logrus.Fields{
		"attempts":   attempts,
		"error_kind": c.Kind,
		"status":     c.Status,
	}).WithError(err)

	if c.Status >= 500 {
		entry.Error("operation failed")
		return
	}

	entry.Warn("operation failed")
}

func (e *Executor) recordRecovery(op OperationContext, attempts int) {
	e.log.WithFields(op.fields()).WithField("attempts", attempts).Info("operation recovered after retry")

	if e.audit == nil {
		return
	}

	e.audit.Enqueue(models.AuditInput{
		Actor:       op.Actor,
		Action:      op.action(),
		TableName:   op.table(),
		RecordID:    op.RecordID,
		NewValues:   map[string]any{"operation": op.Operation, "attempts": attempts, "recovered": true},
		Description: fmt.Sprintf("%s succeeded after %d attempts", op.Operation, attempts),
	})
}

// record writes a standalone, best-effort audit entry describing a failure.
func (e *Executor) record(op OperationContext, desc string, c Classification, err error, attempt int) {
	if e.audit == nil {
		return
	}

	e.audit.Enqueue(models.AuditInput{
		Actor:     op.Actor,
		Action:    op.action(),
		TableName: op.table(),
		RecordID:  op.RecordID,
		NewValues: map[string]any{
			"operation":  op.Operation,
			"attempt":    attempt,
			"error_kind": string(c.Kind),
			"status":     c.Status,
			"retryable":  c.Retryable,
			"error":      err.Error(),
		},
		Description: desc,
	})
}

func (op OperationContext) action() models.AuditAction {
	if op.Action.Valid() {
		return op.Action
	}

	return models.ActionUpdate
}

func (op OperationContext) table() string {
	if op.TableName != "" {
		return op.TableName
	}

	return "system"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
