package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/txn"
)

// AuditDetailKey is the gin context key a handler may set to a
// map[string]any that becomes the NewValues of the request audit entry.
const AuditDetailKey = "audit_detail"

// errHandlerFailed rolls back a route transaction whose handler answered >= 400.
var errHandlerFailed = errors.New("handler responded with an error status")

// AuditSpec declares the audit entry written after a successful request.
type AuditSpec struct {
	Action models.AuditAction
	Table  string
	// RecordParam names the path parameter holding the record id, if any.
	RecordParam string
}

// RoutePolicy is the per-route transaction and audit declaration.
type RoutePolicy struct {
	Transactional bool
	Isolation     pgx.TxIsoLevel
	Audit         *AuditSpec
}

// PolicyTable maps "METHOD /full/path" to its policy.
type PolicyTable map[string]RoutePolicy

func policyKey(method, path string) string {
	return method + " " + path
}

// Set records the policy for a route.
func (t PolicyTable) Set(method, path string, p RoutePolicy) {
	t[policyKey(method, path)] = p
}

// Lookup returns the policy for a route.
func (t PolicyTable) Lookup(method, path string) (RoutePolicy, bool) {
	p, ok := t[policyKey(method, path)]
	return p, ok
}

// Policies applies the declared RoutePolicy of the matched route. Transactional
// routes run the remaining handlers inside runner.Run with the transaction on
// the request context; the response is buffered and only sent once the
// transaction has committed, and any status >= 400 rolls it back. Routes with
// an AuditSpec enqueue a standalone audit entry on success.
func Policies(table PolicyTable, runner *txn.Runner, sink apperr.AuditSink, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := table.Lookup(c.Request.Method, c.FullPath())
		if !ok {
			c.Next()
			return
		}

		if p.Transactional {
			serveInTx(c, p, runner, log)
		} else {
			c.Next()
		}

		auditRequest(c, p, sink)
	}
}

func serveInTx(c *gin.Context, p RoutePolicy, runner *txn.Runner, log *logrus.Logger) {
	bw := newBufferedWriter(c.Writer)

	err := runHandlersInTx(c, bw, p, runner)
	if err != nil && !errors.Is(err, errHandlerFailed) {
		log.WithError(err).WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"request_id": c.GetString(RequestIDKey),
		}).Error("route transaction failed")

		respondAppError(c, apperr.Classify(err).AppError(err))

		return
	}

	bw.flush()
}

func runHandlersInTx(c *gin.Context, bw *bufferedWriter, p RoutePolicy, runner *txn.Runner) error {
	origWriter, origReq := c.Writer, c.Request
	c.Writer = bw

	defer func() {
		c.Writer = origWriter
		c.Request = origReq
	}()

	var opts []txn.Option
	if p.Isolation != "" {
		opts = append(opts, txn.WithIsolation(p.Isolation))
	}

	return runner.Run(origReq.Context(), func(ctx context.Context, _ pgx.Tx) error {
		c.Request = origReq.WithContext(ctx)
		c.Next()

		if bw.Status() >= http.StatusBadRequest {
			return errHandlerFailed
		}

		return nil
	}, opts...)
}

func auditRequest(c *gin.Context, p RoutePolicy, sink apperr.AuditSink) {
	if sink == nil || p.Audit == nil || c.Writer.Status() >= http.StatusBadRequest {
		return
	}

	in := models.AuditInput{
		Actor:       ActorFromContext(c),
		Action:      p.Audit.Action,
		TableName:   p.Audit.Table,
		Description: fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()),
	}

	if p.Audit.RecordParam != "" {
		if id := c.Param(p.Audit.RecordParam); id != "" {
			in.RecordID = &id
		}
	}

	if v, ok := c.Get(AuditDetailKey); ok {
		if detail, ok := v.(map[string]any); ok {
			in.NewValues = detail
		}
	}

	sink.Enqueue(in)
}

// bufferedWriter holds the status and body until the transaction outcome is known.
type bufferedWriter struct {
	gin.ResponseWriter
	status int
	wrote  bool
	body   bytes.Buffer
}

func newBufferedWriter(w gin.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.wrote {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.wrote = true
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wrote = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	if !w.wrote {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.wrote
}

// Flush is a no-op until the buffered response is released.
func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() == 0 {
		w.ResponseWriter.WriteHeaderNow()
		return
	}
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}
