package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/dbpool"
	"github.com/bookvault/bookvault/internal/middleware"
	"github.com/bookvault/bookvault/internal/models"
	"github.com/bookvault/bookvault/internal/security"
	"github.com/bookvault/bookvault/internal/txn"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Pool        *dbpool.Pool
	Runner      *txn.Runner
	Executor    *apperr.Executor
	AuditSink   apperr.AuditSink
	AuditQueue  QueueDepther
	Users       middleware.UserLookup
	Books       BookService
	References  ReferenceService
	Batch       BatchService
	Audit       AuditService
	CORSOrigins []string
	TxIsolation pgx.TxIsoLevel
	Version     string
	RateLimit   int
	RateBurst   int
}

// Router-level limits.
const (
	maxBodySize   = 1 << 20  // 1 MB for JSON endpoints
	maxImportSize = 32 << 20 // 32 MB for CSV imports
	rateLimit     = 100      // requests per second per IP
	rateBurst     = 200      // token bucket burst size
)

const apiBase = "/api/v1"

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	limit, burst := deps.RateLimit, deps.RateBurst
	if limit <= 0 {
		limit = rateLimit
	}
	if burst <= 0 {
		burst = rateBurst
	}

	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize, map[string]int64{apiBase + "/books/import": maxImportSize}))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			ExposeHeaders:    []string{middleware.RequestIDHeader, "Content-Disposition", "X-Total-Count"},
			MaxAge:           1 * time.Hour,
			AllowCredentials: false,
		}))
	} else {
		deps.Log.Warn("no CORS origins configured; cross-origin requests are not answered")
	}
	r.Use(middleware.NewRateLimiter(ctx, limit, burst).Handler())
	r.Use(middleware.PrometheusMiddleware())
}

// registerRoutes sets up all API route handlers on the given router group and
// records their transaction and audit policies in table.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps, table middleware.PolicyTable) {
	log := deps.Log

	health := NewHealthHandler(deps.Pool, deps.AuditQueue, log, deps.Version)
	books := NewBookHandler(deps.Books, deps.Executor, log)
	batch := NewBatchHandler(deps.Batch, deps.Executor, log)
	audit := NewAuditHandler(deps.Audit, deps.Executor, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// All other API routes require authentication.
	users := middleware.NewCachedUserLookup(ctx, deps.Users)
	guard := security.NewLoginGuard(ctx, security.DefaultPolicy(), log)
	api.Use(middleware.AuthMiddleware(users, deps.AuditSink, log, guard))
	api.Use(middleware.Policies(table, deps.Runner, deps.AuditSink, log))

	rt := newRouteTable(api, table)
	tx := transactional(deps.TxIsolation)

	// Books.
	rt.handle(http.MethodGet, "/books", plain, books.List)
	rt.handle(http.MethodGet, "/books/export", audited(models.ActionExport, booksTable, ""), books.Export)
	rt.handle(http.MethodGet, "/books/:id", audited(models.ActionRead, booksTable, "id"), books.Get)
	rt.handle(http.MethodPost, "/books", tx, books.Create)
	rt.handle(http.MethodPut, "/books/:id", tx, books.Update)
	rt.handle(http.MethodDelete, "/books/:id", tx, books.Delete)
	// Stock adjustment runs its own serializable, retried transaction.
	rt.handle(http.MethodPatch, "/books/:id/stock", plain, books.AdjustStock)

	// Batch operations own their transactions.
	rt.handle(http.MethodPost, "/books/import", plain, batch.Import)
	rt.handle(http.MethodPost, "/books/bulk-update", plain, batch.BulkUpdate)
	rt.handle(http.MethodPost, "/books/bulk-delete", plain, batch.BulkDelete)
	rt.handle(http.MethodPost, "/books/operations", plain, batch.Operations)

	// Authors, publishers and genres.
	for _, kind := range models.RefKinds {
		refs := NewReferenceHandler(kind, deps.References, deps.Executor, log)
		base := "/" + kind.Table()

		rt.handle(http.MethodGet, base, plain, refs.List)
		rt.handle(http.MethodGet, base+"/:id", plain, refs.Get)
		rt.handle(http.MethodPost, base, tx, refs.Create)
		rt.handle(http.MethodPut, base+"/:id", tx, refs.Rename)
		rt.handle(http.MethodDelete, base+"/:id", tx, refs.Delete)
	}

	// Audit.
	rt.handle(http.MethodGet, "/audit", plain, audit.List)
	rt.handle(http.MethodGet, "/audit/stats", plain, audit.Stats)
	rt.handle(http.MethodGet, "/audit/export", audited(models.ActionExport, auditTable, ""), audit.Export)
	rt.handle(http.MethodGet, "/audit/users/:id", plain, audit.ByUser)
	rt.handle(http.MethodGet, "/audit/tables/:table", plain, audit.ByTable)
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group(apiBase), deps, middleware.PolicyTable{})

	return r
}
