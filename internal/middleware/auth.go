package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bookvault/bookvault/internal/apperr"
	"github.com/bookvault/bookvault/internal/models"
)

// authTimingFloor is the minimum response time for auth endpoints to prevent
// timing oracle attacks that could distinguish valid from invalid API keys.
const authTimingFloor = 50 * time.Millisecond

// UserKey is the gin context key holding the authenticated *models.User.
const UserKey = "user"

// usersTable is the audit table name for authentication events.
const usersTable = "users"

// UserLookup resolves an API key to its user.
type UserLookup interface {
	GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
}

// LoginGuard locks out clients after repeated failures.
// *security.LoginGuard satisfies it.
type LoginGuard interface {
	Locked(client string) bool
	Fail(client string) bool
	Succeed(client string)
}

// truncateKey returns at most the first 4 characters of key followed by "...".
func truncateKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return key
}

// enforceTimingFloor sleeps if needed so the response takes at least authTimingFloor.
func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// AuthMiddleware returns Gin middleware that authenticates requests via Bearer
// token and stores the user under UserKey. Rejected keys are written to the
// audit trail as failed LOGIN entries through sink, which may be nil. When
// guard is set, clients it has locked out get 429 without a key lookup.
func AuthMiddleware(lookup UserLookup, sink apperr.AuditSink, log *logrus.Logger, guard LoginGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		apiKey := ExtractBearerToken(c)
		if apiKey == "" {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}

		client := c.ClientIP()
		if guard != nil && guard.Locked(client) {
			respondError(c, http.StatusTooManyRequests, "locked_out", "too many failed authentication attempts")
			return
		}

		user, err := lookup.GetUserByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			logAuthFailure(log, c, apiKey)
			auditAuthFailure(sink, c, apiKey)

			if guard != nil {
				guard.Fail(client)
			}

			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		if guard != nil {
			guard.Succeed(client)
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// ExtractBearerToken extracts the API key from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}

	u, _ := v.(*models.User)

	return u
}

// ActorFromContext describes the caller for audit entries. Unauthenticated
// requests yield an actor with no user id.
func ActorFromContext(c *gin.Context) models.Actor {
	var actor models.Actor

	if u := UserFromContext(c); u != nil {
		id := u.ID
		actor.UserID = &id
	}

	if ip := c.ClientIP(); ip != "" {
		actor.IPAddress = &ip
	}

	if ua := c.Request.UserAgent(); ua != "" {
		actor.UserAgent = &ua
	}

	return actor
}

// logAuthFailure logs a failed authentication attempt.
func logAuthFailure(log *logrus.Logger, c *gin.Context, apiKey string) {
	log.WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"request_id": c.GetString(RequestIDKey),
		"key_prefix": truncateKey(apiKey),
	}).Warn("authentication failed: invalid api key")
}

func auditAuthFailure(sink apperr.AuditSink, c *gin.Context, apiKey string) {
	if sink == nil {
		return
	}

	sink.Enqueue(models.AuditInput{
		Actor:     ActorFromContext(c),
		Action:    models.ActionLogin,
		TableName: usersTable,
		NewValues: map[string]any{
			"success":    false,
			"key_prefix": truncateKey(apiKey),
			"path":       c.Request.URL.Path,
		},
		Description: "authentication failed: invalid api key",
	})
}
