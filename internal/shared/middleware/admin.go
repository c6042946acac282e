package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bookcatalog-backend/internal/shared/response"
)

const (
	AdminKeyHeader = "X-Admin-Key"
	ActorHeader    = "X-Actor-ID"

	// ActorIDKey holds the uuid.UUID of the operator behind the request
	ActorIDKey = "actor_id"
)

// AdminMiddleware guards the import surface with a shared key.
// An empty key disables the check (development only, enforced by config validation).
func AdminMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" {
			got := c.GetHeader(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				response.ErrorResponse(c, http.StatusForbidden, "ADMIN_REQUIRED", "Access denied: admin key required")
				c.Abort()
				return
			}
		}

		if raw := c.GetHeader(ActorHeader); raw != "" {
			if actorID, err := uuid.Parse(raw); err == nil {
				c.Set(ActorIDKey, actorID)
			}
		}

		c.Next()
	}
}

// ActorID returns the actor set by AdminMiddleware, if any
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ActorIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
