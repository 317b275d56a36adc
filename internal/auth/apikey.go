package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerAPIKey = "X-API-Key"
	headerActor  = "X-Actor-Id"
	headerRole   = "X-Actor-Role"

	// ContextActorID and ContextActorRole carry the identity supplied by the
	// upstream auth collaborator. The core trusts this input and performs no
	// credential verification of its own.
	ContextActorID   = "actor_id"
	ContextActorRole = "actor_role"
)

// APIKeyMiddleware validates the API key from the X-API-Key header and
// records the already-authenticated actor identity on the request context.
// If apiKey is empty, authentication is disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" {
			provided := c.GetHeader(headerAPIKey)
			if provided == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "missing API key",
				})
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "invalid API key",
				})
				return
			}
		}

		if v := c.GetHeader(headerActor); v != "" {
			if id, err := uuid.Parse(v); err == nil {
				c.Set(ContextActorID, id)
			}
		}
		if v := c.GetHeader(headerRole); v != "" {
			c.Set(ContextActorRole, v)
		}

		c.Next()
	}
}

// ActorID returns the authenticated actor id from the request context.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextActorID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
