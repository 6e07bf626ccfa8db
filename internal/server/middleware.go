package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/digimart/internal/authorization"
	obscontext "github.com/smallbiznis/digimart/internal/observability/context"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	contextActorKey = "actor"
)

// IdentityRequired reads the caller identity forwarded by the gateway.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		switch role {
		case "":
			role = authorization.RoleBuyer
		case authorization.RoleBuyer, authorization.RoleSeller, authorization.RoleAdmin:
		default:
			AbortWithError(c, ErrForbidden)
			return
		}

		actor := authorization.Actor{UserID: userID, Role: role}
		c.Set(contextActorKey, actor)
		ctx := obscontext.WithActor(c.Request.Context(), role, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (authorization.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok && actor.UserID != 0
}

func mustActor(c *gin.Context) authorization.Actor {
	actor, _ := actorFromContext(c)
	return actor
}
