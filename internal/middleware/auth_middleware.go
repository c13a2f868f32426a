package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	apperrors "github.com/lgu-bplo/bizpermit-backend/internal/errors"
	"github.com/lgu-bplo/bizpermit-backend/pkg/util"
)

// Context keys for the authenticated actor
const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	UserRoleKey  = "user_role"
)

var knownRoles = map[model.UserRole]bool{
	model.RoleAdmin:     true,
	model.RoleOfficer:   true,
	model.RoleStaff:     true,
	model.RoleApplicant: true,
}

// AuthMiddleware validates bearer tokens issued by the identity service.
type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// Authenticate requires a valid token in the Authorization header, or in
// the token query parameter for websocket upgrades.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		var token string
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
				apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenInvalid, "Authorization header must be 'Bearer <token>'")
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
			if token == "" {
				log.Warn("Missing authorization header", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
				apperrors.Unauthorized(c, "Authorization header is required")
				c.Abort()
				return
			}
			log.Debug("Using token from query parameter", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
		}

		claims, err := util.ValidateToken(token, m.jwtSecret)
		if err != nil {
			log.Warn("Token validation failed", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			if errors.Is(err, util.ErrExpiredToken) {
				apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenExpired, "Token has expired")
			} else {
				apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenInvalid, "Invalid token")
			}
			c.Abort()
			return
		}

		role := model.UserRole(claims.Role)
		if !knownRoles[role] {
			log.Warn("Token carries an unknown role", map[string]interface{}{
				"user_id": claims.UserID,
				"role":    claims.Role,
			})
			apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenInvalid, "Invalid token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserEmailKey, claims.Email)
		c.Set(UserRoleKey, role)

		log.Debug("User authenticated successfully", map[string]interface{}{
			"user_id": claims.UserID,
			"role":    claims.Role,
		})

		c.Next()
	}
}

// RequireRole lets the request through only if the actor has one of roles.
// It must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		actor, ok := GetActor(c)
		if !ok {
			log.Warn("Role information not found in context", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			apperrors.Forbidden(c, "Role information not found")
			c.Abort()
			return
		}

		if actor.HasRole(roles...) {
			c.Next()
			return
		}

		log.Warn("Insufficient permissions", map[string]interface{}{
			"user_id":        actor.UserID,
			"user_role":      actor.Role,
			"required_roles": roles,
			"path":           c.Request.URL.Path,
		})
		apperrors.Forbidden(c, "")
		c.Abort()
	}
}

func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint)
	return id, ok
}

func GetUserEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(UserEmailKey)
	if !exists {
		return "", false
	}
	s, ok := email.(string)
	return s, ok
}

func GetUserRole(c *gin.Context) (model.UserRole, bool) {
	role, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}
	r, ok := role.(model.UserRole)
	return r, ok
}

// GetActor builds the explicit actor value passed to the service layer.
func GetActor(c *gin.Context) (model.Actor, bool) {
	userID, ok := GetUserID(c)
	if !ok {
		return model.Actor{}, false
	}
	role, ok := GetUserRole(c)
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{UserID: userID, Role: role}, true
}
