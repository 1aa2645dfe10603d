package middleware

import (
	"net/http"
	"strings"

	"github.com/edulabs/tutor-gateway/internal/service"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/gin-gonic/gin"
)

// Context key under which the resolved profile is stored.
const IdentityKey = "identity"

// Validates the bearer token and resolves the caller's profile, including
// their effective subscription tier.
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Use: Bearer <token>",
			})
			c.Abort()
			return
		}

		profile, err := authService.ResolveIdentity(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(IdentityKey, profile)
		c.Set("user_id", profile.UserID)
		c.Set("role", profile.Role)

		c.Next()
	}
}

// CurrentProfile returns the profile RequireAuth stored on the context.
func CurrentProfile(c *gin.Context) (*service.Profile, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}

	profile, ok := value.(*service.Profile)
	return profile, ok
}

// Restricts a route to the given roles. Must run after RequireAuth.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, ok := CurrentProfile(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		for _, role := range allowedRoles {
			if profile.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
		c.Abort()
	}
}

// Restricts a route to subscribers of at least the given tier. Must run
// after RequireAuth.
func RequireTier(required tier.Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, ok := CurrentProfile(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		userTier, err := tier.Parse(profile.Tier)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Unknown subscription tier"})
			c.Abort()
			return
		}

		if !userTier.AtLeast(required) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":         "Premium feature",
				"required_tier": required.String(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
