package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/edulabs/tutor-gateway/internal/ratelimit"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/gin-gonic/gin"
)

// Applies the generic API rate limit per authenticated user. A store outage
// rejects the request: failing open here would make the limiter useless
// exactly when it is needed. Must run after RequireAuth.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
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

		ctx := c.Request.Context()
		err = limiter.Consume(ctx, tier.FeatureAPI, profile.UserID, userTier)

		var blocked *ratelimit.BlockedError
		if errors.As(err, &blocked) {
			retryAfter := int(blocked.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Rate limit check failed",
			})
			c.Abort()
			return
		}

		remaining, err := limiter.Remaining(ctx, tier.FeatureAPI, profile.UserID, userTier)
		if err == nil {
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		}

		resetTime, err := limiter.Reset(ctx, tier.FeatureAPI, profile.UserID, userTier)
		if err == nil {
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))
		}

		c.Header("X-RateLimit-Tier", profile.Tier)

		c.Next()
	}
}
