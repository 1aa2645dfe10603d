package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/edulabs/tutor-gateway/internal/ai"
	"github.com/edulabs/tutor-gateway/internal/governor"
	"github.com/edulabs/tutor-gateway/internal/middleware"
	"github.com/edulabs/tutor-gateway/internal/models"
	"github.com/edulabs/tutor-gateway/internal/quota"
	"github.com/edulabs/tutor-gateway/internal/ratelimit"
	"github.com/edulabs/tutor-gateway/internal/service"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ChatHandler struct {
	governor *governor.Governor
	ai       *ai.Client
	writer   *service.ChatLogWriter
}

func NewChatHandler(gov *governor.Governor, aiClient *ai.Client, writer *service.ChatLogWriter) *ChatHandler {
	return &ChatHandler{
		governor: gov,
		ai:       aiClient,
		writer:   writer,
	}
}

// Chat runs one tutor exchange: admission, the upstream completion, then
// usage recording and the durable history write.
func (h *ChatHandler) Chat(c *gin.Context) {
	profile, ok := middleware.CurrentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
		TopicID string `json:"topic_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userTier, err := tier.Parse(profile.Tier)
	if err != nil {
		// Policy table and stored profile disagree; a deployment problem,
		// not a user one.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Subscription configuration error"})
		return
	}

	ctx := c.Request.Context()
	id := governor.Identity{UserID: profile.UserID, Tier: userTier}

	adm, err := h.governor.Begin(ctx, id)
	if err != nil {
		h.rejected(c, err)
		return
	}

	completion, err := h.ai.Complete(ctx, adm.History, req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Tutor is temporarily unavailable"})
		return
	}

	dailyTotal := h.governor.Record(ctx, id, adm, governor.Outcome{
		Message:  req.Message,
		Response: completion.Response,
		Tokens:   completion.TokensUsed,
	})

	if userID, err := uuid.Parse(profile.UserID); err == nil {
		h.writer.Enqueue(models.ChatRecord{
			UserID:     userID,
			TopicID:    req.TopicID,
			Tier:       profile.Tier,
			Content:    req.Message,
			Response:   completion.Response,
			TokensUsed: completion.TokensUsed,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"response":     completion.Response,
		"tokens_used":  completion.TokensUsed,
		"daily_tokens": dailyTotal,
		"max_tokens":   adm.TokenBudget,
	})
}

// rejected maps admission failures onto the caller-facing contract. Store
// outages during checks reject: the anti-abuse guarantee wins over
// availability here.
func (h *ChatHandler) rejected(c *gin.Context, err error) {
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
		return
	}

	var exceeded *quota.BudgetExceededError
	if errors.As(err, &exceeded) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Daily token limit exceeded",
			"limit": exceeded.Limit,
			"used":  exceeded.Used,
		})
		return
	}

	if errors.Is(err, tier.ErrInvalidTier) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Subscription configuration error"})
		return
	}

	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
}
