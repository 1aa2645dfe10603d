package service

import (
	"context"
	"time"

	"github.com/edulabs/tutor-gateway/internal/repository"
)

type UsageService struct {
	repo *repository.ChatLogRepository
}

func NewUsageService(repo *repository.ChatLogRepository) *UsageService {
	return &UsageService{repo: repo}
}

// Holds aggregated usage over a time range
type UsageSummary struct {
	From          time.Time                `json:"from"`
	To            time.Time                `json:"to"`
	TotalRequests int64                    `json:"total_requests"`
	TotalTokens   int64                    `json:"total_tokens"`
	ByTier        []map[string]interface{} `json:"by_tier"`
	Daily         []map[string]interface{} `json:"daily"`
}

// Summary aggregates chat requests and token spend over the range.
func (s *UsageService) Summary(ctx context.Context, from, to time.Time) (*UsageSummary, error) {
	requests, err := s.repo.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	tokens, err := s.repo.SumTokens(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byTier, err := s.repo.UsageByTier(ctx, from, to)
	if err != nil {
		return nil, err
	}

	daily, err := s.repo.DailyUsage(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return &UsageSummary{
		From:          from,
		To:            to,
		TotalRequests: requests,
		TotalTokens:   tokens,
		ByTier:        byTier,
		Daily:         daily,
	}, nil
}
