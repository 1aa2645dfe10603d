package repository

import (
	"context"
	"time"

	"github.com/edulabs/tutor-gateway/internal/models"
	"github.com/edulabs/tutor-gateway/internal/storage"
	"github.com/google/uuid"
)

type ChatLogRepository struct {
	db *storage.Postgres
}

func NewChatLogRepository(db *storage.Postgres) *ChatLogRepository {
	return &ChatLogRepository{db: db}
}

// Inserts a single chat record
func (r *ChatLogRepository) Create(ctx context.Context, record *models.ChatRecord) error {
	return r.db.DB.WithContext(ctx).Create(record).Error
}

// Inserts multiple chat records (for batch insertion)
func (r *ChatLogRepository) CreateBatch(ctx context.Context, records []models.ChatRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&records).Error
}

// Retrieves a user's chat records, newest first
func (r *ChatLogRepository) FindByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ChatRecord, error) {
	var records []models.ChatRecord
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, err
}

// Counts chat requests in a time range
func (r *ChatLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.ChatRecord{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

// Sums tokens spent in a time range
func (r *ChatLogRepository) SumTokens(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.ChatRecord{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Select("COALESCE(SUM(tokens_used), 0)").
		Scan(&total).Error

	return total, err
}

// Returns request and token totals grouped by tier
func (r *ChatLogRepository) UsageByTier(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.ChatRecord{}).
		Select("tier, COUNT(*) as requests, COALESCE(SUM(tokens_used), 0) as tokens").
		Where("created_at BETWEEN ? AND ?", from, to).
		Group("tier").
		Order("tokens DESC").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tierName string
		var requests, tokens int64

		if err := rows.Scan(&tierName, &requests, &tokens); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"tier":     tierName,
			"requests": requests,
			"tokens":   tokens,
		})
	}

	return results, nil
}

// Returns request counts and token totals grouped by day
func (r *ChatLogRepository) DailyUsage(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.ChatRecord{}).
		Select("DATE_TRUNC('day', created_at) as day, COUNT(*) as requests, COALESCE(SUM(tokens_used), 0) as tokens").
		Where("created_at BETWEEN ? AND ?", from, to).
		Group("day").
		Order("day ASC").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		var requests, tokens int64

		if err := rows.Scan(&day, &requests, &tokens); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"day":      day,
			"requests": requests,
			"tokens":   tokens,
		})
	}

	return results, nil
}

// Deletes records older than the specified time
func (r *ChatLogRepository) DeleteOldRecords(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.ChatRecord{})

	return result.RowsAffected, result.Error
}
