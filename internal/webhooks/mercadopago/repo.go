package mercadopago

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/pkg/db/models"
)

// LogRepository persists the append-only webhook log.
type LogRepository interface {
	Create(ctx context.Context, log *models.WebhookLog) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, processingError string) error
}

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository returns a webhook log repository bound to the database.
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Create(ctx context.Context, log *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *logRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.WebhookLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": now,
		}).Error
}

func (r *logRepository) MarkFailed(ctx context.Context, id uuid.UUID, processingError string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.WebhookLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":        false,
			"processing_error": processingError,
			"processed_at":     now,
		}).Error
}
