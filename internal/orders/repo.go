package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// Repository manages persistence for orders and their children.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, number string) (*models.Order, error)
	List(ctx context.Context, userID *uuid.UUID, filter ListFilter) ([]models.Order, int64, error)
	// UpdateStatus moves the order only when it still holds fromStatus.
	// Returns the number of rows touched so callers can detect a lost race.
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus enums.OrderStatus, extra map[string]any) (int64, error)
	UpdateTracking(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("ShippingInfo").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("ShippingInfo").
		First(&order, "order_number = ?", number).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, userID *uuid.UUID, filter ListFilter) ([]models.Order, int64, error) {
	params := pagination.Normalize(filter.Pagination)

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Order
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus enums.OrderStatus, extra map[string]any) (int64, error) {
	updates := map[string]any{
		"status":     toStatus,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateTracking(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) error {
	return r.db.WithContext(ctx).
		Model(&models.ShippingInfo{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"tracking_number": trackingNumber,
			"carrier":         carrier,
		}).Error
}
