package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// StatsRow aggregates payment counters straight from the database.
type StatsRow struct {
	TotalPayments    int64
	ApprovedPayments int64
	TotalRevenue     decimal.Decimal
	MonthlyRevenue   decimal.Decimal
}

// Repository manages persistence for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	List(ctx context.Context, filter ListFilter) ([]models.Payment, int64, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// Stats counts revenue over currently approved payments. monthStart
	// bounds the monthly revenue window.
	Stats(ctx context.Context, monthStart time.Time) (*StatsRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		First(&payment, "order_id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		First(&payment, "external_payment_id = ?", externalID).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Payment, int64, error) {
	params := pagination.Normalize(filter.Pagination)

	query := r.db.WithContext(ctx).Model(&models.Payment{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Payment
	err := query.
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

func (r *repository) Stats(ctx context.Context, monthStart time.Time) (*StatsRow, error) {
	row := &StatsRow{}

	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Count(&row.TotalPayments).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ?", enums.PaymentStatusApproved).
		Count(&row.ApprovedPayments).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ?", enums.PaymentStatusApproved).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&row.TotalRevenue)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ? AND approved_at >= ?", enums.PaymentStatusApproved, monthStart).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&row.MonthlyRevenue)
	if err != nil {
		return nil, err
	}

	return row, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
