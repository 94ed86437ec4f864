package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// PaymentDTO is the payment transport shape.
type PaymentDTO struct {
	ID                uuid.UUID           `json:"id"`
	OrderID           uuid.UUID           `json:"order_id"`
	Status            enums.PaymentStatus `json:"status"`
	Method            enums.PaymentMethod `json:"method"`
	Amount            decimal.Decimal     `json:"amount"`
	ExternalPaymentID *string             `json:"external_payment_id,omitempty"`
	PreferenceID      *string             `json:"preference_id,omitempty"`
	InitPoint         *string             `json:"init_point,omitempty"`
	StatusDetail      *string             `json:"status_detail,omitempty"`
	PayerEmail        *string             `json:"payer_email,omitempty"`
	ApprovedAt        *time.Time          `json:"approved_at,omitempty"`
	RejectedAt        *time.Time          `json:"rejected_at,omitempty"`
	RefundedAt        *time.Time          `json:"refunded_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ListFilter narrows admin payment listings.
type ListFilter struct {
	Status     *enums.PaymentStatus
	Pagination pagination.Params
}

// PaymentPage bundles one page of payments with its metadata.
type PaymentPage struct {
	Items []PaymentDTO    `json:"items"`
	Page  pagination.Page `json:"page"`
}

// StatsDTO summarizes payment activity for the admin dashboard.
type StatsDTO struct {
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	MonthlyRevenue   decimal.Decimal `json:"monthly_revenue"`
	TotalPayments    int64           `json:"total_payments"`
	ApprovedPayments int64           `json:"approved_payments"`
	ApprovalRate     float64         `json:"approval_rate"`
}

func FromModel(p *models.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:                p.ID,
		OrderID:           p.OrderID,
		Status:            p.Status,
		Method:            p.Method,
		Amount:            p.Amount,
		ExternalPaymentID: p.ExternalPaymentID,
		PreferenceID:      p.PreferenceID,
		InitPoint:         p.InitPoint,
		StatusDetail:      p.StatusDetail,
		PayerEmail:        p.PayerEmail,
		ApprovedAt:        p.ApprovedAt,
		RejectedAt:        p.RejectedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func fromModels(rows []models.Payment) []PaymentDTO {
	items := make([]PaymentDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return items
}
