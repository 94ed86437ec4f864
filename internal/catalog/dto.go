package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// ProductDTO is the catalog transport shape.
type ProductDTO struct {
	ID            uuid.UUID       `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	Category      *string         `json:"category,omitempty"`
	ImageURL      *string         `json:"image_url,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateProductDTO holds the fields an admin provides for a new listing.
type CreateProductDTO struct {
	SKU           string          `json:"sku" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Description   *string         `json:"description,omitempty"`
	Category      *string         `json:"category,omitempty"`
	ImageURL      *string         `json:"image_url,omitempty"`
	Price         decimal.Decimal `json:"price" validate:"required"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
}

// UpdateProductDTO carries partial updates. Nil fields are left untouched.
type UpdateProductDTO struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Category   *string
	ActiveOnly bool
	Pagination pagination.Params
}

// ProductPage bundles one page of listings with its metadata.
type ProductPage struct {
	Items []ProductDTO    `json:"items"`
	Page  pagination.Page `json:"page"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:            p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		ImageURL:      p.ImageURL,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromModels(rows []models.Product) []ProductDTO {
	items := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return items
}
