package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DistributorOrder is the durable record of an order placed by a distributor.
// Orders never mutate inventory; each line item feeds the demand aggregate
// exactly once (guarded by the order number idempotency key).
type DistributorOrder struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"size:64;not null;index:uniq_order_number,unique" json:"business_id"`
	OrderNumber   string    `gorm:"size:64;not null;index:uniq_order_number,unique" json:"order_number"`
	DistributorId int       `gorm:"index;not null" json:"distributor_id"`
	OrderDate     time.Time `gorm:"not null" json:"order_date"`
	PlacedBy      string    `gorm:"size:100" json:"placed_by"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Details []DistributorOrderDetail `gorm:"foreignKey:OrderId" json:"details,omitempty"`
}

type DistributorOrderDetail struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;index;not null" json:"business_id"`
	OrderId    int             `gorm:"index;not null" json:"order_id"`
	ArticleId  int             `gorm:"index;not null" json:"article_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewOrderDetail struct {
	ArticleId int             `json:"article_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
}

type NewOrder struct {
	DistributorId int              `json:"distributor_id" binding:"required"`
	OrderNumber   string           `json:"order_number"`
	Details       []NewOrderDetail `json:"details" binding:"required,dive"`
}

func (input *NewOrder) Validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Distributor](ctx, businessId, input.DistributorId); err != nil {
		return errors.New("distributor not found")
	}
	if len(input.Details) == 0 {
		return errors.New("order has no line items")
	}
	for _, detail := range input.Details {
		if detail.Qty.LessThanOrEqual(decimal.Zero) {
			return errors.New("order qty must be positive")
		}
		if err := utils.ValidateResourceId[Article](ctx, businessId, detail.ArticleId); err != nil {
			return errors.New("article not found")
		}
	}
	return nil
}

// InsertDistributorOrder persists the order header + details. Must run inside tx;
// the unique (business_id, order_number) index rejects replays of the same order.
func InsertDistributorOrder(tx *gorm.DB, businessId string, placedBy string, input *NewOrder) (*DistributorOrder, error) {
	order := DistributorOrder{
		BusinessId:    businessId,
		OrderNumber:   input.OrderNumber,
		DistributorId: input.DistributorId,
		OrderDate:     time.Now().UTC(),
		PlacedBy:      placedBy,
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}

	details := make([]*DistributorOrderDetail, 0, len(input.Details))
	for _, detail := range input.Details {
		details = append(details, &DistributorOrderDetail{
			BusinessId: businessId,
			OrderId:    order.ID,
			ArticleId:  detail.ArticleId,
			Qty:        detail.Qty,
		})
	}
	if err := tx.Create(&details).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetDistributorOrder(ctx context.Context, id int) (*DistributorOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[DistributorOrder](ctx, businessId, id, "Details")
}

func ListDistributorOrders(ctx context.Context, distributorId *int) ([]*DistributorOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*DistributorOrder

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if distributorId != nil && *distributorId > 0 {
		dbCtx = dbCtx.Where("distributor_id = ?", *distributorId)
	}
	err := dbCtx.Preload("Details").Order("id DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
