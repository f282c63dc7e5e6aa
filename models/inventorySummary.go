package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventorySummary is the per-article inventory aggregate, one row per
// (business, article). ReceivedQty/ShippedQty are cumulative pass-through counts
// derived from carton statuses (a Shipped carton still counts in ReceivedQty);
// AvailableQty = ReceivedQty - ShippedQty and never goes negative.
// Rows are always rewritten by full recomputation from carton rows, never by
// incremental deltas, so the sync is idempotent and survives partial failures.
type InventorySummary struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;not null;index:uniq_inventory_article,unique" json:"business_id"`
	ArticleId    int             `gorm:"not null;index:uniq_inventory_article,unique" json:"article_id"`
	ReceivedQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	ShippedQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipped_qty"`
	AvailableQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_qty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateInventorySummary locks (or lazily creates) the aggregate row for
// the article. Must run inside tx; the FOR UPDATE lock is the per-article
// serialization point for concurrent syncs.
func FirstOrCreateInventorySummary(tx *gorm.DB, businessId string, articleId int) (*InventorySummary, bool, error) {
	isNew := false
	summary := InventorySummary{
		BusinessId: businessId,
		ArticleId:  articleId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND article_id = ?", businessId, articleId).
		FirstOrCreate(&summary)
	if result.Error != nil {
		return nil, isNew, result.Error
	}
	if result.RowsAffected == 1 {
		isNew = true
	}
	return &summary, isNew, nil
}

func GetInventorySummary(ctx context.Context, articleId int) (*InventorySummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var summary InventorySummary
	err := db.WithContext(ctx).
		Where("business_id = ? AND article_id = ?", businessId, articleId).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// article has never been received; report zeros rather than an error
			return &InventorySummary{
				BusinessId:   businessId,
				ArticleId:    articleId,
				ReceivedQty:  decimal.Zero,
				ShippedQty:   decimal.Zero,
				AvailableQty: decimal.Zero,
			}, nil
		}
		return nil, err
	}
	return &summary, nil
}

func ListInventorySummaries(ctx context.Context) ([]*InventorySummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*InventorySummary
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("article_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
