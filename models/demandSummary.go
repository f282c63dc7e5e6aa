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

// DemandSummary is the per-article demand aggregate. TotalOrdered is a true
// accumulator (each order applied exactly once); AvailableStock mirrors the
// inventory aggregate's AvailableQty; Demand is never set directly, it is always
// re-derived via ComputeDemand on every write to either input.
type DemandSummary struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;index:uniq_demand_article,unique" json:"business_id"`
	ArticleId      int             `gorm:"not null;index:uniq_demand_article,unique" json:"article_id"`
	TotalOrdered   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_ordered"`
	AvailableStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_stock"`
	Demand         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"demand"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeDemand returns max(0, totalOrdered - availableStock).
func ComputeDemand(totalOrdered, availableStock decimal.Decimal) decimal.Decimal {
	demand := totalOrdered.Sub(availableStock)
	if demand.IsNegative() {
		return decimal.Zero
	}
	return demand
}

// FirstOrCreateDemandSummary locks (or lazily creates) the demand row for the
// article. Must run inside tx.
func FirstOrCreateDemandSummary(tx *gorm.DB, businessId string, articleId int) (*DemandSummary, bool, error) {
	isNew := false
	summary := DemandSummary{
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

func GetDemandSummary(ctx context.Context, articleId int) (*DemandSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var summary DemandSummary
	err := db.WithContext(ctx).
		Where("business_id = ? AND article_id = ?", businessId, articleId).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &DemandSummary{
				BusinessId:     businessId,
				ArticleId:      articleId,
				TotalOrdered:   decimal.Zero,
				AvailableStock: decimal.Zero,
				Demand:         decimal.Zero,
			}, nil
		}
		return nil, err
	}
	return &summary, nil
}

func ListDemandSummaries(ctx context.Context) ([]*DemandSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*DemandSummary
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("article_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
