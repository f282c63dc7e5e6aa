package workflow

import (
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SyncInventory recomputes the article's inventory aggregate from the carton rows
// (source of truth), rather than applying increments. Calling it twice for the same
// carton event yields the same aggregate state, which is what lets a failed or
// replayed sync heal itself on the next write.
//
// Must run inside tx while holding the article posting lock; the summary row is
// additionally locked FOR UPDATE so concurrent syncs on the same article serialize.
// Also pushes the new available quantity into the demand aggregate.
func SyncInventory(tx *gorm.DB, businessId string, articleId int) (*models.InventorySummary, error) {

	summary, _, err := models.FirstOrCreateInventorySummary(tx, businessId, articleId)
	if err != nil {
		return nil, err
	}

	receivedCount, shippedCount, err := models.CountCartonsByStatus(tx, businessId, articleId)
	if err != nil {
		return nil, err
	}

	received := decimal.NewFromInt(receivedCount)
	shipped := decimal.NewFromInt(shippedCount)
	available := received.Sub(shipped)

	if err := tx.Model(&models.InventorySummary{}).
		Where("id = ?", summary.ID).
		Updates(map[string]interface{}{
			"received_qty":  received,
			"shipped_qty":   shipped,
			"available_qty": available,
		}).Error; err != nil {
		return nil, err
	}
	summary.ReceivedQty = received
	summary.ShippedQty = shipped
	summary.AvailableQty = available

	// a successful recomputation heals any pending inventory resync for the key
	if err := models.ResolveAggregateResync(tx, businessId, models.AggregateTypeInventory, articleId); err != nil {
		return nil, err
	}

	if err := ApplyStockChange(tx, businessId, articleId, available); err != nil {
		return nil, err
	}

	return summary, nil
}
