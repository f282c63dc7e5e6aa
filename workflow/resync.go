package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"gorm.io/gorm"
)

const resyncSweepLimit = 100

// ProcessPendingResyncs heals aggregates that were left behind by a failed sync:
// it replays the same recomputation the original write would have done, under the
// same locks. Safe to run repeatedly and concurrently with live scans because
// every step recomputes from the carton rows instead of applying deltas.
// Markers that fail again simply stay PENDING for the next sweep.
func ProcessPendingResyncs(ctx context.Context) (healed int, err error) {

	// the sweep spans businesses; marker/carton queries carry explicit business ids
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	db := config.GetDB()
	logger := config.GetLogger()

	markers, err := models.ListPendingResyncs(db.WithContext(ctx), resyncSweepLimit)
	if err != nil {
		return 0, err
	}

	for _, marker := range markers {
		var markerErr error
		switch marker.AggregateType {
		case models.AggregateTypeInventory, models.AggregateTypeDemand:
			markerErr = resyncInventory(ctx, db, marker)
		case models.AggregateTypeBatch:
			markerErr = resyncBatch(ctx, db, marker)
		}
		if markerErr != nil {
			config.LogError(logger, "resync.go", "ProcessPendingResyncs", "could not heal aggregate", marker.ID, markerErr)
			continue
		}
		healed++
	}
	return healed, nil
}

// resyncInventory re-runs the recomputation; SyncInventory resolves both the
// inventory and demand markers for the key on success.
func resyncInventory(ctx context.Context, db *gorm.DB, marker *models.AggregateResync) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := AcquireArticlePostingLock(tx, marker.BusinessId, marker.ArticleId); err != nil {
		tx.Rollback()
		return err
	}
	release := func() { ReleaseArticlePostingLock(tx, marker.BusinessId, marker.ArticleId) }

	if _, err := SyncInventory(tx, marker.BusinessId, marker.ArticleId); err != nil {
		release()
		tx.Rollback()
		return err
	}
	if err := models.ResolveAggregateResync(tx, marker.BusinessId, marker.AggregateType, marker.ArticleId); err != nil {
		release()
		tx.Rollback()
		return err
	}
	release()
	return tx.Commit().Error
}

// resyncBatch re-appends shipped cartons that never made it into a batch: shipped
// status with no shipment_batch_id is exactly the state a failed tx2 leaves behind.
func resyncBatch(ctx context.Context, db *gorm.DB, marker *models.AggregateResync) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	var strays []*models.Carton
	if err := tx.Where(
		"business_id = ? AND article_id = ? AND status = ? AND shipment_batch_id IS NULL AND distributor_id IS NOT NULL",
		marker.BusinessId, marker.ArticleId, models.CartonStatusShipped).
		Order("id").
		Find(&strays).Error; err != nil {
		tx.Rollback()
		return err
	}

	lockedDistributors := make(map[int]bool)
	releaseLocks := func() {
		for distributorId := range lockedDistributors {
			ReleaseDistributorPostingLock(tx, marker.BusinessId, distributorId)
		}
	}

	for _, carton := range strays {
		distributorId := *carton.DistributorId
		if !lockedDistributors[distributorId] {
			if err := AcquireDistributorPostingLock(tx, marker.BusinessId, distributorId); err != nil {
				releaseLocks()
				tx.Rollback()
				return err
			}
			lockedDistributors[distributorId] = true
		}
		if _, err := AppendToOpenBatch(tx, marker.BusinessId, carton, distributorId); err != nil {
			releaseLocks()
			tx.Rollback()
			return err
		}
	}

	if err := models.ResolveAggregateResync(tx, marker.BusinessId, models.AggregateTypeBatch, marker.ArticleId); err != nil {
		releaseLocks()
		tx.Rollback()
		return err
	}
	releaseLocks()
	return tx.Commit().Error
}
