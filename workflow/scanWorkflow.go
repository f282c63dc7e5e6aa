package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("supplychain-backend/workflow")

// cartonTransitions is the whole lifecycle: forward-only, no skipping, no going
// back. Anything not listed here is rejected as a conflict.
var cartonTransitions = map[models.CartonStatus]models.CartonStatus{
	models.CartonStatusGenerated: models.CartonStatusReceived,
	models.CartonStatusReceived:  models.CartonStatusShipped,
}

func CanTransition(from, to models.CartonStatus) bool {
	next, ok := cartonTransitions[from]
	return ok && next == to
}

type NewScan struct {
	SerialNumber  string `json:"serial_number" binding:"required"`
	TargetStatus  string `json:"target_status" binding:"required"`
	WarehouseId   *int   `json:"warehouse_id"`
	DistributorId *int   `json:"distributor_id"`
	Notes         string `json:"notes"`
}

type ScanResult struct {
	Carton    *models.Carton           `json:"carton"`
	Inventory *models.InventorySummary `json:"inventory,omitempty"`
	Batch     *models.ShipmentBatch    `json:"batch,omitempty"`
}

// ApplyScan advances one carton through the lifecycle and keeps the dependent
// aggregates in step. Two transactions on purpose:
//
//	tx1 locks the carton row, checks the transition and commits the new status
//	     plus the scan history row. Once this commits the scan has happened.
//	tx2 recomputes the inventory/demand aggregates and, for a ship scan, appends
//	     the carton to the distributor's open batch.
//
// If tx2 fails the carton status is NOT rolled back: the physical event already
// occurred. A PENDING resync marker is written instead and the caller gets an
// aggregate-sync-failure error carrying the committed carton.
func ApplyScan(ctx context.Context, input *NewScan) (*ScanResult, error) {
	ctx, span := tracer.Start(ctx, "ApplyScan")
	defer span.End()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	target, err := models.ParseCartonStatus(strings.TrimSpace(input.TargetStatus))
	if err != nil || target == models.CartonStatusGenerated {
		return nil, models.NewInvalidInputError("target status must be Received or Shipped")
	}

	actor, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	var location string
	if target == models.CartonStatusReceived {
		if input.WarehouseId == nil || *input.WarehouseId <= 0 {
			return nil, models.NewInvalidInputError("warehouse id is required for a receive scan")
		}
		warehouse, err := utils.FetchModel[models.Warehouse](ctx, businessId, *input.WarehouseId)
		if err != nil {
			return nil, models.NewInvalidInputError("warehouse not found")
		}
		location = warehouse.Name
	} else {
		if input.DistributorId == nil || *input.DistributorId <= 0 {
			return nil, models.NewInvalidInputError("distributor id is required for a ship scan")
		}
		distributor, err := utils.FetchModel[models.Distributor](ctx, businessId, *input.DistributorId)
		if err != nil {
			return nil, models.NewInvalidInputError("distributor not found")
		}
		location = distributor.Name
	}

	db := config.GetDB()

	// tx1: carton transition
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	carton, err := models.FetchCartonBySerialForUpdate(tx, businessId, input.SerialNumber)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, models.NewNotFoundError("carton not found for serial number")
		}
		return nil, err
	}

	if carton.Status == target {
		tx.Rollback()
		return nil, models.NewConflictError("carton is already at this stage", string(carton.Status))
	}
	if !CanTransition(carton.Status, target) {
		tx.Rollback()
		return nil, models.NewConflictError(
			fmt.Sprintf("carton cannot move from %s to %s", carton.Status, target),
			string(carton.Status))
	}

	updates := map[string]interface{}{"status": target}
	event := models.ScanEventReceived
	switch target {
	case models.CartonStatusReceived:
		updates["received_warehouse_id"] = *input.WarehouseId
		updates["received_by"] = actor
		updates["received_at"] = now
	case models.CartonStatusShipped:
		event = models.ScanEventShipped
		trackingNumber := uuid.NewString()
		updates["distributor_id"] = *input.DistributorId
		updates["tracking_number"] = trackingNumber
		updates["shipped_by"] = actor
		updates["shipped_at"] = now
	}

	if err := tx.Model(&models.Carton{}).Where("id = ?", carton.ID).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// Mirror the committed row onto the locked snapshot. No read happens between
	// tx1 and tx2: once tx1 commits, every path out of this function either runs
	// the aggregate sync or flags the key for resync.
	carton.Status = target
	switch target {
	case models.CartonStatusReceived:
		carton.ReceivedWarehouseId = input.WarehouseId
		carton.ReceivedBy = actor
		carton.ReceivedAt = &now
	case models.CartonStatusShipped:
		carton.DistributorId = input.DistributorId
		carton.TrackingNumber = updates["tracking_number"].(string)
		carton.ShippedBy = actor
		carton.ShippedAt = &now
	}

	scan := models.CartonScan{
		BusinessId: businessId,
		CartonId:   carton.ID,
		Event:      event,
		Actor:      actor,
		Location:   location,
		Notes:      input.Notes,
	}
	if err := tx.Create(&scan).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// tx2: aggregate recomputation. Advisory locks are connection-scoped, so they
	// are acquired and released on the same tx; the row locks taken inside keep
	// the serialization through commit.
	result := &ScanResult{Carton: carton}
	syncErr := func() error {
		syncTx := db.WithContext(ctx).Begin()
		if syncTx.Error != nil {
			return syncTx.Error
		}
		distributorLocked := false
		releaseLocks := func() {
			ReleaseArticlePostingLock(syncTx, businessId, carton.ArticleId)
			if distributorLocked {
				ReleaseDistributorPostingLock(syncTx, businessId, *input.DistributorId)
			}
		}
		if err := AcquireArticlePostingLock(syncTx, businessId, carton.ArticleId); err != nil {
			syncTx.Rollback()
			return err
		}

		summary, err := SyncInventory(syncTx, businessId, carton.ArticleId)
		if err != nil {
			releaseLocks()
			syncTx.Rollback()
			return err
		}
		result.Inventory = summary

		if target == models.CartonStatusShipped {
			if err := AcquireDistributorPostingLock(syncTx, businessId, *input.DistributorId); err != nil {
				releaseLocks()
				syncTx.Rollback()
				return err
			}
			distributorLocked = true

			batch, err := AppendToOpenBatch(syncTx, businessId, carton, *input.DistributorId)
			if err != nil {
				releaseLocks()
				syncTx.Rollback()
				return err
			}
			result.Batch = batch
		}
		releaseLocks()
		return syncTx.Commit().Error
	}()

	if syncErr != nil {
		logger := config.GetLogger()
		config.LogError(logger, "scanWorkflow.go", "ApplyScan", "aggregate sync failed after carton transition", input.SerialNumber, syncErr)

		if err := models.MarkAggregateForResync(db.WithContext(ctx), businessId,
			models.AggregateTypeInventory, carton.ArticleId, syncErr.Error()); err != nil {
			config.LogError(logger, "scanWorkflow.go", "ApplyScan", "record inventory resync marker", carton.ArticleId, err)
		}
		if target == models.CartonStatusShipped {
			if err := models.MarkAggregateForResync(db.WithContext(ctx), businessId,
				models.AggregateTypeBatch, carton.ArticleId, syncErr.Error()); err != nil {
				config.LogError(logger, "scanWorkflow.go", "ApplyScan", "record batch resync marker", carton.ArticleId, err)
			}
		}

		trackErr := models.NewAggregateSyncFailure(
			"carton status was recorded but aggregate sync failed; a resync is pending", syncErr.Error())
		return result, trackErr
	}

	return result, nil
}
