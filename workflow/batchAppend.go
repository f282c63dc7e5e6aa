package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendToOpenBatch puts a shipped carton into the distributor's open batch,
// creating the batch if none is open. Total is recounted from the item rows
// afterwards, so replaying an append converges instead of double counting.
// Must run inside tx while holding the distributor posting lock.
func AppendToOpenBatch(tx *gorm.DB, businessId string, carton *models.Carton, distributorId int) (*models.ShipmentBatch, error) {

	batch, err := models.FetchOpenBatchForUpdate(tx, businessId, distributorId)
	if err != nil {
		if !errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, err
		}
		batch = &models.ShipmentBatch{
			BusinessId:    businessId,
			BatchNumber:   uuid.NewString(),
			DistributorId: distributorId,
			Status:        models.BatchStatusOpen,
		}
		if err := tx.Create(batch).Error; err != nil {
			return nil, err
		}
	}

	// already appended? the resync sweep may retry a carton that made it in
	var existing int64
	if err := tx.Model(&models.ShipmentBatchItem{}).
		Where("business_id = ? AND shipment_batch_id = ? AND carton_id = ?", businessId, batch.ID, carton.ID).
		Count(&existing).Error; err != nil {
		return nil, err
	}

	if existing == 0 {
		seq, err := models.NextBatchSequenceNo(tx, businessId, batch.ID)
		if err != nil {
			return nil, err
		}

		var article models.Article
		if err := tx.Where("business_id = ? AND id = ?", businessId, carton.ArticleId).
			First(&article).Error; err != nil {
			return nil, err
		}

		item := models.ShipmentBatchItem{
			BusinessId:      businessId,
			ShipmentBatchId: batch.ID,
			SequenceNo:      seq,
			CartonId:        carton.ID,
			ArticleId:       carton.ArticleId,
			ArticleName:     carton.ArticleName,
			Colors:          article.Colors,
			Sizes:           article.Sizes,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, err
		}
	}

	total, err := models.RecountBatchTotal(tx, businessId, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.TotalCartons = total

	if err := tx.Model(&models.Carton{}).
		Where("id = ?", carton.ID).
		UpdateColumn("shipment_batch_id", batch.ID).Error; err != nil {
		return nil, err
	}
	carton.ShipmentBatchId = &batch.ID

	return batch, nil
}

// CompleteShipmentBatch closes an open batch. A completed batch is terminal:
// later ship scans for the distributor open a fresh batch instead.
func CompleteShipmentBatch(ctx context.Context, id int) (*models.ShipmentBatch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	completedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var batch models.ShipmentBatch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		First(&batch).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("shipment batch not found")
		}
		return nil, err
	}

	if batch.Status == models.BatchStatusCompleted {
		tx.Rollback()
		return nil, models.NewConflictError("shipment batch is already completed", batch.BatchNumber)
	}

	if err := tx.Model(&models.ShipmentBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"status":       models.BatchStatusCompleted,
			"completed_by": completedBy,
			"completed_at": now,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	batch.Status = models.BatchStatusCompleted
	batch.CompletedBy = completedBy
	batch.CompletedAt = &now

	description := fmt.Sprintf("Shipment batch %s completed with %d carton(s).", batch.BatchNumber, batch.TotalCartons)
	if err := models.CreateHistory(tx, ctx, businessId, models.HistoryActionComplete, "shipment_batches", batch.ID, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &batch, nil
}
