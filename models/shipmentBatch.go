package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShipmentBatch groups cartons shipped to one distributor. At most one Open
// batch exists per (business, distributor) at any time: lookups only ever match
// Open batches, so a Completed batch can never be resurrected by an append.
type ShipmentBatch struct {
	ID            int         `gorm:"primary_key" json:"id"`
	BusinessId    string      `gorm:"size:64;index;not null" json:"business_id"`
	BatchNumber   string      `gorm:"size:64;not null;index" json:"batch_number"`
	DistributorId int         `gorm:"index;not null" json:"distributor_id"`
	Status        BatchStatus `gorm:"type:enum('Open','Completed');default:Open;index" json:"status"`
	TotalCartons  int         `gorm:"default:0" json:"total_cartons"`
	CompletedBy   string      `gorm:"size:100" json:"completed_by"`
	CompletedAt   *time.Time  `json:"completed_at"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Items []ShipmentBatchItem `gorm:"foreignKey:ShipmentBatchId" json:"items,omitempty"`
}

// ShipmentBatchItem is one carton inside a batch, with a per-item snapshot of the
// article data so the packing list survives later catalog edits. SequenceNo is
// the carton-in-sequence number: items order by append (arrival) order.
type ShipmentBatchItem struct {
	ID              int       `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"size:64;index;not null" json:"business_id"`
	ShipmentBatchId int       `gorm:"not null;index:uniq_batch_seq,unique" json:"shipment_batch_id"`
	SequenceNo      int       `gorm:"not null;index:uniq_batch_seq,unique" json:"sequence_no"`
	CartonId        int       `gorm:"index;not null" json:"carton_id"`
	ArticleId       int       `gorm:"index;not null" json:"article_id"`
	ArticleName     string    `gorm:"size:100;not null" json:"article_name"`
	Colors          string    `gorm:"size:255" json:"colors"`
	Sizes           string    `gorm:"size:255" json:"sizes"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FetchOpenBatchForUpdate returns the distributor's Open batch locked for the
// append transaction, or RecordNotFound if none is open. Completed batches are
// never matched.
func FetchOpenBatchForUpdate(tx *gorm.DB, businessId string, distributorId int) (*ShipmentBatch, error) {
	var batch ShipmentBatch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND distributor_id = ? AND status = ?", businessId, distributorId, BatchStatusOpen).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// NextBatchSequenceNo returns the next carton-in-sequence number for the batch.
// Must run inside tx while the batch row is locked.
func NextBatchSequenceNo(tx *gorm.DB, businessId string, batchId int) (int, error) {
	var maxSeq *int
	err := tx.Model(&ShipmentBatchItem{}).
		Select("max(sequence_no)").
		Where("business_id = ? AND shipment_batch_id = ?", businessId, batchId).
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 1, nil
	}
	return *maxSeq + 1, nil
}

// RecountBatchTotal re-derives total_cartons from the item rows (recompute, not
// increment) and writes it back. Must run inside tx while the batch row is locked.
func RecountBatchTotal(tx *gorm.DB, businessId string, batchId int) (int, error) {
	var count int64
	if err := tx.Model(&ShipmentBatchItem{}).
		Where("business_id = ? AND shipment_batch_id = ?", businessId, batchId).
		Count(&count).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&ShipmentBatch{}).
		Where("business_id = ? AND id = ?", businessId, batchId).
		UpdateColumn("total_cartons", count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func GetShipmentBatch(ctx context.Context, id int) (*ShipmentBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ShipmentBatch](ctx, businessId, id, "Items")
}

func ListShipmentBatches(ctx context.Context, distributorId *int, status *BatchStatus) ([]*ShipmentBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*ShipmentBatch

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if distributorId != nil && *distributorId > 0 {
		dbCtx = dbCtx.Where("distributor_id = ?", *distributorId)
	}
	if status != nil && (*status == BatchStatusOpen || *status == BatchStatusCompleted) {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	err := dbCtx.Order("id DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListShipmentBatchItems returns items in append order.
func ListShipmentBatchItems(ctx context.Context, batchId int) ([]*ShipmentBatchItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[ShipmentBatch](ctx, businessId, batchId); err != nil {
		return nil, errors.New("shipment batch not found")
	}

	db := config.GetDB()
	var results []*ShipmentBatchItem
	err := db.WithContext(ctx).
		Where("business_id = ? AND shipment_batch_id = ?", businessId, batchId).
		Order("sequence_no").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
