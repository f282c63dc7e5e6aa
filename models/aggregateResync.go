package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregateResync is a durable marker written when a carton status committed but a
// dependent aggregate recomputation failed. The carton status is never rolled back
// to hide such a failure; instead the affected aggregate key stays flagged PENDING
// until the next successful write to that key or the resync sweep heals it.
type AggregateResync struct {
	ID            int           `gorm:"primary_key" json:"id"`
	BusinessId    string        `gorm:"size:64;not null;index:uniq_resync_key,unique" json:"business_id"`
	AggregateType AggregateType `gorm:"type:enum('INVENTORY','DEMAND','BATCH');not null;index:uniq_resync_key,unique" json:"aggregate_type"`
	ArticleId     int           `gorm:"not null;index:uniq_resync_key,unique" json:"article_id"`
	Reason        string        `gorm:"type:text" json:"reason"`
	Status        ResyncStatus  `gorm:"type:enum('PENDING','DONE');default:PENDING;index" json:"status"`
	ResolvedAt    *time.Time    `json:"resolved_at"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkAggregateForResync upserts a PENDING marker for the aggregate key. Runs on
// its own connection (not the failed tx) so the marker survives the rollback.
func MarkAggregateForResync(db *gorm.DB, businessId string, aggregateType AggregateType, articleId int, reason string) error {
	marker := AggregateResync{
		BusinessId:    businessId,
		AggregateType: aggregateType,
		ArticleId:     articleId,
		Reason:        reason,
		Status:        ResyncStatusPending,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "business_id"}, {Name: "aggregate_type"}, {Name: "article_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"reason":      reason,
			"status":      ResyncStatusPending,
			"resolved_at": nil,
		}),
	}).Create(&marker).Error
}

// ResolveAggregateResync marks any PENDING marker for the key as DONE. Must run
// inside the same tx as the successful recomputation.
func ResolveAggregateResync(tx *gorm.DB, businessId string, aggregateType AggregateType, articleId int) error {
	now := time.Now().UTC()
	return tx.Model(&AggregateResync{}).
		Where("business_id = ? AND aggregate_type = ? AND article_id = ? AND status = ?",
			businessId, aggregateType, articleId, ResyncStatusPending).
		Updates(map[string]interface{}{
			"status":      ResyncStatusDone,
			"resolved_at": now,
		}).Error
}

// ListPendingResyncs returns all PENDING markers across businesses (internal sweep).
func ListPendingResyncs(db *gorm.DB, limit int) ([]*AggregateResync, error) {
	var results []*AggregateResync
	dbCtx := db.Where("status = ?", ResyncStatusPending).Order("id")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
