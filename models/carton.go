package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Carton is the canonical per-unit record: one row per physical carton, created in
// bulk at generation time and never deleted. Status only ever advances
// Generated -> Received -> Shipped; the scan workflow is the only writer of status.
// Article fields are frozen at generation time on purpose: catalog edits must not
// rewrite what was printed on a carton already in the field.
type Carton struct {
	ID           int          `gorm:"primary_key" json:"id"`
	BusinessId   string       `gorm:"size:64;not null;index:uniq_carton_serial,unique" json:"business_id"`
	SerialNumber string       `gorm:"size:64;not null;index:uniq_carton_serial,unique" json:"serial_number"`
	ArticleId    int          `gorm:"index;not null" json:"article_id"`
	ArticleName  string       `gorm:"size:100;not null" json:"article_name"`
	Segment      string       `gorm:"size:100" json:"segment"`
	ImageUrl     string       `gorm:"size:255" json:"image_url"`
	Status       CartonStatus `gorm:"type:enum('Generated','Received','Shipped');default:Generated;index" json:"status"`

	// received stage metadata
	ReceivedWarehouseId *int       `gorm:"index" json:"received_warehouse_id"`
	ReceivedBy          string     `gorm:"size:100" json:"received_by"`
	ReceivedAt          *time.Time `json:"received_at"`

	// shipped stage metadata
	DistributorId   *int       `gorm:"index" json:"distributor_id"`
	ShipmentBatchId *int       `gorm:"index" json:"shipment_batch_id"`
	TrackingNumber  string     `gorm:"size:100" json:"tracking_number"`
	ShippedBy       string     `gorm:"size:100" json:"shipped_by"`
	ShippedAt       *time.Time `json:"shipped_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Scans []CartonScan `gorm:"foreignKey:CartonId" json:"scans,omitempty"`
}

// CartonScan is one entry of the append-only scan history. Rows are written once
// and never mutated afterwards.
type CartonScan struct {
	ID         int           `gorm:"primary_key" json:"id"`
	BusinessId string        `gorm:"size:64;index;not null" json:"business_id"`
	CartonId   int           `gorm:"index;not null" json:"carton_id"`
	Event      ScanEventType `gorm:"type:enum('GENERATED','RECEIVED','SHIPPED');not null" json:"event"`
	Actor      string        `gorm:"size:100" json:"actor"`
	Location   string        `gorm:"size:100" json:"location"`
	Notes      string        `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
}

type NewCartonGeneration struct {
	ArticleId int `json:"article_id" binding:"required"`
	Quantity  int `json:"quantity" binding:"required,gt=0"`
}

// GenerateCartons bulk-creates Generated cartons for an article (production ingress).
// The article snapshot is frozen onto each carton and a GENERATED scan row is
// appended per carton.
func GenerateCartons(ctx context.Context, input *NewCartonGeneration) ([]*Carton, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	article, err := utils.FetchModel[Article](ctx, businessId, input.ArticleId)
	if err != nil {
		return nil, errors.New("article not found")
	}

	actor, _ := utils.GetUserNameFromContext(ctx)

	cartons := make([]*Carton, 0, input.Quantity)
	for i := 0; i < input.Quantity; i++ {
		cartons = append(cartons, &Carton{
			BusinessId:   businessId,
			SerialNumber: uuid.NewString(),
			ArticleId:    article.ID,
			ArticleName:  article.Name,
			Segment:      article.Segment,
			ImageUrl:     article.ImageUrl,
			Status:       CartonStatusGenerated,
		})
	}

	// db action
	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&cartons).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	scans := make([]*CartonScan, 0, len(cartons))
	for _, carton := range cartons {
		scans = append(scans, &CartonScan{
			BusinessId: businessId,
			CartonId:   carton.ID,
			Event:      ScanEventGenerated,
			Actor:      actor,
			Notes:      "generated",
		})
	}
	if err := tx.WithContext(ctx).Create(&scans).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return cartons, tx.Commit().Error
}

func GetCarton(ctx context.Context, id int) (*Carton, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Carton](ctx, businessId, id)
}

func GetCartonBySerial(ctx context.Context, serialNumber string) (*Carton, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var carton Carton
	err := db.WithContext(ctx).
		Where("business_id = ? AND serial_number = ?", businessId, strings.TrimSpace(serialNumber)).
		First(&carton).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &carton, nil
}

// FetchCartonBySerialForUpdate locks the carton row for the scan transaction.
// Must run inside tx; the row lock is what makes duplicate concurrent scans of the
// same carton resolve into exactly one applied transition plus one conflict.
func FetchCartonBySerialForUpdate(tx *gorm.DB, businessId string, serialNumber string) (*Carton, error) {
	var carton Carton
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND serial_number = ?", businessId, strings.TrimSpace(serialNumber)).
		First(&carton).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &carton, nil
}

func ListCartons(ctx context.Context, articleId *int, status *CartonStatus) ([]*Carton, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Carton

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if articleId != nil && *articleId > 0 {
		dbCtx = dbCtx.Where("article_id = ?", *articleId)
	}
	if status != nil && status.Valid() {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	err := dbCtx.Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListCartonScans returns the scan history in arrival (append) order.
func ListCartonScans(ctx context.Context, cartonId int) ([]*CartonScan, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[Carton](ctx, businessId, cartonId); err != nil {
		return nil, errors.New("carton not found")
	}

	db := config.GetDB()
	var results []*CartonScan
	err := db.WithContext(ctx).
		Where("business_id = ? AND carton_id = ?", businessId, cartonId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CountCartonsByStatus re-derives per-article counts from carton rows: cartons at
// Received or Shipped have passed through receiving; cartons at Shipped have left.
// These are cumulative pass-through counts, not current-location counts.
func CountCartonsByStatus(tx *gorm.DB, businessId string, articleId int) (received int64, shipped int64, err error) {
	if err = tx.Model(&Carton{}).
		Where("business_id = ? AND article_id = ? AND status IN ?", businessId, articleId,
			[]CartonStatus{CartonStatusReceived, CartonStatusShipped}).
		Count(&received).Error; err != nil {
		return 0, 0, err
	}
	if err = tx.Model(&Carton{}).
		Where("business_id = ? AND article_id = ? AND status = ?", businessId, articleId, CartonStatusShipped).
		Count(&shipped).Error; err != nil {
		return 0, 0, err
	}
	return received, shipped, nil
}
