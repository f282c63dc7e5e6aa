package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/shopspring/decimal"
)

// Article is the catalog-level product variant many cartons belong to.
// Carton records freeze a snapshot of the article at generation time, so
// later article edits never rewrite tracking history.
type Article struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	Name            string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Segment         string          `gorm:"size:100" json:"segment"`
	Sku             string          `gorm:"size:100" json:"sku"`
	Colors          string          `gorm:"size:255" json:"colors"`
	Sizes           string          `gorm:"size:255" json:"sizes"`
	ImageUrl        string          `gorm:"size:255" json:"image_url"`
	PiecesPerCarton decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pieces_per_carton"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewArticle struct {
	Name            string          `json:"name" binding:"required"`
	Segment         string          `json:"segment"`
	Sku             string          `json:"sku"`
	Colors          string          `json:"colors"`
	Sizes           string          `json:"sizes"`
	ImageUrl        string          `json:"image_url"`
	PiecesPerCarton decimal.Decimal `json:"pieces_per_carton"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewArticle) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Article](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// sku
	if len(input.Sku) > 0 {
		if err := utils.ValidateUnique[Article](ctx, businessId, "sku", input.Sku, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateArticle(ctx context.Context, input *NewArticle) (*Article, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	article := Article{
		BusinessId:      businessId,
		Name:            input.Name,
		Segment:         input.Segment,
		Sku:             input.Sku,
		Colors:          input.Colors,
		Sizes:           input.Sizes,
		ImageUrl:        input.ImageUrl,
		PiecesPerCarton: input.PiecesPerCarton,
		IsActive:        utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&article).Error
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func UpdateArticle(ctx context.Context, id int, input *NewArticle) (*Article, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	article, err := utils.FetchModel[Article](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&article).Updates(map[string]interface{}{
		"Name":            input.Name,
		"Segment":         input.Segment,
		"Sku":             input.Sku,
		"Colors":          input.Colors,
		"Sizes":           input.Sizes,
		"ImageUrl":        input.ImageUrl,
		"PiecesPerCarton": input.PiecesPerCarton,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Article](id); err != nil {
		return nil, err
	}

	return article, nil
}

func DeleteArticle(ctx context.Context, id int) (*Article, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Article](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if article already has cartons (tracking history must never be orphaned)
	var count int64
	if err := db.WithContext(ctx).Model(&Carton{}).
		Where("article_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("article has cartons")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Article](id); err != nil {
		return nil, err
	}

	return result, nil
}

func GetArticle(ctx context.Context, id int) (*Article, error) {
	return GetResource[Article](ctx, id)
}

func ListArticles(ctx context.Context, name *string) ([]*Article, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Article

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
