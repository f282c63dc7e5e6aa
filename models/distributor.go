package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
)

type Distributor struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Region     string    `gorm:"size:100" json:"region"`
	Address    string    `gorm:"type:text" json:"address"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDistributor struct {
	Name    string `json:"name" binding:"required"`
	Region  string `json:"region"`
	Address string `json:"address"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewDistributor) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Distributor](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateDistributor(ctx context.Context, input *NewDistributor) (*Distributor, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	distributor := Distributor{
		BusinessId: businessId,
		Name:       input.Name,
		Region:     input.Region,
		Address:    input.Address,
		IsActive:   utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&distributor).Error
	if err != nil {
		return nil, err
	}
	return &distributor, nil
}

func UpdateDistributor(ctx context.Context, id int, input *NewDistributor) (*Distributor, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	distributor, err := utils.FetchModel[Distributor](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&distributor).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Region":  input.Region,
		"Address": input.Address,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Distributor](id); err != nil {
		return nil, err
	}

	return distributor, nil
}

func DeleteDistributor(ctx context.Context, id int) (*Distributor, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Distributor](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if distributor has shipment batches
	var count int64
	if err := db.WithContext(ctx).Model(&ShipmentBatch{}).
		Where("distributor_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("distributor has shipment batches")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetDistributor(ctx context.Context, id int) (*Distributor, error) {
	return GetResource[Distributor](ctx, id)
}

func ListDistributors(ctx context.Context, name *string) ([]*Distributor, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Distributor

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
