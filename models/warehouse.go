package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
)

type Warehouse struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Address    string    `gorm:"type:text" json:"address"`
	City       string    `gorm:"size:100"  json:"city"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	City    string `json:"city"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewWarehouse) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Warehouse](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	warehouse := Warehouse{
		BusinessId: businessId,
		Name:       input.Name,
		Address:    input.Address,
		City:       input.City,
		IsActive:   utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&warehouse).Error
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func UpdateWarehouse(ctx context.Context, id int, input *NewWarehouse) (*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	warehouse, err := utils.FetchModel[Warehouse](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&warehouse).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Address": input.Address,
		"City":    input.City,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Warehouse](id); err != nil {
		return nil, err
	}

	return warehouse, nil
}

func DeleteWarehouse(ctx context.Context, id int) (*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Warehouse](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if warehouse has received cartons
	var count int64
	if err := db.WithContext(ctx).Model(&Carton{}).
		Where("received_warehouse_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("warehouse has received cartons")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetWarehouse(ctx context.Context, id int) (*Warehouse, error) {
	return GetResource[Warehouse](ctx, id)
}

func ListWarehouses(ctx context.Context, name *string) ([]*Warehouse, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Warehouse

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
