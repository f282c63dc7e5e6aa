package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"gorm.io/gorm"
)

// History records operator actions that are not already captured by the carton
// scan trail (batch completion, order placement).
type History struct {
	ID            int               `gorm:"primary_key" json:"id"`
	BusinessId    string            `gorm:"index;not null" json:"business_id"`
	ActionType    HistoryActionType `gorm:"size:20;not null" json:"action_type"`
	Description   string            `gorm:"type:text;not null" json:"description"`
	ReferenceID   int               `gorm:"index" json:"reference_id"`
	ReferenceType string            `gorm:"size:255" json:"reference_type"`
	UserId        int               `gorm:"index" json:"user_id"`
	UserName      string            `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// CreateHistory appends an audit row inside the caller's transaction.
func CreateHistory(tx *gorm.DB, ctx context.Context, businessId string, actionType HistoryActionType, referenceType string, referenceId int, description string) error {
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	history := History{
		BusinessId:    businessId,
		ActionType:    actionType,
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}
	return tx.Create(&history).Error
}
