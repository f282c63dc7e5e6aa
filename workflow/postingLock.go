package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireArticlePostingLock serializes aggregate recomputation per article across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB
// that will do the recomputation transaction.
func AcquireArticlePostingLock(tx *gorm.DB, businessId string, articleId int) error {
	lockName := fmt.Sprintf("invsync:%s:%d", businessId, articleId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire article posting lock for business_id=%s article_id=%d", businessId, articleId)
	}
	return nil
}

func ReleaseArticlePostingLock(tx *gorm.DB, businessId string, articleId int) {
	lockName := fmt.Sprintf("invsync:%s:%d", businessId, articleId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// AcquireDistributorPostingLock serializes batch append/complete per distributor.
// Same connection-scoping rule as the article lock.
func AcquireDistributorPostingLock(tx *gorm.DB, businessId string, distributorId int) error {
	lockName := fmt.Sprintf("batch:%s:%d", businessId, distributorId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire distributor posting lock for business_id=%s distributor_id=%d", businessId, distributorId)
	}
	return nil
}

func ReleaseDistributorPostingLock(tx *gorm.DB, businessId string, distributorId int) {
	lockName := fmt.Sprintf("batch:%s:%d", businessId, distributorId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
