package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const orderDemandHandler = "demand_order_apply"

// ApplyOrderPlaced accumulates the ordered quantity onto the article's demand row
// and re-derives demand. TotalOrdered is a true accumulator: the caller guarantees
// each order is applied exactly once (PlaceOrder's order-number uniqueness +
// idempotency key). Must run inside tx while holding the article posting lock.
func ApplyOrderPlaced(tx *gorm.DB, businessId string, articleId int, qty decimal.Decimal) (*models.DemandSummary, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("order qty must be positive")
	}

	summary, _, err := models.FirstOrCreateDemandSummary(tx, businessId, articleId)
	if err != nil {
		return nil, err
	}

	totalOrdered := summary.TotalOrdered.Add(qty)
	demand := models.ComputeDemand(totalOrdered, summary.AvailableStock)

	if err := tx.Model(&models.DemandSummary{}).
		Where("id = ?", summary.ID).
		Updates(map[string]interface{}{
			"total_ordered": totalOrdered,
			"demand":        demand,
		}).Error; err != nil {
		return nil, err
	}
	summary.TotalOrdered = totalOrdered
	summary.Demand = demand
	return summary, nil
}

// ApplyStockChange overwrites the mirrored available stock and re-derives demand.
// Idempotent; must run inside tx while holding the article posting lock.
func ApplyStockChange(tx *gorm.DB, businessId string, articleId int, available decimal.Decimal) error {
	summary, _, err := models.FirstOrCreateDemandSummary(tx, businessId, articleId)
	if err != nil {
		return err
	}

	demand := models.ComputeDemand(summary.TotalOrdered, available)

	if err := tx.Model(&models.DemandSummary{}).
		Where("id = ?", summary.ID).
		Updates(map[string]interface{}{
			"available_stock": available,
			"demand":          demand,
		}).Error; err != nil {
		return err
	}

	return models.ResolveAggregateResync(tx, businessId, models.AggregateTypeDemand, articleId)
}

// PlaceOrder records a distributor order and feeds each line item into the demand
// aggregate exactly once. Orders never mutate inventory.
func PlaceOrder(ctx context.Context, input *models.NewOrder) (*models.DistributorOrder, []*models.DemandSummary, error) {
	ctx, span := tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}

	if err := input.Validate(ctx, businessId); err != nil {
		return nil, nil, models.NewInvalidInputError(err.Error())
	}

	if strings.TrimSpace(input.OrderNumber) == "" {
		input.OrderNumber = uuid.NewString()
	}

	placedBy, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, nil, tx.Error
	}

	// durable apply-once guard: replays of the same order number bounce here
	idem := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: orderDemandHandler,
		MessageId:   input.OrderNumber,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&idem).Error; err != nil {
		tx.Rollback()
		return nil, nil, models.NewConflictError("order already applied", input.OrderNumber)
	}

	order, err := models.InsertDistributorOrder(tx, businessId, placedBy, input)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	// lock articles in ascending order so concurrent order placements cannot deadlock
	articleIds := make([]int, 0, len(input.Details))
	for _, detail := range input.Details {
		articleIds = append(articleIds, detail.ArticleId)
	}
	sort.Ints(articleIds)
	locked := make([]int, 0, len(articleIds))
	// advisory locks are connection-scoped: release on the same tx, before it ends
	releaseLocks := func() {
		for _, articleId := range locked {
			ReleaseArticlePostingLock(tx, businessId, articleId)
		}
	}
	for _, articleId := range articleIds {
		if err := AcquireArticlePostingLock(tx, businessId, articleId); err != nil {
			releaseLocks()
			tx.Rollback()
			return nil, nil, err
		}
		locked = append(locked, articleId)
	}

	summaries := make([]*models.DemandSummary, 0, len(input.Details))
	for _, detail := range input.Details {
		summary, err := ApplyOrderPlaced(tx, businessId, detail.ArticleId, detail.Qty)
		if err != nil {
			releaseLocks()
			tx.Rollback()
			return nil, nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", idem.ID).
		UpdateColumn("status", models.IdempotencyStatusSucceeded).Error; err != nil {
		releaseLocks()
		tx.Rollback()
		return nil, nil, err
	}

	description := fmt.Sprintf("Order %s placed with %d line item(s).", order.OrderNumber, len(input.Details))
	if err := models.CreateHistory(tx, ctx, businessId, models.HistoryActionCreate, "distributor_orders", order.ID, description); err != nil {
		releaseLocks()
		tx.Rollback()
		return nil, nil, err
	}

	releaseLocks()
	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}
	return order, summaries, nil
}
