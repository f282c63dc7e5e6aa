package workflow_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"bitbucket.org/mmdatafocus/supplychain_backend/workflow"
	"github.com/shopspring/decimal"
)

// Regression: orders accumulate into demand, shipping reduces available stock,
// and demand is re-derived on both sides. Orders must never touch inventory.
func TestPlaceOrderDrivesDemand(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  4,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	for i := 0; i < 3; i++ {
		receiveCarton(t, ctx, cartons[i].SerialNumber, warehouse.ID)
	}

	order, summaries, err := workflow.PlaceOrder(ctx, &models.NewOrder{
		DistributorId: distributor.ID,
		Details: []models.NewOrderDetail{
			{ArticleId: article.ID, Qty: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.OrderNumber == "" {
		t.Fatalf("order number was not generated")
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 demand summary, got %d", len(summaries))
	}
	assertDecimal(t, "total_ordered", summaries[0].TotalOrdered, 5)
	assertDecimal(t, "demand", summaries[0].Demand, 2) // 5 ordered - 3 available

	// inventory untouched by the order
	inv, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "received_qty", inv.ReceivedQty, 3)
	assertDecimal(t, "available_qty", inv.AvailableQty, 3)

	// shipping one carton lowers available stock and raises demand
	shipCarton(t, ctx, cartons[0].SerialNumber, distributor.ID)

	demand, err := models.GetDemandSummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetDemandSummary: %v", err)
	}
	assertDecimal(t, "available_stock", demand.AvailableStock, 2)
	assertDecimal(t, "demand", demand.Demand, 3)
}

// Regression: an order placed before any stock exists must show demand equal to
// the full ordered quantity, and each subsequent receive scan must shrink it.
func TestOrderBeforeStockDemandTracksReceipts(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	_, summaries, err := workflow.PlaceOrder(ctx, &models.NewOrder{
		DistributorId: distributor.ID,
		Details: []models.NewOrderDetail{
			{ArticleId: article.ID, Qty: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	assertDecimal(t, "total_ordered", summaries[0].TotalOrdered, 5)
	assertDecimal(t, "available_stock", summaries[0].AvailableStock, 0)
	assertDecimal(t, "demand", summaries[0].Demand, 5)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	receiveCarton(t, ctx, cartons[0].SerialNumber, warehouse.ID)

	demand, err := models.GetDemandSummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetDemandSummary: %v", err)
	}
	assertDecimal(t, "available_stock", demand.AvailableStock, 1)
	assertDecimal(t, "demand", demand.Demand, 4)
}

// Regression: replaying an order with the same order number must be rejected and
// must not inflate the demand accumulator.
func TestDuplicateOrderNumberRejected(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, _, distributor := createCatalogFixtures(t, ctx)

	input := &models.NewOrder{
		DistributorId: distributor.ID,
		OrderNumber:   "ORD-1001",
		Details: []models.NewOrderDetail{
			{ArticleId: article.ID, Qty: decimal.NewFromInt(10)},
		},
	}
	if _, _, err := workflow.PlaceOrder(ctx, input); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	replay := &models.NewOrder{
		DistributorId: distributor.ID,
		OrderNumber:   "ORD-1001",
		Details: []models.NewOrderDetail{
			{ArticleId: article.ID, Qty: decimal.NewFromInt(10)},
		},
	}
	if _, _, err := workflow.PlaceOrder(ctx, replay); !models.IsConflict(err) {
		t.Fatalf("expected conflict on replayed order number, got %v", err)
	}

	demand, err := models.GetDemandSummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetDemandSummary: %v", err)
	}
	assertDecimal(t, "total_ordered", demand.TotalOrdered, 10)
}

// Regression: the resync sweep heals the exact state a failed aggregate sync
// leaves behind: carton status committed but summary stale and, for a ship, the
// carton missing from any batch.
func TestResyncSweepHealsStaleAggregates(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	receiveCarton(t, ctx, cartons[0].SerialNumber, warehouse.ID)
	receiveCarton(t, ctx, cartons[1].SerialNumber, warehouse.ID)

	// Simulate a ship whose tx2 failed: flip the carton row directly, skip the
	// aggregate sync and batch append, then flag the key for resync.
	db := config.GetDB()
	now := time.Now().UTC()
	if err := db.Model(&models.Carton{}).
		Where("id = ?", cartons[0].ID).
		Updates(map[string]interface{}{
			"status":         models.CartonStatusShipped,
			"distributor_id": distributor.ID,
			"shipped_by":     "Test",
			"shipped_at":     now,
		}).Error; err != nil {
		t.Fatalf("simulate shipped carton: %v", err)
	}
	if err := models.MarkAggregateForResync(db, businessId, models.AggregateTypeInventory, article.ID, "simulated sync failure"); err != nil {
		t.Fatalf("mark inventory resync: %v", err)
	}
	if err := models.MarkAggregateForResync(db, businessId, models.AggregateTypeBatch, article.ID, "simulated sync failure"); err != nil {
		t.Fatalf("mark batch resync: %v", err)
	}

	// aggregate is stale before the sweep
	stale, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "shipped_qty before sweep", stale.ShippedQty, 0)

	healed, err := workflow.ProcessPendingResyncs(ctx)
	if err != nil {
		t.Fatalf("ProcessPendingResyncs: %v", err)
	}
	if healed != 2 {
		t.Fatalf("expected 2 healed markers, got %d", healed)
	}

	summary, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "received_qty", summary.ReceivedQty, 2)
	assertDecimal(t, "shipped_qty", summary.ShippedQty, 1)
	assertDecimal(t, "available_qty", summary.AvailableQty, 1)

	// the stray shipped carton landed in a batch
	carton, err := models.GetCarton(ctx, cartons[0].ID)
	if err != nil {
		t.Fatalf("GetCarton: %v", err)
	}
	if carton.ShipmentBatchId == nil {
		t.Fatalf("shipped carton still missing from a batch after sweep")
	}
	batch, err := models.GetShipmentBatch(ctx, *carton.ShipmentBatchId)
	if err != nil {
		t.Fatalf("GetShipmentBatch: %v", err)
	}
	if batch.TotalCartons != 1 {
		t.Fatalf("batch total after sweep = %d, want 1", batch.TotalCartons)
	}

	// markers are resolved; a second sweep is a no-op
	pending, err := models.ListPendingResyncs(db, 0)
	if err != nil {
		t.Fatalf("ListPendingResyncs: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending markers after sweep, got %d", len(pending))
	}
	if healed, err := workflow.ProcessPendingResyncs(ctx); err != nil || healed != 0 {
		t.Fatalf("second sweep: healed=%d err=%v", healed, err)
	}
}
