package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
	"bitbucket.org/mmdatafocus/supplychain_backend/models"
	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"bitbucket.org/mmdatafocus/supplychain_backend/workflow"
	"github.com/shopspring/decimal"
)

// Regression: the full carton lifecycle must keep the inventory aggregate in step
// with the carton rows. Generate 3, receive 2, ship 1 -> received=2, shipped=1,
// available=1, and the shipped carton lands in an open batch for the distributor.
func TestCartonLifecycleKeepsInventoryInStep(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	if len(cartons) != 3 {
		t.Fatalf("expected 3 cartons, got %d", len(cartons))
	}

	received := receiveCarton(t, ctx, cartons[0].SerialNumber, warehouse.ID)
	receiveCarton(t, ctx, cartons[1].SerialNumber, warehouse.ID)

	// the returned snapshot must carry the committed transition, not the
	// pre-scan state
	if received.Carton.Status != models.CartonStatusReceived {
		t.Fatalf("receive result status = %s, want Received", received.Carton.Status)
	}
	if received.Carton.ReceivedWarehouseId == nil || *received.Carton.ReceivedWarehouseId != warehouse.ID {
		t.Fatalf("receive result missing warehouse metadata: %+v", received.Carton)
	}
	if received.Carton.ReceivedAt == nil {
		t.Fatalf("receive result missing received_at")
	}

	result := shipCarton(t, ctx, cartons[0].SerialNumber, distributor.ID)
	if result.Batch == nil {
		t.Fatalf("ship scan did not return a batch")
	}
	if result.Batch.TotalCartons != 1 {
		t.Fatalf("expected batch total 1, got %d", result.Batch.TotalCartons)
	}
	if result.Carton.Status != models.CartonStatusShipped {
		t.Fatalf("ship result status = %s, want Shipped", result.Carton.Status)
	}
	if result.Carton.TrackingNumber == "" {
		t.Fatalf("shipped carton has no tracking number")
	}
	if result.Carton.DistributorId == nil || *result.Carton.DistributorId != distributor.ID {
		t.Fatalf("ship result missing distributor metadata: %+v", result.Carton)
	}

	// and it must match what actually committed
	persisted, err := models.GetCartonBySerial(ctx, cartons[0].SerialNumber)
	if err != nil {
		t.Fatalf("GetCartonBySerial: %v", err)
	}
	if persisted.Status != result.Carton.Status || persisted.TrackingNumber != result.Carton.TrackingNumber {
		t.Fatalf("returned snapshot diverges from committed row: %+v vs %+v", result.Carton, persisted)
	}

	summary, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "received_qty", summary.ReceivedQty, 2)
	assertDecimal(t, "shipped_qty", summary.ShippedQty, 1)
	assertDecimal(t, "available_qty", summary.AvailableQty, 1)

	// the demand aggregate mirrors available stock even with no orders yet
	demand, err := models.GetDemandSummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetDemandSummary: %v", err)
	}
	assertDecimal(t, "available_stock", demand.AvailableStock, 1)
	assertDecimal(t, "demand", demand.Demand, 0)

	// scan history: GENERATED then RECEIVED then SHIPPED for the shipped carton
	scans, err := models.ListCartonScans(ctx, cartons[0].ID)
	if err != nil {
		t.Fatalf("ListCartonScans: %v", err)
	}
	if len(scans) != 3 ||
		scans[0].Event != models.ScanEventGenerated ||
		scans[1].Event != models.ScanEventReceived ||
		scans[2].Event != models.ScanEventShipped {
		t.Fatalf("unexpected scan history: %+v", scans)
	}
}

// Regression: two concurrent receive scans of different cartons must both land and
// the aggregate must count 2 (no lost update).
func TestConcurrentReceivesBothCounted(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, _ := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = workflow.ApplyScan(ctx, &workflow.NewScan{
				SerialNumber: cartons[i].SerialNumber,
				TargetStatus: string(models.CartonStatusReceived),
				WarehouseId:  &warehouse.ID,
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent receive %d: %v", i, err)
		}
	}

	summary, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "received_qty", summary.ReceivedQty, 2)
}

// Regression: a duplicate ship scan must be rejected as a conflict and must not
// change the aggregates or add a second batch item.
func TestDuplicateShipScanConflictsWithoutSideEffects(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	serial := cartons[0].SerialNumber

	receiveCarton(t, ctx, serial, warehouse.ID)
	first := shipCarton(t, ctx, serial, distributor.ID)

	_, err = workflow.ApplyScan(ctx, &workflow.NewScan{
		SerialNumber:  serial,
		TargetStatus:  string(models.CartonStatusShipped),
		DistributorId: &distributor.ID,
	})
	if !models.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate ship, got %v", err)
	}
	trackErr, _ := models.AsTrackError(err)
	if trackErr.Detail != string(models.CartonStatusShipped) {
		t.Fatalf("conflict detail should carry current status, got %q", trackErr.Detail)
	}

	summary, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "shipped_qty", summary.ShippedQty, 1)

	items, err := models.ListShipmentBatchItems(ctx, first.Batch.ID)
	if err != nil {
		t.Fatalf("ListShipmentBatchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 batch item after duplicate ship, got %d", len(items))
	}
}

// Regression: a receive scan on a Generated carton cannot be skipped straight to
// Shipped, and a Generated carton cannot be received twice.
func TestOutOfOrderScansRejected(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	serial := cartons[0].SerialNumber

	// ship before receive
	_, err = workflow.ApplyScan(ctx, &workflow.NewScan{
		SerialNumber:  serial,
		TargetStatus:  string(models.CartonStatusShipped),
		DistributorId: &distributor.ID,
	})
	if !models.IsConflict(err) {
		t.Fatalf("expected conflict shipping a Generated carton, got %v", err)
	}

	receiveCarton(t, ctx, serial, warehouse.ID)

	// duplicate receive
	_, err = workflow.ApplyScan(ctx, &workflow.NewScan{
		SerialNumber: serial,
		TargetStatus: string(models.CartonStatusReceived),
		WarehouseId:  &warehouse.ID,
	})
	if !models.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate receive, got %v", err)
	}

	// unknown serial
	_, err = workflow.ApplyScan(ctx, &workflow.NewScan{
		SerialNumber: "no-such-serial",
		TargetStatus: string(models.CartonStatusReceived),
		WarehouseId:  &warehouse.ID,
	})
	if !models.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown serial, got %v", err)
	}
}

// Regression: completing a batch is terminal. The next ship scan for the same
// distributor must open a fresh batch instead of resurrecting the completed one.
func TestCompletedBatchIsNeverReopened(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	receiveCarton(t, ctx, cartons[0].SerialNumber, warehouse.ID)
	receiveCarton(t, ctx, cartons[1].SerialNumber, warehouse.ID)

	first := shipCarton(t, ctx, cartons[0].SerialNumber, distributor.ID)

	completed, err := workflow.CompleteShipmentBatch(ctx, first.Batch.ID)
	if err != nil {
		t.Fatalf("CompleteShipmentBatch: %v", err)
	}
	if completed.Status != models.BatchStatusCompleted {
		t.Fatalf("batch not completed: %s", completed.Status)
	}

	// completing again is a conflict
	if _, err := workflow.CompleteShipmentBatch(ctx, first.Batch.ID); !models.IsConflict(err) {
		t.Fatalf("expected conflict completing a completed batch, got %v", err)
	}

	second := shipCarton(t, ctx, cartons[1].SerialNumber, distributor.ID)
	if second.Batch.ID == first.Batch.ID {
		t.Fatalf("ship scan appended to a completed batch")
	}
	if second.Batch.Status != models.BatchStatusOpen {
		t.Fatalf("new batch should be open, got %s", second.Batch.Status)
	}
	if second.Batch.TotalCartons != 1 {
		t.Fatalf("new batch should start at 1 carton, got %d", second.Batch.TotalCartons)
	}
}

// Regression: two ship scans for the same distributor racing each other must land
// in ONE open batch with an accurate recounted total and dense sequence numbers,
// not in two batches or a double-counted one.
func TestConcurrentShipsShareOneBatch(t *testing.T) {
	ctx := setupTrackingTestEnv(t)

	article, warehouse, distributor := createCatalogFixtures(t, ctx)

	cartons, err := models.GenerateCartons(ctx, &models.NewCartonGeneration{
		ArticleId: article.ID,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("GenerateCartons: %v", err)
	}
	receiveCarton(t, ctx, cartons[0].SerialNumber, warehouse.ID)
	receiveCarton(t, ctx, cartons[1].SerialNumber, warehouse.ID)

	var wg sync.WaitGroup
	results := make([]*workflow.ScanResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = workflow.ApplyScan(ctx, &workflow.NewScan{
				SerialNumber:  cartons[i].SerialNumber,
				TargetStatus:  string(models.CartonStatusShipped),
				DistributorId: &distributor.ID,
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent ship %d: %v", i, err)
		}
	}

	if results[0].Batch.ID != results[1].Batch.ID {
		t.Fatalf("concurrent ships split across batches %d and %d", results[0].Batch.ID, results[1].Batch.ID)
	}

	open := models.BatchStatusOpen
	batches, err := models.ListShipmentBatches(ctx, &distributor.ID, &open)
	if err != nil {
		t.Fatalf("ListShipmentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected exactly 1 open batch, got %d", len(batches))
	}
	if batches[0].TotalCartons != 2 {
		t.Fatalf("batch total = %d, want 2", batches[0].TotalCartons)
	}

	items, err := models.ListShipmentBatchItems(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("ListShipmentBatchItems: %v", err)
	}
	if len(items) != 2 || items[0].SequenceNo != 1 || items[1].SequenceNo != 2 {
		t.Fatalf("unexpected item sequencing: %+v", items)
	}

	summary, err := models.GetInventorySummary(ctx, article.ID)
	if err != nil {
		t.Fatalf("GetInventorySummary: %v", err)
	}
	assertDecimal(t, "shipped_qty", summary.ShippedQty, 2)
	assertDecimal(t, "available_qty", summary.AvailableQty, 0)
}

// ---- shared fixtures and scan helpers ----

func setupTrackingTestEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "supplychain_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Tracking Test Co",
		Email: "owner@tracking.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	return utils.SetBusinessIdInContext(ctx, biz.ID.String())
}

func createCatalogFixtures(t *testing.T, ctx context.Context) (*models.Article, *models.Warehouse, *models.Distributor) {
	t.Helper()

	article, err := models.CreateArticle(ctx, &models.NewArticle{
		Name:            "Classic Tee",
		Segment:         "Basics",
		Sku:             "TEE-001",
		Colors:          "Black,White",
		Sizes:           "S,M,L",
		PiecesPerCarton: decimal.NewFromInt(24),
	})
	if err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{
		Name: "Central Warehouse",
		City: "Yangon",
	})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	distributor, err := models.CreateDistributor(ctx, &models.NewDistributor{
		Name:   "Northside Distribution",
		Region: "North",
	})
	if err != nil {
		t.Fatalf("CreateDistributor: %v", err)
	}
	return article, warehouse, distributor
}

func receiveCarton(t *testing.T, ctx context.Context, serial string, warehouseId int) *workflow.ScanResult {
	t.Helper()
	result, err := workflow.ApplyScan(ctx, &workflow.NewScan{
		SerialNumber: serial,
		TargetStatus: string(models.CartonStatusReceived),
		WarehouseId:  &warehouseId,
	})
	if err != nil {
		t.Fatalf("receive scan %s: %v", serial, err)
	}
	return result
}

func shipCarton(t *testing.T, ctx context.Context, serial string, distributorId int) *workflow.ScanResult {
	t.Helper()
	result, err := workflow.ApplyScan(ctx, &workflow.NewScan{
		SerialNumber:  serial,
		TargetStatus:  string(models.CartonStatusShipped),
		DistributorId: &distributorId,
	})
	if err != nil {
		t.Fatalf("ship scan %s: %v", serial, err)
	}
	return result
}

func assertDecimal(t *testing.T, field string, got decimal.Decimal, want int64) {
	t.Helper()
	if !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("%s = %s, want %d", field, got, want)
	}
}

// ---- docker helpers ----

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("supplychain-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("supplychain-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=supplychain_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
