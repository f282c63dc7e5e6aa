package models

import (
	"log"

	"bitbucket.org/mmdatafocus/supplychain_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Article{}, &Distributor{}, &Warehouse{},
		&Carton{}, &CartonScan{},
		&InventorySummary{}, &DemandSummary{},
		&ShipmentBatch{}, &ShipmentBatchItem{},
		&DistributorOrder{}, &DistributorOrderDetail{},
		&AggregateResync{}, &IdempotencyKey{},
		&History{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
