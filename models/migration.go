package models

import (
	"log"

	"github.com/mmdatafocus/kiosk_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Item{}, &InventoryBatch{}, &PurchaseBreakdown{},
		&Sale{}, &SaleItem{},
		&Customer{}, &CustomerCreditEntry{},
		&StockAdjustment{},
		&PubSubMessageRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
