package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockAdjustment audits every manual change to an item's on-hand counter.
type StockAdjustment struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	BusinessId     string              `gorm:"size:64;not null;index" json:"business_id"`
	ItemId         int                 `gorm:"index;not null" json:"item_id"`
	Kind           StockAdjustmentKind `gorm:"size:20;not null" json:"kind"`
	Reason         AdjustmentReason    `gorm:"size:20;not null" json:"reason"`
	Notes          string              `gorm:"type:text" json:"notes"`
	QuantityBefore decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"quantity_before"`
	QuantityAfter  decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"quantity_after"`
	Difference     decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"difference"`
	BatchId        *int                `gorm:"index" json:"batch_id"`
	CreatedBy      int                 `json:"created_by"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func createStockAdjustment(ctx context.Context, tx *gorm.DB, adj *StockAdjustment) error {
	return tx.WithContext(ctx).Create(adj).Error
}
