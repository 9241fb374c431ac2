package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryBatch is one receipt of stock at a single unit cost.
// Rows are append-only apart from QuantityRemaining, which only decreases.
type InventoryBatch struct {
	ID                int             `gorm:"primary_key;index:idx_batch_fifo,priority:4" json:"id"`
	BusinessId        string          `gorm:"size:64;not null;index:idx_batch_fifo,priority:1" json:"business_id"`
	ItemId            int             `gorm:"not null;index:idx_batch_fifo,priority:2" json:"item_id"`
	SourceBreakdownId *int            `gorm:"index" json:"source_breakdown_id"`
	InitialQuantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"initial_quantity"`
	QuantityRemaining decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_remaining"`
	BuyPricePerUnit   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"buy_price_per_unit"`
	ReceivedAt        time.Time       `gorm:"not null;index:idx_batch_fifo,priority:3" json:"received_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// BatchValuation summarizes an item's open batches.
type BatchValuation struct {
	ItemId            int             `json:"item_id"`
	OpenBatches       int             `json:"open_batches"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	RemainingValue    decimal.Decimal `json:"remaining_value"`
}

// getAvailableBatches pages through open batches oldest first (received_at, id)
// and stops as soon as the fetched remainders cover quantityNeeded.
func getAvailableBatches(ctx context.Context, tx *gorm.DB, businessId string, itemId int, quantityNeeded decimal.Decimal, pageSize int) ([]InventoryBatch, error) {
	return pageAvailableBatches(quantityNeeded, pageSize, func(after *InventoryBatch, limit int) ([]InventoryBatch, error) {
		var page []InventoryBatch
		err := availableBatchesQuery(tx.WithContext(ctx), businessId, itemId, after, limit).Find(&page).Error
		return page, err
	})
}

// availableBatchesQuery selects live batches in FIFO order, starting after
// the (received_at, id) key of after when it is set.
func availableBatchesQuery(tx *gorm.DB, businessId string, itemId int, after *InventoryBatch, limit int) *gorm.DB {
	q := tx.Model(&InventoryBatch{}).
		Where("business_id = ? AND item_id = ? AND quantity_remaining > 0", businessId, itemId)
	if after != nil {
		q = q.Where("(received_at > ? OR (received_at = ? AND id > ?))", after.ReceivedAt, after.ReceivedAt, after.ID)
	}
	return q.Order("received_at ASC, id ASC").Limit(limit)
}

// pageAvailableBatches reads pages until the batches read cover
// quantityNeeded or a short page shows there are no more.
func pageAvailableBatches(quantityNeeded decimal.Decimal, pageSize int, fetch func(after *InventoryBatch, limit int) ([]InventoryBatch, error)) ([]InventoryBatch, error) {
	var result []InventoryBatch
	if !quantityNeeded.IsPositive() {
		return result, nil
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	covered := decimal.Zero
	var last *InventoryBatch
	for {
		page, err := fetch(last, pageSize)
		if err != nil {
			return nil, err
		}
		for i := range page {
			result = append(result, page[i])
			covered = covered.Add(page[i].QuantityRemaining)
			if covered.GreaterThanOrEqual(quantityNeeded) {
				return result, nil
			}
		}
		if len(page) < pageSize {
			return result, nil
		}
		last = &page[len(page)-1]
	}
}

// consumeBatch decrements a batch only if it still holds quantity.
// A false result means another sale got there first.
func consumeBatch(ctx context.Context, tx *gorm.DB, businessId string, batchId int, quantity decimal.Decimal) (bool, error) {
	res := tx.WithContext(ctx).Model(&InventoryBatch{}).
		Where("business_id = ? AND id = ? AND quantity_remaining >= CAST(? AS DECIMAL(20,4))", businessId, batchId, quantity).
		UpdateColumn("quantity_remaining", gorm.Expr("quantity_remaining - CAST(? AS DECIMAL(20,4))", quantity))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func createBatch(ctx context.Context, tx *gorm.DB, batch *InventoryBatch) error {
	return tx.WithContext(ctx).Create(batch).Error
}

func lastBatchCost(ctx context.Context, tx *gorm.DB, businessId string, itemId int) (decimal.Decimal, bool, error) {
	var batches []InventoryBatch
	err := tx.WithContext(ctx).
		Where("business_id = ? AND item_id = ?", businessId, itemId).
		Order("received_at DESC, id DESC").
		Limit(1).
		Find(&batches).Error
	if err != nil || len(batches) == 0 {
		return decimal.Zero, false, err
	}
	return batches[0].BuyPricePerUnit, true, nil
}

func getBatchValuation(ctx context.Context, tx *gorm.DB, businessId string, itemId int) (BatchValuation, error) {
	var batches []InventoryBatch
	err := tx.WithContext(ctx).
		Where("business_id = ? AND item_id = ? AND quantity_remaining > 0", businessId, itemId).
		Find(&batches).Error
	if err != nil {
		return BatchValuation{}, err
	}
	return SummarizeBatches(itemId, batches), nil
}

func SummarizeBatches(itemId int, batches []InventoryBatch) BatchValuation {
	v := BatchValuation{ItemId: itemId, QuantityRemaining: decimal.Zero, RemainingValue: decimal.Zero}
	for _, b := range batches {
		if !b.QuantityRemaining.IsPositive() {
			continue
		}
		v.OpenBatches++
		v.QuantityRemaining = v.QuantityRemaining.Add(b.QuantityRemaining)
		v.RemainingValue = v.RemainingValue.Add(b.QuantityRemaining.Mul(b.BuyPricePerUnit))
	}
	return v
}
