package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseBreakdown splits one purchase line into a per-item unit cost.
// Only confirmed breakdowns feed the cost fallback chain.
type PurchaseBreakdown struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;not null;index:idx_breakdown_item,priority:1" json:"business_id"`
	PurchaseLineId  int             `gorm:"index" json:"purchase_line_id"`
	ItemId          int             `gorm:"not null;index:idx_breakdown_item,priority:2" json:"item_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	BuyPricePerUnit decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"buy_price_per_unit"`
	ConfirmedAt     *time.Time      `gorm:"index:idx_breakdown_item,priority:3" json:"confirmed_at"`
	CreatedBy       int             `json:"created_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (pb *PurchaseBreakdown) IsConfirmed() bool {
	return pb.ConfirmedAt != nil
}

func createPurchaseBreakdown(ctx context.Context, tx *gorm.DB, pb *PurchaseBreakdown) error {
	return tx.WithContext(ctx).Create(pb).Error
}

func lastBreakdownCost(ctx context.Context, tx *gorm.DB, businessId string, itemId int) (decimal.Decimal, bool, error) {
	var rows []PurchaseBreakdown
	err := tx.WithContext(ctx).
		Where("business_id = ? AND item_id = ? AND confirmed_at IS NOT NULL", businessId, itemId).
		Order("confirmed_at DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return decimal.Zero, false, err
	}
	return rows[0].BuyPricePerUnit, true, nil
}
