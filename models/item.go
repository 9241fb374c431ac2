package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Item is a sellable product. CurrentStock is the authoritative on-hand counter;
// it is maintained independently of batch remainders and may go negative.
type Item struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"size:64;index;not null" json:"business_id"`
	ParentItemId     *int            `gorm:"index" json:"parent_item_id"`
	Name             string          `gorm:"size:100;not null" json:"name" validate:"required,max=100"`
	UnitType         UnitType        `gorm:"size:20;not null;default:'pcs'" json:"unit_type"`
	CurrentStock     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	CurrentSellPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_sell_price"`
	MinStockLevel    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_stock_level"`
	IsActive         *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (item *Item) Active() bool {
	return item.IsActive == nil || *item.IsActive
}

// GroupItemId is the id an item's sales roll up to when grouping by parent.
func (item *Item) GroupItemId() int {
	if item.ParentItemId != nil && *item.ParentItemId > 0 {
		return *item.ParentItemId
	}
	return item.ID
}

func (item *Item) IsLowStock() bool {
	return item.MinStockLevel.GreaterThan(decimal.Zero) && item.CurrentStock.LessThanOrEqual(item.MinStockLevel)
}

func getItem(ctx context.Context, tx *gorm.DB, businessId string, itemId int, lock bool) (*Item, error) {
	var item Item
	q := tx.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("business_id = ? AND id = ?", businessId, itemId).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func addItemStock(ctx context.Context, tx *gorm.DB, businessId string, itemId int, delta decimal.Decimal) error {
	res := tx.WithContext(ctx).Model(&Item{}).
		Where("business_id = ? AND id = ?", businessId, itemId).
		UpdateColumn("current_stock", gorm.Expr("current_stock + CAST(? AS DECIMAL(20,4))", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 && !delta.IsZero() {
		return ErrItemNotFound
	}
	return nil
}

func setItemStock(ctx context.Context, tx *gorm.DB, businessId string, itemId int, quantity decimal.Decimal) error {
	res := tx.WithContext(ctx).Model(&Item{}).
		Where("business_id = ? AND id = ?", businessId, itemId).
		UpdateColumn("current_stock", quantity)
	return res.Error
}

func listLowStockItems(ctx context.Context, tx *gorm.DB, businessId string) ([]Item, error) {
	var items []Item
	err := tx.WithContext(ctx).
		Where("business_id = ? AND is_active = ? AND min_stock_level > 0 AND current_stock <= min_stock_level", businessId, true).
		Order("name ASC, id ASC").
		Find(&items).Error
	return items, err
}
