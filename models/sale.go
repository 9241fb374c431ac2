package models

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MoneyPlaces matches the decimal(20,4) storage scale.
const MoneyPlaces int32 = 4

// FitsStorageScale reports whether d survives a decimal(20,4) column unchanged.
func FitsStorageScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

type Sale struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;index;uniqueIndex:uniq_sale_idempotency,priority:1" json:"business_id"`
	UserId         int             `gorm:"index" json:"user_id"`
	ShiftId        int             `gorm:"index" json:"shift_id"`
	CustomerId     *int            `gorm:"index" json:"customer_id"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	AmountTendered decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_tendered"`
	ChangeAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"change_amount"`
	PaymentMethod  PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Status         SaleStatus      `gorm:"size:20;not null;default:'completed'" json:"status"`
	SaleDate       time.Time       `gorm:"index;not null" json:"sale_date"`
	IdempotencyKey *string         `gorm:"size:100;uniqueIndex:uniq_sale_idempotency,priority:2" json:"idempotency_key"`
	Items          []SaleItem      `gorm:"foreignKey:SaleId" json:"items"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaleItem freezes the sell price, unit cost and profit at the time of sale.
// BatchId is nil for the fallback line of a partially unallocated sale.
type SaleItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"size:64;not null;index" json:"business_id"`
	SaleId           int             `gorm:"index;not null" json:"sale_id"`
	ItemId           int             `gorm:"index;not null" json:"item_id"`
	BatchId          *int            `gorm:"index" json:"batch_id"`
	QuantitySold     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_sold"`
	SellPricePerUnit decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"sell_price_per_unit"`
	BuyPricePerUnit  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"buy_price_per_unit"`
	Profit           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"profit"`
	CostSource       CostSource      `gorm:"size:20;not null" json:"cost_source"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// NewSaleItem builds a sale line with profit = quantity * (sell - buy).
// A line whose cost is unknown records zero cost and zero profit.
func NewSaleItem(businessId string, itemId int, batchId *int, quantity, sellPrice, buyPrice decimal.Decimal, source CostSource) SaleItem {
	profit := LineProfit(quantity, sellPrice, buyPrice)
	if source == CostSourceUnknown {
		buyPrice = decimal.Zero
		profit = decimal.Zero
	}
	return SaleItem{
		BusinessId:       businessId,
		ItemId:           itemId,
		BatchId:          batchId,
		QuantitySold:     quantity,
		SellPricePerUnit: sellPrice,
		BuyPricePerUnit:  buyPrice,
		Profit:           profit,
		CostSource:       source,
	}
}

func LineProfit(quantity, sellPrice, buyPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(sellPrice.Sub(buyPrice)).Round(MoneyPlaces)
}

func (si *SaleItem) Revenue() decimal.Decimal {
	return si.QuantitySold.Mul(si.SellPricePerUnit)
}

func (si *SaleItem) Cost() decimal.Decimal {
	return si.QuantitySold.Mul(si.BuyPricePerUnit)
}

func createSale(ctx context.Context, tx *gorm.DB, sale *Sale) error {
	err := tx.WithContext(ctx).Create(sale).Error
	if isDuplicateKeyError(err) {
		return ErrDuplicateSale
	}
	return err
}

func findSaleByIdempotencyKey(ctx context.Context, tx *gorm.DB, businessId string, key string) (*Sale, error) {
	var sales []Sale
	err := tx.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("business_id = ? AND idempotency_key = ?", businessId, key).
		Limit(1).
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	return &sales[0], nil
}

func isDuplicateKeyError(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
