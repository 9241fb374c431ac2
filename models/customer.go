package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer carries the running credit balance owed to the business.
type Customer struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index" json:"business_id"`
	Name          string          `gorm:"size:100;not null" json:"name" validate:"required,max=100"`
	Phone         string          `gorm:"size:20;index" json:"phone"`
	CreditBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_balance"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerCreditEntry is an append-only line of a customer's credit ledger.
// Charges are positive amounts, payments negative.
type CustomerCreditEntry struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;not null;index" json:"business_id"`
	CustomerId int             `gorm:"index;not null" json:"customer_id"`
	SaleId     *int            `gorm:"index" json:"sale_id"`
	EntryType  CreditEntryType `gorm:"size:20;not null" json:"entry_type"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Notes      string          `gorm:"type:text" json:"notes"`
	CreatedBy  int             `json:"created_by"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func createCustomer(ctx context.Context, tx *gorm.DB, customer *Customer) error {
	return tx.WithContext(ctx).Create(customer).Error
}

func getCustomer(ctx context.Context, tx *gorm.DB, businessId string, customerId int) (*Customer, error) {
	var c Customer
	err := tx.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, customerId).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

func addCustomerBalance(ctx context.Context, tx *gorm.DB, businessId string, customerId int, delta decimal.Decimal) error {
	res := tx.WithContext(ctx).Model(&Customer{}).
		Where("business_id = ? AND id = ?", businessId, customerId).
		UpdateColumn("credit_balance", gorm.Expr("credit_balance + CAST(? AS DECIMAL(20,4))", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 && !delta.IsZero() {
		return ErrCustomerNotFound
	}
	return nil
}

func createCreditEntry(ctx context.Context, tx *gorm.DB, entry *CustomerCreditEntry) error {
	return tx.WithContext(ctx).Create(entry).Error
}
