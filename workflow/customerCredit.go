package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type NewCustomer struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"omitempty,max=30"`
}

type NewCreditPayment struct {
	CustomerId int             `json:"customer_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes" validate:"max=500"`
}

type CustomerCredit struct {
	Store  models.LedgerStore
	Logger *logrus.Logger
}

func NewCustomerCredit(store models.LedgerStore, logger *logrus.Logger) *CustomerCredit {
	return &CustomerCredit{Store: store, Logger: logger}
}

func (c *CustomerCredit) CreateCustomer(ctx context.Context, tenant models.Tenant, input *NewCustomer) (*models.Customer, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(input.Phone)
	if phone != "" {
		normalized, err := utils.NormalizePhone(phone)
		if err != nil {
			return nil, err
		}
		phone = normalized
	}
	customer := &models.Customer{
		Name:          strings.TrimSpace(input.Name),
		Phone:         phone,
		CreditBalance: decimal.Zero,
	}
	if err := c.Store.CreateCustomer(ctx, tenant, customer); err != nil {
		config.LogError(c.Logger, "customerCredit.go", "CreateCustomer", "CreateCustomer", input, err)
		return nil, err
	}
	return customer, nil
}

// RecordCreditPayment settles part of a customer's credit balance.
func (c *CustomerCredit) RecordCreditPayment(ctx context.Context, tenant models.Tenant, input *NewCreditPayment) (*models.CustomerCreditEntry, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, models.ErrCustomerRequired
	}
	if !input.Amount.IsPositive() || !models.FitsStorageScale(input.Amount) {
		return nil, models.ErrInvalidQuantity
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	entry := &models.CustomerCreditEntry{
		CustomerId: input.CustomerId,
		EntryType:  models.CreditEntryTypePayment,
		Amount:     input.Amount.Neg(),
		Notes:      input.Notes,
		CreatedBy:  tenant.UserId,
	}
	err := c.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		if _, err := tx.GetCustomer(ctx, tenant, input.CustomerId); err != nil {
			return err
		}
		if err := tx.CreateCreditEntry(ctx, tenant, entry); err != nil {
			return err
		}
		return tx.AddCustomerBalance(ctx, tenant, input.CustomerId, entry.Amount)
	})
	if err != nil {
		config.LogError(c.Logger, "customerCredit.go", "RecordCreditPayment", "Transaction", input, err)
		return nil, err
	}
	return entry, nil
}
