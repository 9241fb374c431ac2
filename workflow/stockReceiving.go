package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type NewBatch struct {
	ItemId            int             `json:"item_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	BuyPricePerUnit   decimal.Decimal `json:"buy_price_per_unit"`
	ReceivedAt        *time.Time      `json:"received_at"`
	SourceBreakdownId *int            `json:"source_breakdown_id"`
}

type NewPurchaseBreakdown struct {
	PurchaseLineId  int             `json:"purchase_line_id"`
	ItemId          int             `json:"item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	BuyPricePerUnit decimal.Decimal `json:"buy_price_per_unit"`
	ConfirmedAt     *time.Time      `json:"confirmed_at"`
	// ReceiveStock also books Quantity as a batch linked to the breakdown.
	ReceiveStock bool `json:"receive_stock"`
}

type StockReceiver struct {
	Store  models.LedgerStore
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewStockReceiver(store models.LedgerStore, logger *logrus.Logger) *StockReceiver {
	return &StockReceiver{Store: store, Logger: logger, Now: time.Now}
}

func (s *StockReceiver) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *StockReceiver) validateBatch(tenant models.Tenant, input *NewBatch) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if input == nil || input.ItemId <= 0 {
		return models.ErrItemNotFound
	}
	if !input.Quantity.IsPositive() || !models.FitsStorageScale(input.Quantity) {
		return models.ErrInvalidQuantity
	}
	if input.BuyPricePerUnit.IsNegative() || !models.FitsStorageScale(input.BuyPricePerUnit) {
		return models.ErrInvalidBuyPrice
	}
	return nil
}

func (s *StockReceiver) newBatch(input *NewBatch) *models.InventoryBatch {
	receivedAt := s.now()
	if input.ReceivedAt != nil && !input.ReceivedAt.IsZero() {
		receivedAt = input.ReceivedAt.UTC()
	}
	return &models.InventoryBatch{
		ItemId:            input.ItemId,
		SourceBreakdownId: input.SourceBreakdownId,
		InitialQuantity:   input.Quantity,
		QuantityRemaining: input.Quantity,
		BuyPricePerUnit:   input.BuyPricePerUnit,
		ReceivedAt:        receivedAt,
	}
}

// CreateBatch appends a batch without touching the item's on-hand counter.
func (s *StockReceiver) CreateBatch(ctx context.Context, tenant models.Tenant, input *NewBatch) (int, error) {
	if err := s.validateBatch(tenant, input); err != nil {
		return 0, err
	}
	batch := s.newBatch(input)
	err := s.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		if _, err := tx.GetItem(ctx, tenant, input.ItemId); err != nil {
			return err
		}
		return tx.CreateBatch(ctx, tenant, batch)
	})
	if err != nil {
		config.LogError(s.Logger, "stockReceiving.go", "CreateBatch", "Transaction", input, err)
		return 0, err
	}
	return batch.ID, nil
}

// ReceiveStock appends a batch and adds its quantity to the on-hand counter.
func (s *StockReceiver) ReceiveStock(ctx context.Context, tenant models.Tenant, input *NewBatch) (*models.InventoryBatch, error) {
	if err := s.validateBatch(tenant, input); err != nil {
		return nil, err
	}
	batch := s.newBatch(input)
	err := s.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		return receiveStockTx(ctx, tx, tenant, batch)
	})
	if err != nil {
		config.LogError(s.Logger, "stockReceiving.go", "ReceiveStock", "Transaction", input, err)
		return nil, err
	}
	return batch, nil
}

func receiveStockTx(ctx context.Context, tx models.LedgerTx, tenant models.Tenant, batch *models.InventoryBatch) error {
	if _, err := tx.GetItem(ctx, tenant, batch.ItemId); err != nil {
		return err
	}
	if err := tx.CreateBatch(ctx, tenant, batch); err != nil {
		return err
	}
	return tx.AddItemStock(ctx, tenant, batch.ItemId, batch.InitialQuantity)
}

// RecordPurchaseBreakdown stores a confirmed per-item purchase cost, the
// second link of the cost fallback chain.
func (s *StockReceiver) RecordPurchaseBreakdown(ctx context.Context, tenant models.Tenant, input *NewPurchaseBreakdown) (*models.PurchaseBreakdown, *models.InventoryBatch, error) {
	if err := tenant.Validate(); err != nil {
		return nil, nil, err
	}
	if input == nil || input.ItemId <= 0 {
		return nil, nil, models.ErrItemNotFound
	}
	if input.Quantity.IsNegative() || !models.FitsStorageScale(input.Quantity) || (input.ReceiveStock && !input.Quantity.IsPositive()) {
		return nil, nil, models.ErrInvalidQuantity
	}
	if input.BuyPricePerUnit.IsNegative() || !models.FitsStorageScale(input.BuyPricePerUnit) {
		return nil, nil, models.ErrInvalidBuyPrice
	}
	confirmedAt := s.now()
	if input.ConfirmedAt != nil && !input.ConfirmedAt.IsZero() {
		confirmedAt = input.ConfirmedAt.UTC()
	}

	pb := &models.PurchaseBreakdown{
		PurchaseLineId:  input.PurchaseLineId,
		ItemId:          input.ItemId,
		Quantity:        input.Quantity,
		BuyPricePerUnit: input.BuyPricePerUnit,
		ConfirmedAt:     &confirmedAt,
		CreatedBy:       tenant.UserId,
	}
	var batch *models.InventoryBatch
	err := s.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		if _, err := tx.GetItem(ctx, tenant, input.ItemId); err != nil {
			return err
		}
		if err := tx.CreatePurchaseBreakdown(ctx, tenant, pb); err != nil {
			return err
		}
		if !input.ReceiveStock {
			return nil
		}
		pbId := pb.ID
		batch = &models.InventoryBatch{
			ItemId:            input.ItemId,
			SourceBreakdownId: &pbId,
			InitialQuantity:   input.Quantity,
			QuantityRemaining: input.Quantity,
			BuyPricePerUnit:   input.BuyPricePerUnit,
			ReceivedAt:        confirmedAt,
		}
		return receiveStockTx(ctx, tx, tenant, batch)
	})
	if err != nil {
		config.LogError(s.Logger, "stockReceiving.go", "RecordPurchaseBreakdown", "Transaction", input, err)
		return nil, nil, err
	}
	return pb, batch, nil
}
