package workflow

import (
	"context"

	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/shopspring/decimal"
)

// StockDrift compares the on-hand counter with what the open batches hold.
// Drift is expected after adjustments and stock takes and is never corrected here.
type StockDrift struct {
	ItemId       int                   `json:"item_id"`
	CurrentStock decimal.Decimal       `json:"current_stock"`
	Batches      models.BatchValuation `json:"batches"`
	Drift        decimal.Decimal       `json:"drift"`
}

func LowStockItems(ctx context.Context, store models.ItemStore, tenant models.Tenant) ([]models.Item, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return store.ListLowStockItems(ctx, tenant)
}

type driftReader interface {
	models.ItemStore
	models.BatchLedger
}

func GetStockDrift(ctx context.Context, store driftReader, tenant models.Tenant, itemId int) (*StockDrift, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	item, err := store.GetItem(ctx, tenant, itemId)
	if err != nil {
		return nil, err
	}
	valuation, err := store.BatchValuation(ctx, tenant, itemId)
	if err != nil {
		return nil, err
	}
	return &StockDrift{
		ItemId:       itemId,
		CurrentStock: item.CurrentStock,
		Batches:      valuation,
		Drift:        item.CurrentStock.Sub(valuation.QuantityRemaining),
	}, nil
}
