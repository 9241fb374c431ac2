package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type NewStockAdjustment struct {
	ItemId int             `json:"item_id"`
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason"`
	Notes  string          `json:"notes" validate:"max=500"`
	// UnitCost, when set on a positive delta, also receives the added
	// quantity as a new batch at this cost.
	UnitCost *decimal.Decimal `json:"unit_cost"`
}

type NewStockTake struct {
	ItemId         int              `json:"item_id"`
	ActualQuantity decimal.Decimal  `json:"actual_quantity"`
	Reason         string           `json:"reason"`
	Notes          string           `json:"notes" validate:"max=500"`
	UnitCost       *decimal.Decimal `json:"unit_cost"`
}

type StockTakeResult struct {
	Difference     decimal.Decimal         `json:"difference"`
	QuantityBefore decimal.Decimal         `json:"quantity_before"`
	QuantityAfter  decimal.Decimal         `json:"quantity_after"`
	Adjustment     *models.StockAdjustment `json:"adjustment"`
}

// StockReconciler corrects Item.current_stock directly. Batch remainders are
// left as they are, so the two counters may drift apart after a correction.
type StockReconciler struct {
	Store  models.LedgerStore
	Locker ItemLocker
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewStockReconciler(store models.LedgerStore, locker ItemLocker, logger *logrus.Logger) *StockReconciler {
	if locker == nil {
		locker = noopItemLocker{}
	}
	return &StockReconciler{Store: store, Locker: locker, Logger: logger, Now: time.Now}
}

func (r *StockReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// AdjustStock applies a signed delta to the item's on-hand counter.
func (r *StockReconciler) AdjustStock(ctx context.Context, tenant models.Tenant, input *NewStockAdjustment) (adj *models.StockAdjustment, err error) {
	ctx, span := tracer.Start(ctx, "AdjustStock", trace.WithAttributes(
		attribute.String("business_id", tenant.BusinessId),
	))
	defer func() { endSpan(span, err) }()

	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if input == nil || input.ItemId <= 0 {
		return nil, models.ErrItemNotFound
	}
	if input.Delta.IsZero() || !models.FitsStorageScale(input.Delta) {
		return nil, models.ErrInvalidQuantity
	}
	reason, err := models.ParseAdjustmentReason(input.Reason)
	if err != nil {
		return nil, err
	}
	if err := validateUnitCost(input.UnitCost); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	unlock := r.Locker.LockItem(ctx, tenant.BusinessId, input.ItemId)
	defer unlock()

	err = r.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		item, err := tx.LockItem(ctx, tenant, input.ItemId)
		if err != nil {
			return err
		}
		after := item.CurrentStock.Add(input.Delta)
		adj, err = r.applyCorrection(ctx, tx, tenant, item, models.StockAdjustmentKindAdjustment, reason, input.Notes, after, input.UnitCost)
		return err
	})
	if err != nil {
		config.LogError(r.Logger, "stockReconciler.go", "AdjustStock", "Transaction", input, err)
		return nil, err
	}
	return adj, nil
}

// StockTake sets the on-hand counter to a physically counted quantity and
// returns the signed difference against the recorded stock.
func (r *StockReconciler) StockTake(ctx context.Context, tenant models.Tenant, input *NewStockTake) (result *StockTakeResult, err error) {
	ctx, span := tracer.Start(ctx, "StockTake", trace.WithAttributes(
		attribute.String("business_id", tenant.BusinessId),
	))
	defer func() { endSpan(span, err) }()

	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if input == nil || input.ItemId <= 0 {
		return nil, models.ErrItemNotFound
	}
	if input.ActualQuantity.IsNegative() || !models.FitsStorageScale(input.ActualQuantity) {
		return nil, models.ErrInvalidQuantity
	}
	reason := models.AdjustmentReasonStockCount
	if input.Reason != "" {
		if reason, err = models.ParseAdjustmentReason(input.Reason); err != nil {
			return nil, err
		}
	}
	if err := validateUnitCost(input.UnitCost); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	unlock := r.Locker.LockItem(ctx, tenant.BusinessId, input.ItemId)
	defer unlock()

	err = r.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		item, err := tx.LockItem(ctx, tenant, input.ItemId)
		if err != nil {
			return err
		}
		adj, err := r.applyCorrection(ctx, tx, tenant, item, models.StockAdjustmentKindStockTake, reason, input.Notes, input.ActualQuantity, input.UnitCost)
		if err != nil {
			return err
		}
		result = &StockTakeResult{
			Difference:     adj.Difference,
			QuantityBefore: adj.QuantityBefore,
			QuantityAfter:  adj.QuantityAfter,
			Adjustment:     adj,
		}
		return nil
	})
	if err != nil {
		config.LogError(r.Logger, "stockReconciler.go", "StockTake", "Transaction", input, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("difference", result.Difference.String()))
	return result, nil
}

func (r *StockReconciler) applyCorrection(ctx context.Context, tx models.LedgerTx, tenant models.Tenant, item *models.Item,
	kind models.StockAdjustmentKind, reason models.AdjustmentReason, notes string, after decimal.Decimal, unitCost *decimal.Decimal) (*models.StockAdjustment, error) {

	before := item.CurrentStock
	diff := after.Sub(before)
	if err := tx.SetItemStock(ctx, tenant, item.ID, after); err != nil {
		return nil, err
	}

	adj := &models.StockAdjustment{
		ItemId:         item.ID,
		Kind:           kind,
		Reason:         reason,
		Notes:          notes,
		QuantityBefore: before,
		QuantityAfter:  after,
		Difference:     diff,
		CreatedBy:      tenant.UserId,
	}

	if diff.IsPositive() && unitCost != nil {
		batch := &models.InventoryBatch{
			ItemId:            item.ID,
			InitialQuantity:   diff,
			QuantityRemaining: diff,
			BuyPricePerUnit:   *unitCost,
			ReceivedAt:        r.now(),
		}
		if err := tx.CreateBatch(ctx, tenant, batch); err != nil {
			return nil, err
		}
		batchId := batch.ID
		adj.BatchId = &batchId
	}

	if err := tx.CreateStockAdjustment(ctx, tenant, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

func validateUnitCost(unitCost *decimal.Decimal) error {
	if unitCost != nil && (unitCost.IsNegative() || !models.FitsStorageScale(*unitCost)) {
		return models.ErrInvalidBuyPrice
	}
	return nil
}
