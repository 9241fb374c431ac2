package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LineState tracks one sale line through allocation and persistence.
type LineState string

const (
	LineStateUnallocated        LineState = "UNALLOCATED"
	LineStatePartiallyAllocated LineState = "PARTIALLY_ALLOCATED"
	LineStateFullyAllocated     LineState = "FULLY_ALLOCATED"
	LineStateRecorded           LineState = "RECORDED"
	LineStateStockDecremented   LineState = "STOCK_DECREMENTED"
)

type NewSaleLine struct {
	ItemId   int             `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	// SellPrice defaults to the item's current sell price when nil.
	SellPrice *decimal.Decimal `json:"sell_price"`
}

type NewSale struct {
	ShiftId        int             `json:"shift_id" validate:"gte=0"`
	Lines          []NewSaleLine   `json:"lines"`
	PaymentMethod  string          `json:"payment_method"`
	CustomerId     *int            `json:"customer_id" validate:"omitempty,gt=0"`
	AmountTendered decimal.Decimal `json:"amount_tendered"`
	SaleDate       *time.Time      `json:"sale_date"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
}

type SaleLineResult struct {
	ItemId           int               `json:"item_id"`
	Quantity         decimal.Decimal   `json:"quantity"`
	SellPrice        decimal.Decimal   `json:"sell_price"`
	BatchQuantity    decimal.Decimal   `json:"batch_quantity"`
	FallbackQuantity decimal.Decimal   `json:"fallback_quantity"`
	FallbackSource   models.CostSource `json:"fallback_source,omitempty"`
	State            LineState         `json:"state"`
}

type SaleResult struct {
	SaleId      int               `json:"sale_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Change      decimal.Decimal   `json:"change"`
	Items       []models.SaleItem `json:"items"`
	Lines       []SaleLineResult  `json:"lines,omitempty"`
	// Replayed is set when the idempotency key matched an earlier sale.
	Replayed bool `json:"replayed"`
}

type SaleProcessor struct {
	Store  models.LedgerStore
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewSaleProcessor(store models.LedgerStore, logger *logrus.Logger) *SaleProcessor {
	return &SaleProcessor{Store: store, Logger: logger, Now: time.Now}
}

func (p *SaleProcessor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// RecordSale allocates every line FIFO across the item's batches, prices any
// shortfall through the fallback chain and persists the sale, its lines, the
// batch and stock decrements and any credit entry in one transaction.
// A sale is never rejected for lack of stock.
func (p *SaleProcessor) RecordSale(ctx context.Context, tenant models.Tenant, input *NewSale) (result *SaleResult, err error) {
	ctx, span := tracer.Start(ctx, "RecordSale", trace.WithAttributes(
		attribute.String("business_id", tenant.BusinessId),
	))
	defer func() { endSpan(span, err) }()

	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	method, err := validateNewSale(input)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		existing, err := p.Store.FindSaleByIdempotencyKey(ctx, tenant, key)
		if err != nil {
			config.LogError(p.Logger, "saleProcessor.go", "RecordSale", "FindSaleByIdempotencyKey", key, err)
			return nil, err
		}
		if existing != nil {
			return replayedSaleResult(existing), nil
		}
	}

	err = p.Store.Transaction(ctx, func(tx models.LedgerTx) error {
		var txErr error
		result, txErr = p.recordSaleTx(ctx, tx, tenant, input, method, key)
		return txErr
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateSale) && key != "" {
			// lost the insert race to a concurrent request with the same key
			existing, findErr := p.Store.FindSaleByIdempotencyKey(ctx, tenant, key)
			if findErr == nil && existing != nil {
				return replayedSaleResult(existing), nil
			}
		}
		config.LogError(p.Logger, "saleProcessor.go", "RecordSale", "Transaction", input, err)
		return nil, err
	}

	if config.ReportCacheEnabled() {
		if err := models.RemoveProfitSummaryCache(tenant.BusinessId); err != nil {
			config.LogError(p.Logger, "saleProcessor.go", "RecordSale", "RemoveProfitSummaryCache", tenant.BusinessId, err)
		}
	}

	span.SetAttributes(
		attribute.Int("sale_id", result.SaleId),
		attribute.String("total_amount", result.TotalAmount.String()),
	)
	return result, nil
}

func validateNewSale(input *NewSale) (models.PaymentMethod, error) {
	if input == nil || len(input.Lines) == 0 {
		return "", models.ErrEmptySale
	}
	for _, line := range input.Lines {
		if line.ItemId <= 0 {
			return "", models.ErrItemNotFound
		}
		if !line.Quantity.IsPositive() || !models.FitsStorageScale(line.Quantity) {
			return "", models.ErrInvalidQuantity
		}
		if line.SellPrice != nil && (line.SellPrice.IsNegative() || !models.FitsStorageScale(*line.SellPrice)) {
			return "", models.ErrInvalidSellPrice
		}
	}
	method, err := models.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return "", err
	}
	if input.AmountTendered.IsNegative() || !models.FitsStorageScale(input.AmountTendered) {
		return "", models.ErrInsufficientPayment
	}
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	return method, nil
}

type pricedLine struct {
	NewSaleLine
	item  *models.Item
	price decimal.Decimal
}

func (p *SaleProcessor) recordSaleTx(ctx context.Context, tx models.LedgerTx, tenant models.Tenant, input *NewSale, method models.PaymentMethod, key string) (*SaleResult, error) {
	// reads and checks only; nothing is written until every line is valid
	lines := make([]pricedLine, 0, len(input.Lines))
	items := map[int]*models.Item{}
	total := decimal.Zero
	for _, line := range input.Lines {
		item, ok := items[line.ItemId]
		if !ok {
			var err error
			item, err = tx.GetItem(ctx, tenant, line.ItemId)
			if err != nil {
				return nil, err
			}
			items[line.ItemId] = item
		}
		if config.StrictActiveItems() && !item.Active() {
			return nil, fmt.Errorf("item %d: %w", item.ID, models.ErrItemInactive)
		}
		price := utils.DereferencePtr(line.SellPrice, item.CurrentSellPrice)
		lines = append(lines, pricedLine{NewSaleLine: line, item: item, price: price})
		total = total.Add(line.Quantity.Mul(price))
	}
	total = total.Round(models.MoneyPlaces)

	var customer *models.Customer
	change := decimal.Zero
	if method == models.PaymentMethodCredit {
		if input.CustomerId == nil {
			return nil, models.ErrCustomerRequired
		}
		var err error
		customer, err = tx.GetCustomer(ctx, tenant, *input.CustomerId)
		if err != nil {
			return nil, err
		}
	} else if input.AmountTendered.IsPositive() {
		if input.AmountTendered.LessThan(total) {
			return nil, models.ErrInsufficientPayment
		}
		change = input.AmountTendered.Sub(total)
	}

	saleDate := p.now()
	if input.SaleDate != nil && !input.SaleDate.IsZero() {
		saleDate = input.SaleDate.UTC()
	}

	sale := &models.Sale{
		BusinessId:     tenant.BusinessId,
		UserId:         tenant.UserId,
		ShiftId:        input.ShiftId,
		CustomerId:     input.CustomerId,
		TotalAmount:    total,
		AmountTendered: input.AmountTendered,
		ChangeAmount:   change,
		PaymentMethod:  method,
		Status:         models.SaleStatusCompleted,
		SaleDate:       saleDate,
	}
	if key != "" {
		sale.IdempotencyKey = &key
	}

	lineResults := make([]SaleLineResult, len(lines))
	for i, line := range lines {
		saleItems, lr, err := p.allocateLine(ctx, tx, tenant, line)
		if err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, saleItems...)
		lineResults[i] = lr
	}

	if err := tx.CreateSale(ctx, tenant, sale); err != nil {
		return nil, err
	}
	for i := range lineResults {
		lineResults[i].State = LineStateRecorded
	}

	for i, line := range lines {
		if err := tx.AddItemStock(ctx, tenant, line.ItemId, line.Quantity.Neg()); err != nil {
			return nil, err
		}
		lineResults[i].State = LineStateStockDecremented
	}

	if customer != nil {
		saleId := sale.ID
		entry := &models.CustomerCreditEntry{
			CustomerId: customer.ID,
			SaleId:     &saleId,
			EntryType:  models.CreditEntryTypeCharge,
			Amount:     total,
			CreatedBy:  tenant.UserId,
		}
		if err := tx.CreateCreditEntry(ctx, tenant, entry); err != nil {
			return nil, err
		}
		if err := tx.AddCustomerBalance(ctx, tenant, customer.ID, total); err != nil {
			return nil, err
		}
	}

	if config.SaleEventsEnabled() {
		if err := writeLedgerEvent(ctx, tx, tenant, models.LedgerEventTypeSale, sale.ID, sale.SaleDate, sale); err != nil {
			return nil, err
		}
	}

	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"business_id": tenant.BusinessId,
			"sale_id":     sale.ID,
			"lines":       len(sale.Items),
			"total":       total.String(),
		}).Debug("sale recorded")
	}

	return &SaleResult{
		SaleId:      sale.ID,
		TotalAmount: total,
		Change:      change,
		Items:       sale.Items,
		Lines:       lineResults,
	}, nil
}

// maxAllocationPasses bounds how often one line re-reads batches after losing
// a conditional decrement to a concurrent sale.
const maxAllocationPasses = 8

// allocateLine consumes batches oldest first. A batch whose conditional
// decrement fails is treated as exhausted for that attempt and the live
// batches are read again for what is still unallocated. The shortfall left
// when no live batch remains becomes one fallback line without a batch.
func (p *SaleProcessor) allocateLine(ctx context.Context, tx models.LedgerTx, tenant models.Tenant, line pricedLine) ([]models.SaleItem, SaleLineResult, error) {
	lr := SaleLineResult{
		ItemId:           line.ItemId,
		Quantity:         line.Quantity,
		SellPrice:        line.price,
		BatchQuantity:    decimal.Zero,
		FallbackQuantity: decimal.Zero,
		State:            LineStateUnallocated,
	}
	remaining := line.Quantity

	var saleItems []models.SaleItem
	for pass := 0; remaining.IsPositive() && pass < maxAllocationPasses; pass++ {
		batches, err := tx.AvailableBatches(ctx, tenant, line.ItemId, remaining)
		if err != nil {
			return nil, lr, err
		}
		contended := false
		for _, b := range batches {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(b.QuantityRemaining, remaining)
			if !take.IsPositive() {
				continue
			}
			ok, err := tx.ConsumeBatch(ctx, tenant, b.ID, take)
			if err != nil {
				return nil, lr, err
			}
			if !ok {
				if p.Logger != nil {
					p.Logger.WithFields(logrus.Fields{
						"business_id": tenant.BusinessId,
						"item_id":     line.ItemId,
						"batch_id":    b.ID,
						"take":        take.String(),
						"pass":        pass,
					}).Warn("batch consumed concurrently, reading batches again")
				}
				contended = true
				break
			}
			batchId := b.ID
			saleItems = append(saleItems, models.NewSaleItem(tenant.BusinessId, line.ItemId, &batchId, take, line.price, b.BuyPricePerUnit, models.CostSourceBatch))
			remaining = remaining.Sub(take)
			lr.BatchQuantity = lr.BatchQuantity.Add(take)
			lr.State = LineStatePartiallyAllocated
		}
		if !contended {
			// the read covered every live batch it could
			break
		}
	}

	if remaining.IsPositive() {
		cost, err := ResolveFallbackCost(ctx, tx, tenant, line.ItemId)
		if err != nil {
			return nil, lr, err
		}
		saleItems = append(saleItems, models.NewSaleItem(tenant.BusinessId, line.ItemId, nil, remaining, line.price, cost.UnitCost, cost.Source))
		lr.FallbackQuantity = remaining
		lr.FallbackSource = cost.Source
	}
	lr.State = LineStateFullyAllocated
	return saleItems, lr, nil
}

func replayedSaleResult(sale *models.Sale) *SaleResult {
	return &SaleResult{
		SaleId:      sale.ID,
		TotalAmount: sale.TotalAmount,
		Change:      sale.ChangeAmount,
		Items:       sale.Items,
		Replayed:    true,
	}
}

func writeLedgerEvent(ctx context.Context, tx models.LedgerTx, tenant models.Tenant, refType models.LedgerEventType, refId int, at time.Time, obj any) error {
	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
	}
	msg, err := models.NewLedgerEvent(tenant.BusinessId, refType, refId, at, correlationId, obj)
	if err != nil {
		return err
	}
	return tx.CreateOutboxMessage(ctx, tenant, msg)
}
