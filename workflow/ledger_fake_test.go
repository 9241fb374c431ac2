package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/shopspring/decimal"
)

// fakeLedger is an in-memory LedgerStore. Writes made inside Transaction are
// undone when fn fails; every single call is atomic under one mutex.
type fakeLedger struct {
	*fakeTx
	st *fakeState
}

type fakeState struct {
	mu          sync.Mutex
	nextID      int
	items       map[int]*models.Item
	batches     []*models.InventoryBatch
	breakdowns  []*models.PurchaseBreakdown
	sales       []*models.Sale
	customers   map[int]*models.Customer
	credits     []*models.CustomerCreditEntry
	adjustments []*models.StockAdjustment
	outbox      []*models.PubSubMessageRecord

	failCreateSale  error
	failAddStock    error
	afterAvailable  func()
	consumeAttempts int
}

type fakeTx struct {
	st   *fakeState
	undo []func()
}

func newFakeLedger() *fakeLedger {
	st := &fakeState{
		items:     map[int]*models.Item{},
		customers: map[int]*models.Customer{},
	}
	return &fakeLedger{fakeTx: &fakeTx{st: st}, st: st}
}

func (l *fakeLedger) Transaction(ctx context.Context, fn func(tx models.LedgerTx) error) error {
	tx := &fakeTx{st: l.st, undo: []func(){}}
	if err := fn(tx); err != nil {
		l.st.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		l.st.mu.Unlock()
		return err
	}
	return nil
}

// onUndo must be called with st.mu held.
func (t *fakeTx) onUndo(f func()) {
	if t.undo != nil {
		t.undo = append(t.undo, f)
	}
}

func (st *fakeState) id() int {
	st.nextID++
	return st.nextID
}

// --- seeding helpers ---

func (l *fakeLedger) addItem(businessId string, sellPrice int64, stock int64) *models.Item {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	item := &models.Item{
		ID:               l.st.id(),
		BusinessId:       businessId,
		Name:             "item",
		UnitType:         models.UnitTypePiece,
		CurrentStock:     decimal.NewFromInt(stock),
		CurrentSellPrice: decimal.NewFromInt(sellPrice),
		MinStockLevel:    decimal.Zero,
	}
	l.st.items[item.ID] = item
	cp := *item
	return &cp
}

func (l *fakeLedger) addBatch(businessId string, itemId int, qty, cost int64, receivedAt time.Time) *models.InventoryBatch {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	b := &models.InventoryBatch{
		ID:                l.st.id(),
		BusinessId:        businessId,
		ItemId:            itemId,
		InitialQuantity:   decimal.NewFromInt(qty),
		QuantityRemaining: decimal.NewFromInt(qty),
		BuyPricePerUnit:   decimal.NewFromInt(cost),
		ReceivedAt:        receivedAt,
	}
	l.st.batches = append(l.st.batches, b)
	cp := *b
	return &cp
}

func (l *fakeLedger) addBreakdown(businessId string, itemId int, cost int64, confirmedAt time.Time) {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	l.st.breakdowns = append(l.st.breakdowns, &models.PurchaseBreakdown{
		ID:              l.st.id(),
		BusinessId:      businessId,
		ItemId:          itemId,
		Quantity:        decimal.NewFromInt(1),
		BuyPricePerUnit: decimal.NewFromInt(cost),
		ConfirmedAt:     &confirmedAt,
	})
}

func (l *fakeLedger) batch(id int) models.InventoryBatch {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	for _, b := range l.st.batches {
		if b.ID == id {
			return *b
		}
	}
	return models.InventoryBatch{}
}

func (l *fakeLedger) item(id int) models.Item {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	return *l.st.items[id]
}

func (l *fakeLedger) saleCount() int {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	return len(l.st.sales)
}

// --- BatchLedger ---

func (t *fakeTx) AvailableBatches(ctx context.Context, tenant models.Tenant, itemId int, quantityNeeded decimal.Decimal) ([]models.InventoryBatch, error) {
	t.st.mu.Lock()
	var open []models.InventoryBatch
	for _, b := range t.st.batches {
		if b.BusinessId == tenant.BusinessId && b.ItemId == itemId && b.QuantityRemaining.IsPositive() {
			open = append(open, *b)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].ReceivedAt.Equal(open[j].ReceivedAt) {
			return open[i].ReceivedAt.Before(open[j].ReceivedAt)
		}
		return open[i].ID < open[j].ID
	})
	var result []models.InventoryBatch
	covered := decimal.Zero
	for _, b := range open {
		if covered.GreaterThanOrEqual(quantityNeeded) {
			break
		}
		result = append(result, b)
		covered = covered.Add(b.QuantityRemaining)
	}
	hook := t.st.afterAvailable
	t.st.mu.Unlock()
	if hook != nil {
		hook()
	}
	return result, nil
}

func (t *fakeTx) ConsumeBatch(ctx context.Context, tenant models.Tenant, batchId int, quantity decimal.Decimal) (bool, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.consumeAttempts++
	for _, b := range t.st.batches {
		if b.ID != batchId || b.BusinessId != tenant.BusinessId {
			continue
		}
		if b.QuantityRemaining.LessThan(quantity) {
			return false, nil
		}
		b.QuantityRemaining = b.QuantityRemaining.Sub(quantity)
		batch := b
		t.onUndo(func() { batch.QuantityRemaining = batch.QuantityRemaining.Add(quantity) })
		return true, nil
	}
	return false, nil
}

func (t *fakeTx) CreateBatch(ctx context.Context, tenant models.Tenant, batch *models.InventoryBatch) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	batch.ID = t.st.id()
	batch.BusinessId = tenant.BusinessId
	cp := *batch
	t.st.batches = append(t.st.batches, &cp)
	t.onUndo(func() {
		for i, b := range t.st.batches {
			if b.ID == cp.ID {
				t.st.batches = append(t.st.batches[:i], t.st.batches[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (t *fakeTx) BatchValuation(ctx context.Context, tenant models.Tenant, itemId int) (models.BatchValuation, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	var batches []models.InventoryBatch
	for _, b := range t.st.batches {
		if b.BusinessId == tenant.BusinessId && b.ItemId == itemId {
			batches = append(batches, *b)
		}
	}
	return models.SummarizeBatches(itemId, batches), nil
}

// --- CostHistory ---

func (t *fakeTx) LastBatchCost(ctx context.Context, tenant models.Tenant, itemId int) (decimal.Decimal, bool, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	var last *models.InventoryBatch
	for _, b := range t.st.batches {
		if b.BusinessId != tenant.BusinessId || b.ItemId != itemId {
			continue
		}
		if last == nil || b.ReceivedAt.After(last.ReceivedAt) || (b.ReceivedAt.Equal(last.ReceivedAt) && b.ID > last.ID) {
			last = b
		}
	}
	if last == nil {
		return decimal.Zero, false, nil
	}
	return last.BuyPricePerUnit, true, nil
}

func (t *fakeTx) LastBreakdownCost(ctx context.Context, tenant models.Tenant, itemId int) (decimal.Decimal, bool, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	var last *models.PurchaseBreakdown
	for _, pb := range t.st.breakdowns {
		if pb.BusinessId != tenant.BusinessId || pb.ItemId != itemId || pb.ConfirmedAt == nil {
			continue
		}
		if last == nil || pb.ConfirmedAt.After(*last.ConfirmedAt) || (pb.ConfirmedAt.Equal(*last.ConfirmedAt) && pb.ID > last.ID) {
			last = pb
		}
	}
	if last == nil {
		return decimal.Zero, false, nil
	}
	return last.BuyPricePerUnit, true, nil
}

// --- ItemStore ---

func (t *fakeTx) GetItem(ctx context.Context, tenant models.Tenant, itemId int) (*models.Item, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	item, ok := t.st.items[itemId]
	if !ok || item.BusinessId != tenant.BusinessId {
		return nil, models.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (t *fakeTx) LockItem(ctx context.Context, tenant models.Tenant, itemId int) (*models.Item, error) {
	return t.GetItem(ctx, tenant, itemId)
}

func (t *fakeTx) AddItemStock(ctx context.Context, tenant models.Tenant, itemId int, delta decimal.Decimal) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.st.failAddStock != nil {
		return t.st.failAddStock
	}
	item, ok := t.st.items[itemId]
	if !ok || item.BusinessId != tenant.BusinessId {
		return models.ErrItemNotFound
	}
	item.CurrentStock = item.CurrentStock.Add(delta)
	t.onUndo(func() { item.CurrentStock = item.CurrentStock.Sub(delta) })
	return nil
}

func (t *fakeTx) SetItemStock(ctx context.Context, tenant models.Tenant, itemId int, quantity decimal.Decimal) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	item, ok := t.st.items[itemId]
	if !ok || item.BusinessId != tenant.BusinessId {
		return models.ErrItemNotFound
	}
	old := item.CurrentStock
	item.CurrentStock = quantity
	t.onUndo(func() { item.CurrentStock = old })
	return nil
}

func (t *fakeTx) ListLowStockItems(ctx context.Context, tenant models.Tenant) ([]models.Item, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	var result []models.Item
	for _, item := range t.st.items {
		if item.BusinessId == tenant.BusinessId && item.Active() && item.IsLowStock() {
			result = append(result, *item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// --- SaleStore ---

func (t *fakeTx) CreateSale(ctx context.Context, tenant models.Tenant, sale *models.Sale) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.st.failCreateSale != nil {
		return t.st.failCreateSale
	}
	if sale.IdempotencyKey != nil {
		for _, s := range t.st.sales {
			if s.BusinessId == tenant.BusinessId && s.IdempotencyKey != nil && *s.IdempotencyKey == *sale.IdempotencyKey {
				return models.ErrDuplicateSale
			}
		}
	}
	sale.ID = t.st.id()
	sale.BusinessId = tenant.BusinessId
	for i := range sale.Items {
		sale.Items[i].ID = t.st.id()
		sale.Items[i].SaleId = sale.ID
		sale.Items[i].BusinessId = tenant.BusinessId
	}
	cp := *sale
	cp.Items = append([]models.SaleItem(nil), sale.Items...)
	t.st.sales = append(t.st.sales, &cp)
	t.onUndo(func() {
		for i, s := range t.st.sales {
			if s.ID == cp.ID {
				t.st.sales = append(t.st.sales[:i], t.st.sales[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (t *fakeTx) FindSaleByIdempotencyKey(ctx context.Context, tenant models.Tenant, key string) (*models.Sale, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	for _, s := range t.st.sales {
		if s.BusinessId == tenant.BusinessId && s.IdempotencyKey != nil && *s.IdempotencyKey == key {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// --- CustomerStore ---

func (t *fakeTx) CreateCustomer(ctx context.Context, tenant models.Tenant, customer *models.Customer) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	customer.ID = t.st.id()
	customer.BusinessId = tenant.BusinessId
	cp := *customer
	t.st.customers[cp.ID] = &cp
	t.onUndo(func() { delete(t.st.customers, cp.ID) })
	return nil
}

func (t *fakeTx) GetCustomer(ctx context.Context, tenant models.Tenant, customerId int) (*models.Customer, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	c, ok := t.st.customers[customerId]
	if !ok || c.BusinessId != tenant.BusinessId {
		return nil, models.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *fakeTx) AddCustomerBalance(ctx context.Context, tenant models.Tenant, customerId int, delta decimal.Decimal) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	c, ok := t.st.customers[customerId]
	if !ok || c.BusinessId != tenant.BusinessId {
		return models.ErrCustomerNotFound
	}
	c.CreditBalance = c.CreditBalance.Add(delta)
	t.onUndo(func() { c.CreditBalance = c.CreditBalance.Sub(delta) })
	return nil
}

func (t *fakeTx) CreateCreditEntry(ctx context.Context, tenant models.Tenant, entry *models.CustomerCreditEntry) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	entry.ID = t.st.id()
	entry.BusinessId = tenant.BusinessId
	cp := *entry
	t.st.credits = append(t.st.credits, &cp)
	t.onUndo(func() {
		t.st.credits = removeByID(t.st.credits, cp.ID, func(e *models.CustomerCreditEntry) int { return e.ID })
	})
	return nil
}

// --- JournalStore ---

func (t *fakeTx) CreateStockAdjustment(ctx context.Context, tenant models.Tenant, adj *models.StockAdjustment) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	adj.ID = t.st.id()
	adj.BusinessId = tenant.BusinessId
	cp := *adj
	t.st.adjustments = append(t.st.adjustments, &cp)
	t.onUndo(func() {
		t.st.adjustments = removeByID(t.st.adjustments, cp.ID, func(a *models.StockAdjustment) int { return a.ID })
	})
	return nil
}

func (t *fakeTx) CreatePurchaseBreakdown(ctx context.Context, tenant models.Tenant, pb *models.PurchaseBreakdown) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	pb.ID = t.st.id()
	pb.BusinessId = tenant.BusinessId
	cp := *pb
	t.st.breakdowns = append(t.st.breakdowns, &cp)
	t.onUndo(func() {
		t.st.breakdowns = removeByID(t.st.breakdowns, cp.ID, func(b *models.PurchaseBreakdown) int { return b.ID })
	})
	return nil
}

func (t *fakeTx) CreateOutboxMessage(ctx context.Context, tenant models.Tenant, msg *models.PubSubMessageRecord) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	msg.ID = t.st.id()
	msg.BusinessId = tenant.BusinessId
	cp := *msg
	t.st.outbox = append(t.st.outbox, &cp)
	t.onUndo(func() {
		t.st.outbox = removeByID(t.st.outbox, cp.ID, func(m *models.PubSubMessageRecord) int { return m.ID })
	})
	return nil
}

func removeByID[T any](rows []T, id int, idOf func(T) int) []T {
	for i, r := range rows {
		if idOf(r) == id {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

var errInjected = errors.New("injected write failure")
