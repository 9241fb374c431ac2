package models

import (
	"context"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BatchLedger interface {
	// AvailableBatches returns open batches oldest first, fetched lazily
	// until their remainders cover quantityNeeded (or none are left).
	AvailableBatches(ctx context.Context, tenant Tenant, itemId int, quantityNeeded decimal.Decimal) ([]InventoryBatch, error)
	// ConsumeBatch reports false when the batch no longer holds quantity.
	ConsumeBatch(ctx context.Context, tenant Tenant, batchId int, quantity decimal.Decimal) (bool, error)
	CreateBatch(ctx context.Context, tenant Tenant, batch *InventoryBatch) error
	BatchValuation(ctx context.Context, tenant Tenant, itemId int) (BatchValuation, error)
}

type CostHistory interface {
	LastBatchCost(ctx context.Context, tenant Tenant, itemId int) (decimal.Decimal, bool, error)
	LastBreakdownCost(ctx context.Context, tenant Tenant, itemId int) (decimal.Decimal, bool, error)
}

type ItemStore interface {
	GetItem(ctx context.Context, tenant Tenant, itemId int) (*Item, error)
	// LockItem reads the item and holds its row until the transaction ends.
	LockItem(ctx context.Context, tenant Tenant, itemId int) (*Item, error)
	AddItemStock(ctx context.Context, tenant Tenant, itemId int, delta decimal.Decimal) error
	SetItemStock(ctx context.Context, tenant Tenant, itemId int, quantity decimal.Decimal) error
	ListLowStockItems(ctx context.Context, tenant Tenant) ([]Item, error)
}

type SaleStore interface {
	CreateSale(ctx context.Context, tenant Tenant, sale *Sale) error
	// FindSaleByIdempotencyKey returns nil, nil when no sale carries key.
	FindSaleByIdempotencyKey(ctx context.Context, tenant Tenant, key string) (*Sale, error)
}

type CustomerStore interface {
	CreateCustomer(ctx context.Context, tenant Tenant, customer *Customer) error
	GetCustomer(ctx context.Context, tenant Tenant, customerId int) (*Customer, error)
	AddCustomerBalance(ctx context.Context, tenant Tenant, customerId int, delta decimal.Decimal) error
	CreateCreditEntry(ctx context.Context, tenant Tenant, entry *CustomerCreditEntry) error
}

type JournalStore interface {
	CreateStockAdjustment(ctx context.Context, tenant Tenant, adj *StockAdjustment) error
	CreatePurchaseBreakdown(ctx context.Context, tenant Tenant, pb *PurchaseBreakdown) error
	CreateOutboxMessage(ctx context.Context, tenant Tenant, msg *PubSubMessageRecord) error
}

// LedgerTx is the set of ledger operations available inside one transaction.
type LedgerTx interface {
	BatchLedger
	CostHistory
	ItemStore
	SaleStore
	CustomerStore
	JournalStore
}

type LedgerStore interface {
	LedgerTx
	// Transaction commits all writes made through tx, or none of them.
	Transaction(ctx context.Context, fn func(tx LedgerTx) error) error
}

// GormLedgerStore implements LedgerStore on MySQL.
type GormLedgerStore struct {
	gormLedgerTx
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	if db == nil {
		db = config.GetDB()
	}
	return &GormLedgerStore{gormLedgerTx{db: db, pageSize: config.AvailableBatchPageSize()}}
}

func (s *GormLedgerStore) DB() *gorm.DB {
	return s.db
}

func (s *GormLedgerStore) Transaction(ctx context.Context, fn func(tx LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{db: tx, pageSize: s.pageSize})
	})
}

type gormLedgerTx struct {
	db       *gorm.DB
	pageSize int
}

func (s *gormLedgerTx) AvailableBatches(ctx context.Context, tenant Tenant, itemId int, quantityNeeded decimal.Decimal) ([]InventoryBatch, error) {
	return getAvailableBatches(tenant.Context(ctx), s.db, tenant.BusinessId, itemId, quantityNeeded, s.pageSize)
}

func (s *gormLedgerTx) ConsumeBatch(ctx context.Context, tenant Tenant, batchId int, quantity decimal.Decimal) (bool, error) {
	return consumeBatch(tenant.Context(ctx), s.db, tenant.BusinessId, batchId, quantity)
}

func (s *gormLedgerTx) CreateBatch(ctx context.Context, tenant Tenant, batch *InventoryBatch) error {
	batch.BusinessId = tenant.BusinessId
	return createBatch(tenant.Context(ctx), s.db, batch)
}

func (s *gormLedgerTx) BatchValuation(ctx context.Context, tenant Tenant, itemId int) (BatchValuation, error) {
	return getBatchValuation(tenant.Context(ctx), s.db, tenant.BusinessId, itemId)
}

func (s *gormLedgerTx) LastBatchCost(ctx context.Context, tenant Tenant, itemId int) (decimal.Decimal, bool, error) {
	return lastBatchCost(tenant.Context(ctx), s.db, tenant.BusinessId, itemId)
}

func (s *gormLedgerTx) LastBreakdownCost(ctx context.Context, tenant Tenant, itemId int) (decimal.Decimal, bool, error) {
	return lastBreakdownCost(tenant.Context(ctx), s.db, tenant.BusinessId, itemId)
}

func (s *gormLedgerTx) GetItem(ctx context.Context, tenant Tenant, itemId int) (*Item, error) {
	return getItem(tenant.Context(ctx), s.db, tenant.BusinessId, itemId, false)
}

func (s *gormLedgerTx) LockItem(ctx context.Context, tenant Tenant, itemId int) (*Item, error) {
	return getItem(tenant.Context(ctx), s.db, tenant.BusinessId, itemId, true)
}

func (s *gormLedgerTx) AddItemStock(ctx context.Context, tenant Tenant, itemId int, delta decimal.Decimal) error {
	return addItemStock(tenant.Context(ctx), s.db, tenant.BusinessId, itemId, delta)
}

func (s *gormLedgerTx) SetItemStock(ctx context.Context, tenant Tenant, itemId int, quantity decimal.Decimal) error {
	return setItemStock(tenant.Context(ctx), s.db, tenant.BusinessId, itemId, quantity)
}

func (s *gormLedgerTx) ListLowStockItems(ctx context.Context, tenant Tenant) ([]Item, error) {
	return listLowStockItems(tenant.Context(ctx), s.db, tenant.BusinessId)
}

func (s *gormLedgerTx) CreateSale(ctx context.Context, tenant Tenant, sale *Sale) error {
	sale.BusinessId = tenant.BusinessId
	for i := range sale.Items {
		sale.Items[i].BusinessId = tenant.BusinessId
	}
	return createSale(tenant.Context(ctx), s.db, sale)
}

func (s *gormLedgerTx) FindSaleByIdempotencyKey(ctx context.Context, tenant Tenant, key string) (*Sale, error) {
	return findSaleByIdempotencyKey(tenant.Context(ctx), s.db, tenant.BusinessId, key)
}

func (s *gormLedgerTx) CreateCustomer(ctx context.Context, tenant Tenant, customer *Customer) error {
	customer.BusinessId = tenant.BusinessId
	return createCustomer(tenant.Context(ctx), s.db, customer)
}

func (s *gormLedgerTx) GetCustomer(ctx context.Context, tenant Tenant, customerId int) (*Customer, error) {
	return getCustomer(tenant.Context(ctx), s.db, tenant.BusinessId, customerId)
}

func (s *gormLedgerTx) AddCustomerBalance(ctx context.Context, tenant Tenant, customerId int, delta decimal.Decimal) error {
	return addCustomerBalance(tenant.Context(ctx), s.db, tenant.BusinessId, customerId, delta)
}

func (s *gormLedgerTx) CreateCreditEntry(ctx context.Context, tenant Tenant, entry *CustomerCreditEntry) error {
	entry.BusinessId = tenant.BusinessId
	return createCreditEntry(tenant.Context(ctx), s.db, entry)
}

func (s *gormLedgerTx) CreateStockAdjustment(ctx context.Context, tenant Tenant, adj *StockAdjustment) error {
	adj.BusinessId = tenant.BusinessId
	return createStockAdjustment(tenant.Context(ctx), s.db, adj)
}

func (s *gormLedgerTx) CreatePurchaseBreakdown(ctx context.Context, tenant Tenant, pb *PurchaseBreakdown) error {
	pb.BusinessId = tenant.BusinessId
	return createPurchaseBreakdown(tenant.Context(ctx), s.db, pb)
}

func (s *gormLedgerTx) CreateOutboxMessage(ctx context.Context, tenant Tenant, msg *PubSubMessageRecord) error {
	msg.BusinessId = tenant.BusinessId
	return createOutboxMessage(tenant.Context(ctx), s.db, msg)
}
