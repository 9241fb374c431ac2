package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type countingLocker struct {
	locked   int
	released int
}

func (c *countingLocker) LockItem(ctx context.Context, businessId string, itemId int) func() {
	c.locked++
	return func() { c.released++ }
}

func newTestReconciler(l *fakeLedger, locker ItemLocker) *StockReconciler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := NewStockReconciler(l, locker, logger)
	r.Now = func() time.Time { return t1 }
	return r
}

func TestAdjustStock_AppliesSignedDeltaWithoutTouchingBatches(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1", UserId: 9}
	item := l.addItem(tenant.BusinessId, 20, 10)
	b := l.addBatch(tenant.BusinessId, item.ID, 10, 10, t1)
	locker := &countingLocker{}
	r := newTestReconciler(l, locker)

	adj, err := r.AdjustStock(context.Background(), tenant, &NewStockAdjustment{
		ItemId: item.ID,
		Delta:  dec(-3),
		Reason: "spoilage",
		Notes:  "milk expired",
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if got := l.item(item.ID).CurrentStock; !got.Equal(dec(7)) {
		t.Fatalf("current stock: got %s want 7", got)
	}
	if got := l.batch(b.ID).QuantityRemaining; !got.Equal(dec(10)) {
		t.Fatalf("batch touched by adjustment: remaining %s", got)
	}
	if adj.Kind != models.StockAdjustmentKindAdjustment || adj.Reason != models.AdjustmentReasonSpoilage ||
		!adj.QuantityBefore.Equal(dec(10)) || !adj.QuantityAfter.Equal(dec(7)) || !adj.Difference.Equal(dec(-3)) ||
		adj.CreatedBy != 9 || adj.BatchId != nil {
		t.Fatalf("unexpected audit row: %+v", adj)
	}
	if locker.locked != 1 || locker.released != 1 {
		t.Fatalf("lock not paired: locked=%d released=%d", locker.locked, locker.released)
	}

	// stock may go negative
	if _, err := r.AdjustStock(context.Background(), tenant, &NewStockAdjustment{ItemId: item.ID, Delta: dec(-20), Reason: "theft"}); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if got := l.item(item.ID).CurrentStock; !got.Equal(dec(-13)) {
		t.Fatalf("current stock: got %s want -13", got)
	}
}

func TestAdjustStock_PositiveDeltaWithUnitCostAddsBatch(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1"}
	item := l.addItem(tenant.BusinessId, 20, 2)
	cost := dec(7)

	adj, err := newTestReconciler(l, nil).AdjustStock(context.Background(), tenant, &NewStockAdjustment{
		ItemId:   item.ID,
		Delta:    dec(5),
		Reason:   "restock",
		UnitCost: &cost,
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if adj.BatchId == nil {
		t.Fatalf("expected a batch for costed stock addition")
	}
	b := l.batch(*adj.BatchId)
	if !b.InitialQuantity.Equal(dec(5)) || !b.QuantityRemaining.Equal(dec(5)) || !b.BuyPricePerUnit.Equal(cost) || !b.ReceivedAt.Equal(t1) {
		t.Fatalf("unexpected batch: %+v", b)
	}
}

func TestAdjustStock_Validation(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1"}
	item := l.addItem(tenant.BusinessId, 20, 2)
	negCost := dec(-1)
	fineCost := decimal.RequireFromString("3.14159")
	r := newTestReconciler(l, nil)

	cases := []struct {
		name  string
		input *NewStockAdjustment
		want  error
	}{
		{"zero delta", &NewStockAdjustment{ItemId: item.ID, Reason: "damage"}, models.ErrInvalidQuantity},
		{"delta below storage scale", &NewStockAdjustment{ItemId: item.ID, Delta: decimal.RequireFromString("0.00004"), Reason: "damage"}, models.ErrInvalidQuantity},
		{"unit cost with five places", &NewStockAdjustment{ItemId: item.ID, Delta: dec(1), Reason: "correction", UnitCost: &fineCost}, models.ErrInvalidBuyPrice},
		{"bad reason", &NewStockAdjustment{ItemId: item.ID, Delta: dec(1), Reason: "because"}, models.ErrInvalidReason},
		{"missing reason", &NewStockAdjustment{ItemId: item.ID, Delta: dec(1)}, models.ErrInvalidReason},
		{"unknown item", &NewStockAdjustment{ItemId: 999, Delta: dec(1), Reason: "correction"}, models.ErrItemNotFound},
		{"negative unit cost", &NewStockAdjustment{ItemId: item.ID, Delta: dec(1), Reason: "correction", UnitCost: &negCost}, models.ErrInvalidBuyPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.AdjustStock(context.Background(), tenant, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
	if _, err := r.AdjustStock(context.Background(), models.Tenant{BusinessId: "biz-2"}, &NewStockAdjustment{ItemId: item.ID, Delta: dec(1), Reason: "correction"}); !errors.Is(err, models.ErrItemNotFound) {
		t.Fatalf("cross-tenant adjustment: got %v", err)
	}
	if got := l.item(item.ID).CurrentStock; !got.Equal(dec(2)) {
		t.Fatalf("stock changed by rejected adjustments: %s", got)
	}
	if len(l.st.adjustments) != 0 {
		t.Fatalf("audit rows written for rejected adjustments: %d", len(l.st.adjustments))
	}
}

func TestStockTake_SetsCountedQuantityAndReturnsDifference(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1"}
	item := l.addItem(tenant.BusinessId, 20, 12)
	b := l.addBatch(tenant.BusinessId, item.ID, 12, 10, t1)
	r := newTestReconciler(l, nil)

	res, err := r.StockTake(context.Background(), tenant, &NewStockTake{ItemId: item.ID, ActualQuantity: dec(9)})
	if err != nil {
		t.Fatalf("StockTake: %v", err)
	}
	if !res.Difference.Equal(dec(-3)) || !res.QuantityBefore.Equal(dec(12)) || !res.QuantityAfter.Equal(dec(9)) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Adjustment.Kind != models.StockAdjustmentKindStockTake || res.Adjustment.Reason != models.AdjustmentReasonStockCount {
		t.Fatalf("unexpected audit row: %+v", res.Adjustment)
	}
	if got := l.item(item.ID).CurrentStock; !got.Equal(dec(9)) {
		t.Fatalf("current stock: got %s want 9", got)
	}
	if got := l.batch(b.ID).QuantityRemaining; !got.Equal(dec(12)) {
		t.Fatalf("batch touched by stock take: %s", got)
	}

	// the counters now disagree and stay that way
	drift, err := GetStockDrift(context.Background(), l, tenant, item.ID)
	if err != nil {
		t.Fatalf("GetStockDrift: %v", err)
	}
	if !drift.Drift.Equal(dec(-3)) {
		t.Fatalf("drift: got %s want -3", drift.Drift)
	}
}

func TestStockTake_IncreaseWithUnitCostAddsBatch(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1"}
	item := l.addItem(tenant.BusinessId, 20, 4)
	cost := decimal.RequireFromString("6.5")

	res, err := newTestReconciler(l, nil).StockTake(context.Background(), tenant, &NewStockTake{
		ItemId:         item.ID,
		ActualQuantity: dec(10),
		Reason:         "correction",
		UnitCost:       &cost,
	})
	if err != nil {
		t.Fatalf("StockTake: %v", err)
	}
	if !res.Difference.Equal(dec(6)) || res.Adjustment.BatchId == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if b := l.batch(*res.Adjustment.BatchId); !b.QuantityRemaining.Equal(dec(6)) || !b.BuyPricePerUnit.Equal(cost) {
		t.Fatalf("unexpected batch: %+v", b)
	}

	// a decrease never creates or consumes a batch, even with a cost
	res, err = newTestReconciler(l, nil).StockTake(context.Background(), tenant, &NewStockTake{
		ItemId: item.ID, ActualQuantity: dec(8), UnitCost: &cost,
	})
	if err != nil {
		t.Fatalf("StockTake: %v", err)
	}
	if res.Adjustment.BatchId != nil || len(l.st.batches) != 1 {
		t.Fatalf("decrease created a batch: %+v", res.Adjustment)
	}
}

func TestStockTake_Validation(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1"}
	item := l.addItem(tenant.BusinessId, 20, 4)
	r := newTestReconciler(l, nil)

	if _, err := r.StockTake(context.Background(), tenant, &NewStockTake{ItemId: item.ID, ActualQuantity: dec(-1)}); !errors.Is(err, models.ErrInvalidQuantity) {
		t.Fatalf("negative count: got %v", err)
	}
	if _, err := r.StockTake(context.Background(), tenant, &NewStockTake{ItemId: item.ID, ActualQuantity: decimal.RequireFromString("3.99999")}); !errors.Is(err, models.ErrInvalidQuantity) {
		t.Fatalf("count beyond storage scale: got %v", err)
	}
	if _, err := r.StockTake(context.Background(), tenant, &NewStockTake{ItemId: item.ID, ActualQuantity: dec(1), Reason: "guess"}); !errors.Is(err, models.ErrInvalidReason) {
		t.Fatalf("bad reason: got %v", err)
	}
	if _, err := r.StockTake(context.Background(), models.Tenant{}, &NewStockTake{ItemId: item.ID}); !errors.Is(err, models.ErrTenantRequired) {
		t.Fatalf("missing tenant: got %v", err)
	}
	res, err := r.StockTake(context.Background(), tenant, &NewStockTake{ItemId: item.ID, ActualQuantity: dec(0)})
	if err != nil {
		t.Fatalf("count of zero should be allowed: %v", err)
	}
	if !res.Difference.Equal(dec(-4)) {
		t.Fatalf("difference: got %s want -4", res.Difference)
	}
}

func TestNewRedisItemLocker_NilClientIsNoop(t *testing.T) {
	locker := NewRedisItemLocker(nil, nil)
	release := locker.LockItem(context.Background(), "biz-1", 1)
	if release == nil {
		t.Fatalf("release func must not be nil")
	}
	release()
	if got := itemLockKey("biz-1", 42); got != "lock:item_stock:biz-1:42" {
		t.Fatalf("lock key: got %q", got)
	}
}
