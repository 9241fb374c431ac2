package workflow

import (
	"context"

	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/shopspring/decimal"
)

// CostResolution is the unit cost attributed to quantity no live batch covered.
type CostResolution struct {
	UnitCost decimal.Decimal
	Source   models.CostSource
}

func (r CostResolution) Known() bool {
	return r.Source != models.CostSourceUnknown
}

// ResolveFallbackCost walks the fallback chain once per unresolved remainder:
// the most recently received batch (even if depleted), then the most recent
// confirmed purchase breakdown, then zero. An unknown cost is not an error.
func ResolveFallbackCost(ctx context.Context, history models.CostHistory, tenant models.Tenant, itemId int) (CostResolution, error) {
	cost, ok, err := history.LastBatchCost(ctx, tenant, itemId)
	if err != nil {
		return CostResolution{}, err
	}
	if ok {
		return CostResolution{UnitCost: cost, Source: models.CostSourceLastBatch}, nil
	}

	cost, ok, err = history.LastBreakdownCost(ctx, tenant, itemId)
	if err != nil {
		return CostResolution{}, err
	}
	if ok {
		return CostResolution{UnitCost: cost, Source: models.CostSourceBreakdown}, nil
	}

	return CostResolution{UnitCost: decimal.Zero, Source: models.CostSourceUnknown}, nil
}
