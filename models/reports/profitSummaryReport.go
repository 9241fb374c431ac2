package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type ProfitGroupBy string

const (
	ProfitGroupByNone   ProfitGroupBy = "none"
	ProfitGroupByItem   ProfitGroupBy = "item"
	ProfitGroupByParent ProfitGroupBy = "parent"
)

var ErrInvalidGroupBy = errors.New("invalid profit group by")
var ErrInvalidDateRange = errors.New("to date must be after from date")

// ProfitFilter selects sale lines by sale date in [FromDate, ToDate).
// A zero ToDate leaves the range open-ended.
type ProfitFilter struct {
	FromDate     time.Time
	ToDate       time.Time
	ItemIds      []int
	ParentItemId *int
	GroupBy      ProfitGroupBy
}

func (f ProfitFilter) validate() error {
	switch f.GroupBy {
	case "", ProfitGroupByNone, ProfitGroupByItem, ProfitGroupByParent:
	default:
		return ErrInvalidGroupBy
	}
	if !f.ToDate.IsZero() && !f.ToDate.After(f.FromDate) {
		return ErrInvalidDateRange
	}
	return nil
}

func (f ProfitFilter) cacheKey(businessId string) string {
	ids := utils.UniqueSlice(f.ItemIds)
	sort.Ints(ids)
	parent := utils.DereferencePtr(f.ParentItemId)
	return fmt.Sprintf("%s%d:%d:%s:%d:%v", models.ProfitSummaryCachePrefix(businessId),
		f.FromDate.UTC().Unix(), f.ToDate.UTC().Unix(), f.groupBy(), parent, ids)
}

func (f ProfitFilter) groupBy() ProfitGroupBy {
	if f.GroupBy == "" {
		return ProfitGroupByNone
	}
	return f.GroupBy
}

// ProfitLine is one frozen sale line with the item fields needed for grouping.
type ProfitLine struct {
	SaleId           int             `json:"sale_id"`
	ItemId           int             `json:"item_id"`
	ItemName         string          `json:"item_name"`
	ParentItemId     *int            `json:"parent_item_id"`
	ParentItemName   *string         `json:"parent_item_name"`
	QuantitySold     decimal.Decimal `json:"quantity_sold"`
	SellPricePerUnit decimal.Decimal `json:"sell_price_per_unit"`
	BuyPricePerUnit  decimal.Decimal `json:"buy_price_per_unit"`
	Profit           decimal.Decimal `json:"profit"`
	CostSource       string          `json:"cost_source"`
}

func (l ProfitLine) groupId() int {
	if l.ParentItemId != nil && *l.ParentItemId > 0 {
		return *l.ParentItemId
	}
	return l.ItemId
}

func (l ProfitLine) groupName() string {
	if l.ParentItemId != nil && *l.ParentItemId > 0 {
		if l.ParentItemName != nil {
			return *l.ParentItemName
		}
		return ""
	}
	return l.ItemName
}

type ProfitSummaryResponse struct {
	GroupId          int             `json:"groupId"`
	GroupName        string          `json:"groupName"`
	LineCount        int             `json:"lineCount"`
	QuantitySold     decimal.Decimal `json:"quantitySold"`
	Revenue          decimal.Decimal `json:"revenue"`
	Cost             decimal.Decimal `json:"cost"`
	Profit           decimal.Decimal `json:"profit"`
	Margin           decimal.Decimal `json:"margin"`
	UnknownCostLines int             `json:"unknownCostLines"`
}

// ProfitLineSource loads sale lines for one tenant and date range.
type ProfitLineSource interface {
	ProfitLines(ctx context.Context, tenant models.Tenant, filter ProfitFilter) ([]ProfitLine, error)
}

type GormProfitLineSource struct {
	DB *gorm.DB
}

func (s GormProfitLineSource) ProfitLines(ctx context.Context, tenant models.Tenant, filter ProfitFilter) ([]ProfitLine, error) {
	db := s.DB
	if db == nil {
		db = config.GetDB()
	}
	q := db.WithContext(tenant.Context(ctx)).
		Table("sale_items AS si").
		Select(`si.sale_id, si.item_id, i.name AS item_name, i.parent_item_id, p.name AS parent_item_name,
			si.quantity_sold, si.sell_price_per_unit, si.buy_price_per_unit, si.profit, si.cost_source`).
		Joins("JOIN sales AS s ON s.id = si.sale_id AND s.business_id = si.business_id").
		Joins("JOIN items AS i ON i.id = si.item_id AND i.business_id = si.business_id").
		Joins("LEFT JOIN items AS p ON p.id = i.parent_item_id AND p.business_id = i.business_id").
		Where("si.business_id = ? AND s.sale_date >= ?", tenant.BusinessId, filter.FromDate.UTC())
	if !filter.ToDate.IsZero() {
		q = q.Where("s.sale_date < ?", filter.ToDate.UTC())
	}
	if len(filter.ItemIds) > 0 {
		q = q.Where("si.item_id IN ?", filter.ItemIds)
	}
	if filter.ParentItemId != nil {
		q = q.Where("COALESCE(i.parent_item_id, i.id) = ?", *filter.ParentItemId)
	}
	var lines []ProfitLine
	if err := q.Order("si.id ASC").Scan(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// GetProfitSummary aggregates stored sale lines. Frozen per-line profit is
// summed as is; it is never recomputed from current prices.
func GetProfitSummary(ctx context.Context, source ProfitLineSource, tenant models.Tenant, filter ProfitFilter) (rows []*ProfitSummaryResponse, err error) {
	ctx, span := tracer.Start(ctx, "GetProfitSummary", trace.WithAttributes(
		attribute.String("business_id", tenant.BusinessId),
		attribute.String("group_by", string(filter.groupBy())),
	))
	defer func() { endSpan(span, err) }()

	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer logSlowReport(ctx, "profit_summary_report", start, map[string]any{
		"from_date": filter.FromDate.UTC().Format(time.RFC3339),
		"to_date":   filter.ToDate.UTC().Format(time.RFC3339),
		"group_by":  string(filter.groupBy()),
	})

	load := func() ([]*ProfitSummaryResponse, error) {
		lines, err := source.ProfitLines(ctx, tenant, filter)
		if err != nil {
			return nil, err
		}
		return SummarizeProfit(FilterProfitLines(lines, filter), filter.groupBy()), nil
	}

	if config.ReportCacheEnabled() {
		key := filter.cacheKey(tenant.BusinessId)
		var cached []*ProfitSummaryResponse
		if ok, cacheErr := cacheGet(key, &cached); cacheErr == nil && ok && cached != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
		rows, err = load()
		if err != nil {
			return nil, err
		}
		_ = cacheSet(key, rows, reportCacheTTL())
		return rows, nil
	}
	return load()
}

// FilterProfitLines applies the item and parent filters.
func FilterProfitLines(lines []ProfitLine, filter ProfitFilter) []ProfitLine {
	if len(filter.ItemIds) == 0 && filter.ParentItemId == nil {
		return lines
	}
	wanted := make(map[int]bool, len(filter.ItemIds))
	for _, id := range filter.ItemIds {
		wanted[id] = true
	}
	var out []ProfitLine
	for _, l := range lines {
		if len(wanted) > 0 && !wanted[l.ItemId] {
			continue
		}
		if filter.ParentItemId != nil && l.groupId() != *filter.ParentItemId {
			continue
		}
		out = append(out, l)
	}
	return out
}

// SummarizeProfit groups lines and sums quantity, revenue, cost and profit.
// With ProfitGroupByNone it always returns exactly one total row.
func SummarizeProfit(lines []ProfitLine, groupBy ProfitGroupBy) []*ProfitSummaryResponse {
	groups := map[int]*ProfitSummaryResponse{}
	var order []int
	get := func(id int, name string) *ProfitSummaryResponse {
		if g, ok := groups[id]; ok {
			return g
		}
		g := &ProfitSummaryResponse{
			GroupId:      id,
			GroupName:    name,
			QuantitySold: decimal.Zero,
			Revenue:      decimal.Zero,
			Cost:         decimal.Zero,
			Profit:       decimal.Zero,
			Margin:       decimal.Zero,
		}
		groups[id] = g
		order = append(order, id)
		return g
	}
	if groupBy == ProfitGroupByNone || groupBy == "" {
		get(0, "")
	}

	for _, l := range lines {
		var g *ProfitSummaryResponse
		switch groupBy {
		case ProfitGroupByItem:
			g = get(l.ItemId, l.ItemName)
		case ProfitGroupByParent:
			g = get(l.groupId(), l.groupName())
		default:
			g = get(0, "")
		}
		g.LineCount++
		g.QuantitySold = g.QuantitySold.Add(l.QuantitySold)
		g.Revenue = g.Revenue.Add(l.QuantitySold.Mul(l.SellPricePerUnit))
		g.Cost = g.Cost.Add(l.QuantitySold.Mul(l.BuyPricePerUnit))
		g.Profit = g.Profit.Add(l.Profit)
		if strings.EqualFold(l.CostSource, string(models.CostSourceUnknown)) {
			g.UnknownCostLines++
		}
	}

	sort.Ints(order)
	result := make([]*ProfitSummaryResponse, 0, len(order))
	for _, id := range order {
		g := groups[id]
		g.Revenue = g.Revenue.Round(models.MoneyPlaces)
		g.Cost = g.Cost.Round(models.MoneyPlaces)
		if g.Revenue.IsPositive() {
			g.Margin = g.Profit.Div(g.Revenue).Mul(decimal.NewFromInt(100)).Round(2)
		}
		result = append(result, g)
	}
	return result
}
