package models

import "strings"

type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCredit      PaymentMethod = "credit"
)

func (t PaymentMethod) IsValid() bool {
	switch t {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodCredit:
		return true
	}
	return false
}

// ParsePaymentMethod accepts any casing ("CASH", "Mobile_Money").
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrMissingPaymentMethod
	}
	m := PaymentMethod(s)
	if !m.IsValid() {
		return "", ErrInvalidPaymentMethod
	}
	return m, nil
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
)

type UnitType string

const (
	UnitTypePiece      UnitType = "pcs"
	UnitTypeKilogram   UnitType = "kg"
	UnitTypeGram       UnitType = "g"
	UnitTypeLitre      UnitType = "l"
	UnitTypeMillilitre UnitType = "ml"
	UnitTypePack       UnitType = "pack"
)

func (t UnitType) IsValid() bool {
	switch t {
	case UnitTypePiece, UnitTypeKilogram, UnitTypeGram, UnitTypeLitre, UnitTypeMillilitre, UnitTypePack:
		return true
	}
	return false
}

// AdjustmentReason is the enumerated reason code on stock adjustments and stock takes.
type AdjustmentReason string

const (
	AdjustmentReasonSpoilage   AdjustmentReason = "spoilage"
	AdjustmentReasonTheft      AdjustmentReason = "theft"
	AdjustmentReasonDamage     AdjustmentReason = "damage"
	AdjustmentReasonCorrection AdjustmentReason = "correction"
	AdjustmentReasonRestock    AdjustmentReason = "restock"
	AdjustmentReasonStockCount AdjustmentReason = "stock_count"
)

func (t AdjustmentReason) IsValid() bool {
	switch t {
	case AdjustmentReasonSpoilage, AdjustmentReasonTheft, AdjustmentReasonDamage,
		AdjustmentReasonCorrection, AdjustmentReasonRestock, AdjustmentReasonStockCount:
		return true
	}
	return false
}

func ParseAdjustmentReason(s string) (AdjustmentReason, error) {
	r := AdjustmentReason(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", ErrInvalidReason
	}
	return r, nil
}

type StockAdjustmentKind string

const (
	StockAdjustmentKindAdjustment StockAdjustmentKind = "adjustment"
	StockAdjustmentKindStockTake  StockAdjustmentKind = "stock_take"
)

// CostSource records which link of the fallback chain priced a sale line.
type CostSource string

const (
	CostSourceBatch     CostSource = "batch"
	CostSourceLastBatch CostSource = "last_batch"
	CostSourceBreakdown CostSource = "breakdown"
	CostSourceUnknown   CostSource = "unknown"
)

type CreditEntryType string

const (
	CreditEntryTypeCharge  CreditEntryType = "charge"
	CreditEntryTypePayment CreditEntryType = "payment"
)
