package refund

import (
	"fmt"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// CoinsPerCurrencyUnit is the fixed coin exchange rate. Pickup-charge coin
	// display and refund coin credit both go through ToCoins.
	CoinsPerCurrencyUnit = 5
	// PercentPerQualityPoint maps a quality score onto a default refund percentage.
	PercentPerQualityPoint = 10

	MinQualityScore = 1
	MaxQualityScore = 10

	moneyScale = 2
)

var (
	hundred       = decimal.NewFromInt(100)
	coinsPerUnit  = decimal.NewFromInt(CoinsPerCurrencyUnit)
	percentFactor = decimal.NewFromInt(PercentPerQualityPoint)
)

type Deduction struct {
	Type   enums.DeductionType
	Amount decimal.Decimal
	Reason string
}

// Line is one returned item.
type Line struct {
	OriginalPrice decimal.Decimal
	Quantity      int
}

// Input carries everything a refund depends on. RefundPercentage and
// FinalAmount are optional overrides.
type Input struct {
	OriginalPrice    decimal.Decimal
	Quantity         int
	QualityScore     int
	RefundPercentage *decimal.Decimal
	Deductions       []Deduction
	FinalAmount      *decimal.Decimal
}

type Result struct {
	GrossAmount            decimal.Decimal
	RefundPercentage       decimal.Decimal
	BaseAmount             decimal.Decimal
	DeductionsTotal        decimal.Decimal
	NetAmount              decimal.Decimal
	CoinEquivalent         decimal.Decimal
	Eligibility            enums.RefundEligibility
	RequiresManualOverride bool
	AmountOverridden       bool
}

// Compute derives the refund for a single item line.
func Compute(in Input) (Result, error) {
	return ComputeLines([]Line{{OriginalPrice: in.OriginalPrice, Quantity: in.Quantity}}, Adjustments{
		QualityScore:     in.QualityScore,
		RefundPercentage: in.RefundPercentage,
		Deductions:       in.Deductions,
		FinalAmount:      in.FinalAmount,
	})
}

// Adjustments are the return-level inputs shared by every line.
type Adjustments struct {
	QualityScore     int
	RefundPercentage *decimal.Decimal
	Deductions       []Deduction
	FinalAmount      *decimal.Decimal
}

// ComputeLines sums the gross value of every line and applies the
// return-level percentage, override and deductions once.
func ComputeLines(lines []Line, adj Adjustments) (Result, error) {
	if len(lines) == 0 {
		return Result{}, validation("at least one item line is required", "items")
	}

	gross := decimal.Zero
	for i, line := range lines {
		if line.OriginalPrice.IsNegative() {
			return Result{}, validation("original price must not be negative", fmt.Sprintf("items[%d].originalPrice", i))
		}
		if line.Quantity < 1 {
			return Result{}, validation("quantity must be at least 1", fmt.Sprintf("items[%d].qty", i))
		}
		gross = gross.Add(line.OriginalPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	eligibility, err := EligibilityForScore(adj.QualityScore)
	if err != nil {
		return Result{}, err
	}

	pct, err := PercentageForScore(adj.QualityScore)
	if err != nil {
		return Result{}, err
	}
	if adj.RefundPercentage != nil {
		if adj.RefundPercentage.IsNegative() || adj.RefundPercentage.GreaterThan(hundred) {
			return Result{}, validation("refund percentage must be between 0 and 100", "refundPercentage")
		}
		pct = *adj.RefundPercentage
	}

	base := gross.Mul(pct).Div(hundred)
	overridden := false
	if adj.FinalAmount != nil {
		if adj.FinalAmount.IsNegative() {
			return Result{}, validation("final amount must not be negative", "finalAmount")
		}
		if adj.FinalAmount.GreaterThan(gross) {
			return Result{}, validation("final amount must not exceed the gross amount", "finalAmount")
		}
		base = *adj.FinalAmount
		overridden = true
	}

	deductions := decimal.Zero
	for i, d := range adj.Deductions {
		if d.Amount.IsNegative() {
			return Result{}, validation("deduction amount must not be negative", fmt.Sprintf("deductions[%d].amount", i))
		}
		deductions = deductions.Add(d.Amount)
	}

	net := base.Sub(deductions)
	if net.IsNegative() {
		net = decimal.Zero
	}
	net = net.Round(moneyScale)

	return Result{
		GrossAmount:            gross.Round(moneyScale),
		RefundPercentage:       pct,
		BaseAmount:             base.Round(moneyScale),
		DeductionsTotal:        deductions.Round(moneyScale),
		NetAmount:              net,
		CoinEquivalent:         ToCoins(net),
		Eligibility:            eligibility,
		RequiresManualOverride: eligibility == enums.EligibilityPoor,
		AmountOverridden:       overridden,
	}, nil
}

// PercentageForScore returns min(100, score*10).
func PercentageForScore(score int) (decimal.Decimal, error) {
	if err := checkScore(score); err != nil {
		return decimal.Zero, err
	}
	pct := decimal.NewFromInt(int64(score)).Mul(percentFactor)
	return decimal.Min(pct, hundred), nil
}

// EligibilityForScore buckets a quality score. Poor scores need a manual override.
func EligibilityForScore(score int) (enums.RefundEligibility, error) {
	if err := checkScore(score); err != nil {
		return "", err
	}
	switch {
	case score <= 3:
		return enums.EligibilityPoor, nil
	case score <= 6:
		return enums.EligibilityFair, nil
	case score <= 8:
		return enums.EligibilityGood, nil
	default:
		return enums.EligibilityExcellent, nil
	}
}

// ToCoins converts a currency amount into platform coins.
func ToCoins(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(coinsPerUnit)
}

func checkScore(score int) error {
	if score < MinQualityScore || score > MaxQualityScore {
		return validation(fmt.Sprintf("quality score must be between %d and %d", MinQualityScore, MaxQualityScore), "qualityScore")
	}
	return nil
}

func validation(msg, field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
