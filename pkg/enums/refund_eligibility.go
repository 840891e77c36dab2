package enums

// RefundEligibility buckets a 1-10 quality score.
type RefundEligibility string

const (
	EligibilityPoor      RefundEligibility = "poor"
	EligibilityFair      RefundEligibility = "fair"
	EligibilityGood      RefundEligibility = "good"
	EligibilityExcellent RefundEligibility = "excellent"
)

func (r RefundEligibility) String() string {
	return string(r)
}

// ItemCondition is the warehouse's description of a returned item.
type ItemCondition string

const (
	ItemConditionNew       ItemCondition = "new"
	ItemConditionExcellent ItemCondition = "excellent"
	ItemConditionGood      ItemCondition = "good"
	ItemConditionFair      ItemCondition = "fair"
	ItemConditionPoor      ItemCondition = "poor"
	ItemConditionDamaged   ItemCondition = "damaged"
)

var validItemConditions = []ItemCondition{
	ItemConditionNew,
	ItemConditionExcellent,
	ItemConditionGood,
	ItemConditionFair,
	ItemConditionPoor,
	ItemConditionDamaged,
}

func (c ItemCondition) IsValid() bool {
	for _, candidate := range validItemConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// DeductionType classifies an amount withheld from a refund.
type DeductionType string

const (
	DeductionPickupCharge DeductionType = "pickup_charge"
	DeductionDamage       DeductionType = "damage"
	DeductionMissingParts DeductionType = "missing_parts"
	DeductionPackaging    DeductionType = "packaging"
	DeductionOther        DeductionType = "other"
)

var validDeductionTypes = []DeductionType{
	DeductionPickupCharge,
	DeductionDamage,
	DeductionMissingParts,
	DeductionPackaging,
	DeductionOther,
}

func (d DeductionType) IsValid() bool {
	for _, candidate := range validDeductionTypes {
		if candidate == d {
			return true
		}
	}
	return false
}
