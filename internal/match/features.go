package match

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// FeatureVector is the fixed-order numeric encoding of one invoice/delivery
// note comparison. It is persisted on every pairing event and is the input
// to the learned ranker, so the field order must never change; new signals
// append only.
type FeatureVector struct {
	SupplierMatch float64 `json:"supplier_match"`
	DateDeltaDays float64 `json:"date_delta_days"`
	AmountDelta   float64 `json:"amount_delta"`
	AmountAgree   float64 `json:"amount_agree"`
	QuantityScore float64 `json:"quantity_score"`
	CadenceMatch  float64 `json:"cadence_match"`
	RuleScore     float64 `json:"rule_score"`
}

// NewFeatureVector encodes the signals of one gated candidate. Gated
// candidates always have matching suppliers and monetary agreement, so
// those fields are 1 by construction.
func NewFeatureVector(dateDelta int, amountDelta decimal.Decimal, quantityScore float64, cadenceMatch bool, ruleScore float64) FeatureVector {
	ad, _ := amountDelta.Float64()
	fv := FeatureVector{
		SupplierMatch: 1,
		DateDeltaDays: float64(dateDelta),
		AmountDelta:   ad,
		AmountAgree:   1,
		QuantityScore: quantityScore,
		RuleScore:     ruleScore,
	}
	if cadenceMatch {
		fv.CadenceMatch = 1
	}
	return fv
}

// Values returns the vector in its canonical order.
func (fv FeatureVector) Values() []float64 {
	return []float64{
		fv.SupplierMatch,
		fv.DateDeltaDays,
		fv.AmountDelta,
		fv.AmountAgree,
		fv.QuantityScore,
		fv.CadenceMatch,
		fv.RuleScore,
	}
}

// FeatureCount is the width of the canonical vector.
const FeatureCount = 7

// Encode serializes the vector for event storage.
func (fv FeatureVector) Encode() (string, error) {
	b, err := json.Marshal(fv)
	if err != nil {
		return "", fmt.Errorf("failed to encode feature vector: %w", err)
	}
	return string(b), nil
}

// DecodeFeatureVector parses a stored vector.
func DecodeFeatureVector(s string) (FeatureVector, error) {
	var fv FeatureVector
	if err := json.Unmarshal([]byte(s), &fv); err != nil {
		return FeatureVector{}, fmt.Errorf("failed to decode feature vector: %w", err)
	}
	return fv, nil
}
