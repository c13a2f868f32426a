package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// FeeAmount is a fee as sent by a client. It accepts a JSON number or a JSON
// string and keeps the literal text so parsing happens in one place.
type FeeAmount string

func (a *FeeAmount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*a = FeeAmount(str)
		return nil
	}
	*a = FeeAmount(s)
	return nil
}

// FeeInput is an unparsed set of fee components.
type FeeInput struct {
	PermitFee   FeeAmount            `json:"permit_fee"`
	SanitaryFee FeeAmount            `json:"sanitary_fee"`
	GarbageFee  FeeAmount            `json:"garbage_fee"`
	Additional  map[string]FeeAmount `json:"additional,omitempty"`
}

// maxAmount is the first value a decimal(12,2) money column cannot hold.
var maxAmount = decimal.New(1, 10)

// ParseAmount parses a single money value. Blank is zero. More than two
// fraction digits is rejected rather than rounded, as is anything too large
// to store.
func ParseAmount(name string, raw FeeAmount) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", ErrInvalidFee, name)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidFee, name)
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: %s exceeds %s", ErrInvalidFee, name, maxAmount.Sub(decimal.New(1, -2)).StringFixed(2))
	}
	return d, nil
}

// ParseFeeComponents converts client input into decimal components. Sign is
// checked by CalculateTotal.
func ParseFeeComponents(input FeeInput) (model.FeeComponents, error) {
	var (
		fees model.FeeComponents
		err  error
	)
	if fees.PermitFee, err = ParseAmount("permit_fee", input.PermitFee); err != nil {
		return fees, err
	}
	if fees.SanitaryFee, err = ParseAmount("sanitary_fee", input.SanitaryFee); err != nil {
		return fees, err
	}
	if fees.GarbageFee, err = ParseAmount("garbage_fee", input.GarbageFee); err != nil {
		return fees, err
	}

	if len(input.Additional) > 0 {
		fees.Additional = make(model.FeeMap, len(input.Additional))
		for name, raw := range input.Additional {
			key := strings.TrimSpace(name)
			if key == "" {
				return fees, fmt.Errorf("%w: additional fee name is empty", ErrInvalidFee)
			}
			amount, err := ParseAmount(key, raw)
			if err != nil {
				return fees, err
			}
			fees.Additional[key] = amount
		}
	}
	return fees, nil
}

// CalculateTotal sums every component. It fails on any negative component
// and never reads a previously stored total.
func CalculateTotal(fees model.FeeComponents) (decimal.Decimal, error) {
	standard := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"permit_fee", fees.PermitFee},
		{"sanitary_fee", fees.SanitaryFee},
		{"garbage_fee", fees.GarbageFee},
	}

	total := decimal.Zero
	for _, c := range standard {
		if c.amount.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ErrInvalidFee, c.name)
		}
		total = total.Add(c.amount)
	}

	// sorted so the reported component is stable
	names := make([]string, 0, len(fees.Additional))
	for name := range fees.Additional {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		amount := fees.Additional[name]
		if amount.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ErrInvalidFee, name)
		}
		total = total.Add(amount)
	}

	if total.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: total fee exceeds %s", ErrInvalidFee, maxAmount.Sub(decimal.New(1, -2)).StringFixed(2))
	}
	return total.Round(2), nil
}

// applyFees validates fees and writes the components and their total onto
// the permit.
func applyFees(permit *model.Permit, fees model.FeeComponents) (decimal.Decimal, error) {
	total, err := CalculateTotal(fees)
	if err != nil {
		return decimal.Zero, err
	}
	permit.PermitFee = fees.PermitFee
	permit.SanitaryFee = fees.SanitaryFee
	permit.GarbageFee = fees.GarbageFee
	permit.AdditionalFees = datatypes.NewJSONType(fees.Additional)
	permit.TotalFee = total
	return total, nil
}
