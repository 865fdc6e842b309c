package redbank

import (
	"fmt"

	"redbank/native/decimal"
)

// SecondsPerYear converts annualized rates into per-second accrual.
const SecondsPerYear = 31_536_000

// RateModel derives a borrow rate from market utilisation. The previous
// cached borrow rate is part of the contract because the dynamic variant is
// stateful: its output adjusts from the rate computed on the prior call.
type RateModel interface {
	BorrowRate(utilization, previous decimal.Dec) (decimal.Dec, error)
}

// LinearParams describes a kinked borrow curve. Both slopes are normalised
// by their segment width: the rate climbs from Base to Base+Slope1 across
// [0, optimal], then on to Base+Slope1+Slope2 across (optimal, 1].
type LinearParams struct {
	Base                   decimal.Dec `json:"base"`
	Slope1                 decimal.Dec `json:"slope_1"`
	Slope2                 decimal.Dec `json:"slope_2"`
	OptimalUtilizationRate decimal.Dec `json:"optimal_utilization_rate"`
}

// BorrowRate implements RateModel. The previous rate is ignored: the linear
// curve is a pure function of utilisation.
func (p LinearParams) BorrowRate(utilization, _ decimal.Dec) (decimal.Dec, error) {
	if utilization.LTE(p.OptimalUtilizationRate) && !p.OptimalUtilizationRate.IsZero() {
		fraction, err := utilization.DivDown(p.OptimalUtilizationRate)
		if err != nil {
			return decimal.Dec{}, err
		}
		slope, err := p.Slope1.MulDown(fraction)
		if err != nil {
			return decimal.Dec{}, err
		}
		return p.Base.Add(slope)
	}
	rate, err := p.Base.Add(p.Slope1)
	if err != nil {
		return decimal.Dec{}, err
	}
	span, err := decimal.One().Sub(p.OptimalUtilizationRate)
	if err != nil {
		return decimal.Dec{}, err
	}
	if span.IsZero() {
		return rate, nil
	}
	excess, err := utilization.Sub(p.OptimalUtilizationRate)
	if err != nil {
		return decimal.Dec{}, err
	}
	fraction, err := excess.DivDown(span)
	if err != nil {
		return decimal.Dec{}, err
	}
	beyond, err := p.Slope2.MulDown(fraction)
	if err != nil {
		return decimal.Dec{}, err
	}
	return rate.Add(beyond)
}

func (p LinearParams) validate() error {
	if p.OptimalUtilizationRate.GT(decimal.One()) {
		return fmt.Errorf("%w: optimal utilization above one", errInvalidRateModel)
	}
	return nil
}

// DynamicParams describes a proportional controller on the borrow rate. The
// rate moves from its previous value by kp * (u - optimal), switching to the
// steeper augmented gain once the deviation exceeds the augmentation
// threshold, and is clamped to [MinBorrowRate, MaxBorrowRate].
type DynamicParams struct {
	MinBorrowRate           decimal.Dec `json:"min_borrow_rate"`
	MaxBorrowRate           decimal.Dec `json:"max_borrow_rate"`
	KpPrimary               decimal.Dec `json:"kp_1"`
	KpAugmented             decimal.Dec `json:"kp_2"`
	OptimalUtilizationRate  decimal.Dec `json:"optimal_utilization_rate"`
	KpAugmentationThreshold decimal.Dec `json:"kp_augmentation_threshold"`
}

// BorrowRate implements RateModel.
func (p DynamicParams) BorrowRate(utilization, previous decimal.Dec) (decimal.Dec, error) {
	var (
		deviation decimal.Dec
		err       error
		above     bool
	)
	if utilization.GTE(p.OptimalUtilizationRate) {
		deviation, err = utilization.Sub(p.OptimalUtilizationRate)
		above = true
	} else {
		deviation, err = p.OptimalUtilizationRate.Sub(utilization)
	}
	if err != nil {
		return decimal.Dec{}, err
	}

	kp := p.KpPrimary
	if deviation.GT(p.KpAugmentationThreshold) {
		kp = p.KpAugmented
	}
	adjustment, err := kp.MulDown(deviation)
	if err != nil {
		return decimal.Dec{}, err
	}

	rate := previous
	if above {
		rate, err = previous.Add(adjustment)
		if err != nil {
			return decimal.Dec{}, err
		}
	} else if adjustment.LT(previous) {
		rate, err = previous.Sub(adjustment)
		if err != nil {
			return decimal.Dec{}, err
		}
	} else {
		rate = decimal.Zero()
	}
	return decimal.Clamp(rate, p.MinBorrowRate, p.MaxBorrowRate), nil
}

func (p DynamicParams) validate() error {
	if p.MaxBorrowRate.LT(p.MinBorrowRate) {
		return fmt.Errorf("%w: max borrow rate below min", errInvalidRateModel)
	}
	if p.OptimalUtilizationRate.GT(decimal.One()) {
		return fmt.Errorf("%w: optimal utilization above one", errInvalidRateModel)
	}
	return nil
}

// RateKind discriminates the interest rate parameter union.
type RateKind string

const (
	RateKindLinear  RateKind = "linear"
	RateKindDynamic RateKind = "dynamic"
)

// RateParams is the tagged union of supported interest rate models. Exactly
// one of the parameter structs must be populated, matching Kind.
type RateParams struct {
	Kind    RateKind       `json:"kind"`
	Linear  *LinearParams  `json:"linear,omitempty"`
	Dynamic *DynamicParams `json:"dynamic,omitempty"`
}

// NewLinearRateParams wraps linear curve parameters into the union.
func NewLinearRateParams(params LinearParams) RateParams {
	return RateParams{Kind: RateKindLinear, Linear: &params}
}

// NewDynamicRateParams wraps dynamic controller parameters into the union.
func NewDynamicRateParams(params DynamicParams) RateParams {
	return RateParams{Kind: RateKindDynamic, Dynamic: &params}
}

// Validate checks that the union is well formed.
func (p RateParams) Validate() error {
	switch p.Kind {
	case RateKindLinear:
		if p.Linear == nil || p.Dynamic != nil {
			return fmt.Errorf("%w: linear kind requires linear params only", errInvalidRateModel)
		}
		return p.Linear.validate()
	case RateKindDynamic:
		if p.Dynamic == nil || p.Linear != nil {
			return fmt.Errorf("%w: dynamic kind requires dynamic params only", errInvalidRateModel)
		}
		return p.Dynamic.validate()
	default:
		return fmt.Errorf("%w: unknown kind %q", errInvalidRateModel, p.Kind)
	}
}

// Model resolves the union into its rate model.
func (p RateParams) Model() (RateModel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Kind == RateKindLinear {
		return *p.Linear, nil
	}
	return *p.Dynamic, nil
}
