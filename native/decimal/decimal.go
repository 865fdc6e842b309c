package decimal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Digits is the number of fractional digits maintained by Dec.
const Digits = 18

var (
	// ErrArithmetic is the root of every arithmetic failure. All overflow,
	// underflow and precision faults satisfy errors.Is against it.
	ErrArithmetic = errors.New("decimal: arithmetic error")

	ErrOverflow       = fmt.Errorf("%w: overflow", ErrArithmetic)
	ErrNegativeResult = fmt.Errorf("%w: negative result", ErrArithmetic)
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrArithmetic)

	// ErrInvalidInput reports a malformed textual decimal.
	ErrInvalidInput = errors.New("decimal: invalid input")
)

var wad = uint256.NewInt(1_000_000_000_000_000_000)

// Dec is an unsigned fixed-point decimal with eighteen fractional digits
// backed by a 256-bit word. The zero value is the decimal zero. Every
// multiplication and division goes through a checked path; results that do
// not fit the backing word fail with ErrOverflow rather than wrapping.
type Dec struct {
	i uint256.Int
}

// Zero returns the decimal zero.
func Zero() Dec { return Dec{} }

// One returns the decimal 1.0.
func One() Dec { return Dec{i: *wad} }

// NewFromUint64 converts a whole number into a Dec.
func NewFromUint64(n uint64) Dec {
	var out Dec
	out.i.Mul(uint256.NewInt(n), wad)
	return out
}

// NewFromRatio builds the decimal num/den. A zero denominator fails with
// ErrDivisionByZero.
func NewFromRatio(num, den uint64) (Dec, error) {
	if den == 0 {
		return Dec{}, ErrDivisionByZero
	}
	var out Dec
	out.i.Div(new(uint256.Int).Mul(uint256.NewInt(num), wad), uint256.NewInt(den))
	return out, nil
}

// NewFromBps converts basis points into a Dec, e.g. 8500 => 0.85.
func NewFromBps(bps uint64) Dec {
	out, _ := NewFromRatio(bps, 10_000)
	return out
}

// FromString parses a decimal rendered as "123" or "123.456". More than
// eighteen fractional digits cannot be represented and fail with
// ErrInvalidInput instead of being truncated.
func FromString(s string) (Dec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Dec{}, ErrInvalidInput
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Digits {
		return Dec{}, fmt.Errorf("%w: more than %d fractional digits", ErrInvalidInput, Digits)
	}
	intPart, err := uint256.FromDecimal(whole)
	if err != nil {
		return Dec{}, fmt.Errorf("%w: %q", ErrInvalidInput, s)
	}
	var out Dec
	if _, overflow := out.i.MulOverflow(intPart, wad); overflow {
		return Dec{}, ErrOverflow
	}
	if frac != "" {
		fracPart, err := uint256.FromDecimal(frac)
		if err != nil {
			return Dec{}, fmt.Errorf("%w: %q", ErrInvalidInput, s)
		}
		scale := uint256.NewInt(1)
		for i := len(frac); i < Digits; i++ {
			scale.Mul(scale, uint256.NewInt(10))
		}
		scaled := new(uint256.Int).Mul(fracPart, scale)
		if _, overflow := out.i.AddOverflow(&out.i, scaled); overflow {
			return Dec{}, ErrOverflow
		}
	}
	return out, nil
}

// MustFromString parses s and panics on failure. Intended for constants and
// tests only.
func MustFromString(s string) Dec {
	out, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return out
}

// Add returns d + o, failing with ErrOverflow when the sum does not fit.
func (d Dec) Add(o Dec) (Dec, error) {
	var out Dec
	if _, overflow := out.i.AddOverflow(&d.i, &o.i); overflow {
		return Dec{}, ErrOverflow
	}
	return out, nil
}

// Sub returns d - o, failing with ErrNegativeResult when o exceeds d.
func (d Dec) Sub(o Dec) (Dec, error) {
	if d.i.Lt(&o.i) {
		return Dec{}, ErrNegativeResult
	}
	var out Dec
	out.i.Sub(&d.i, &o.i)
	return out, nil
}

// MulDown returns d * o truncated toward zero at the maintained scale.
func (d Dec) MulDown(o Dec) (Dec, error) {
	var out Dec
	if _, overflow := out.i.MulDivOverflow(&d.i, &o.i, wad); overflow {
		return Dec{}, ErrOverflow
	}
	return out, nil
}

// MulUp returns d * o rounded up at the maintained scale.
func (d Dec) MulUp(o Dec) (Dec, error) {
	out, err := d.MulDown(o)
	if err != nil {
		return Dec{}, err
	}
	rem := new(uint256.Int).MulMod(&d.i, &o.i, wad)
	if rem.IsZero() {
		return out, nil
	}
	if _, overflow := out.i.AddOverflow(&out.i, uint256.NewInt(1)); overflow {
		return Dec{}, ErrOverflow
	}
	return out, nil
}

// DivDown returns d / o truncated toward zero at the maintained scale.
func (d Dec) DivDown(o Dec) (Dec, error) {
	if o.i.IsZero() {
		return Dec{}, ErrDivisionByZero
	}
	var out Dec
	if _, overflow := out.i.MulDivOverflow(&d.i, wad, &o.i); overflow {
		return Dec{}, ErrOverflow
	}
	return out, nil
}

// DivUp returns d / o rounded up at the maintained scale.
func (d Dec) DivUp(o Dec) (Dec, error) {
	out, err := d.DivDown(o)
	if err != nil {
		return Dec{}, err
	}
	rem := new(uint256.Int).MulMod(&d.i, wad, &o.i)
	if rem.IsZero() {
		return out, nil
	}
	if _, overflow := out.i.AddOverflow(&out.i, uint256.NewInt(1)); overflow {
		return Dec{}, ErrOverflow
	}
	return out, nil
}

// Cmp compares d against o, returning -1, 0 or 1.
func (d Dec) Cmp(o Dec) int { return d.i.Cmp(&o.i) }

func (d Dec) Equal(o Dec) bool { return d.i.Eq(&o.i) }
func (d Dec) LT(o Dec) bool    { return d.i.Lt(&o.i) }
func (d Dec) LTE(o Dec) bool   { return !o.i.Lt(&d.i) }
func (d Dec) GT(o Dec) bool    { return o.i.Lt(&d.i) }
func (d Dec) GTE(o Dec) bool   { return !d.i.Lt(&o.i) }
func (d Dec) IsZero() bool     { return d.i.IsZero() }

// Min returns the smaller of a and b.
func Min(a, b Dec) Dec {
	if a.LT(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Dec) Dec {
	if a.GT(b) {
		return a
	}
	return b
}

// Clamp bounds d to the inclusive range [lo, hi].
func Clamp(d, lo, hi Dec) Dec {
	if d.LT(lo) {
		return lo
	}
	if d.GT(hi) {
		return hi
	}
	return d
}

// String renders the decimal with trailing fractional zeros trimmed.
func (d Dec) String() string {
	quo := new(uint256.Int).Div(&d.i, wad)
	rem := new(uint256.Int).Mod(&d.i, wad)
	if rem.IsZero() {
		return quo.Dec()
	}
	frac := rem.Dec()
	for len(frac) < Digits {
		frac = "0" + frac
	}
	frac = strings.TrimRight(frac, "0")
	return quo.Dec() + "." + frac
}

// Float64 returns a lossy float approximation for metrics and display only.
func (d Dec) Float64() float64 {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// MarshalText implements encoding.TextMarshaler.
func (d Dec) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Dec) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
