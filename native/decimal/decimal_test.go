package decimal

import (
	"errors"
	"testing"
)

func TestFromStringRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "0.5", "1000000", "0.000000000000000001", "123.456"}
	for _, tc := range cases {
		parsed, err := FromString(tc)
		if err != nil {
			t.Fatalf("parse %q: %v", tc, err)
		}
		if got := parsed.String(); got != tc {
			t.Fatalf("round trip %q: got %q", tc, got)
		}
	}
}

func TestFromStringRejectsExcessPrecision(t *testing.T) {
	if _, err := FromString("0.0000000000000000001"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestSubNegative(t *testing.T) {
	if _, err := NewFromUint64(1).Sub(NewFromUint64(2)); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error, got %v", err)
	}
}

func TestMulRoundingBias(t *testing.T) {
	third, err := NewFromRatio(1, 3)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	down, err := NewFromUint64(1).MulDown(third)
	if err != nil {
		t.Fatalf("mul down: %v", err)
	}
	up, err := NewFromUint64(1).MulUp(third)
	if err != nil {
		t.Fatalf("mul up: %v", err)
	}
	if !down.LT(up) {
		t.Fatalf("expected down < up, got %s vs %s", down, up)
	}
	diff, err := up.Sub(down)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if diff.String() != "0.000000000000000001" {
		t.Fatalf("expected one unit of difference, got %s", diff)
	}
}

func TestDivRoundingBias(t *testing.T) {
	down, err := NewFromUint64(10).DivDown(NewFromUint64(3))
	if err != nil {
		t.Fatalf("div down: %v", err)
	}
	up, err := NewFromUint64(10).DivUp(NewFromUint64(3))
	if err != nil {
		t.Fatalf("div up: %v", err)
	}
	if !down.LT(up) {
		t.Fatalf("expected down < up, got %s vs %s", down, up)
	}
	exactDown, err := NewFromUint64(10).DivDown(NewFromUint64(2))
	if err != nil {
		t.Fatalf("exact div down: %v", err)
	}
	exactUp, err := NewFromUint64(10).DivUp(NewFromUint64(2))
	if err != nil {
		t.Fatalf("exact div up: %v", err)
	}
	if !exactDown.Equal(exactUp) {
		t.Fatalf("exact division must not round: %s vs %s", exactDown, exactUp)
	}
}

func TestDivisionByZero(t *testing.T) {
	if _, err := One().DivDown(Zero()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := One().DivUp(Zero()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestMulOverflow(t *testing.T) {
	huge := MustFromString("100000000000000000000000000000000000000000000000000000000")
	if _, err := huge.MulDown(huge); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestComparisons(t *testing.T) {
	a := NewFromUint64(1)
	b := NewFromUint64(2)
	if !a.LT(b) || !b.GT(a) || !a.LTE(a) || !a.GTE(a) || a.Equal(b) {
		t.Fatalf("comparison helpers inconsistent")
	}
	if Min(a, b).Cmp(a) != 0 || Max(a, b).Cmp(b) != 0 {
		t.Fatalf("min/max inconsistent")
	}
	if got := Clamp(b, Zero(), a); got.Cmp(a) != 0 {
		t.Fatalf("clamp failed: %s", got)
	}
}

func TestTextMarshalling(t *testing.T) {
	original := MustFromString("12.34")
	text, err := original.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Dec
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("round trip mismatch: %s vs %s", decoded, original)
	}
}

func TestBpsConversion(t *testing.T) {
	if got := NewFromBps(8_500); got.String() != "0.85" {
		t.Fatalf("unexpected bps conversion: %s", got)
	}
}
