package weimath_test

import (
	"math/big"
	"testing"

	"github.com/agentcasino/engine/internal/weimath"
)

func TestToWei_DecimalString(t *testing.T) {
	got, err := weimath.ToWei("0.01")
	if err != nil {
		t.Fatalf("ToWei: %v", err)
	}
	want := big.NewInt(10000000000000000)
	if got.Cmp(want) != 0 {
		t.Errorf("ToWei(0.01) = %s, want %s", got, want)
	}
}

func TestToWei_IntegerTreatedAsEther(t *testing.T) {
	got, err := weimath.ToWei("5")
	if err != nil {
		t.Fatalf("ToWei: %v", err)
	}
	want, _ := new(big.Int).SetString("5000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("ToWei(5) = %s, want %s", got, want)
	}
}

func TestToWei_LongIntegerTreatedAsWei(t *testing.T) {
	got, err := weimath.ToWei("12345678901")
	if err != nil {
		t.Fatalf("ToWei: %v", err)
	}
	want, _ := new(big.Int).SetString("12345678901", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("ToWei(12345678901) = %s, want %s", got, want)
	}
}

func TestToWei_RejectsNegative(t *testing.T) {
	if _, err := weimath.ToWei("-1"); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestToWei_RejectsGarbage(t *testing.T) {
	if _, err := weimath.ToWei("not-a-number"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestToWei_RejectsTooManyFractionalDigits(t *testing.T) {
	if _, err := weimath.ToWei("0.1234567890123456789"); err == nil {
		t.Error("expected error for 19 fractional digits")
	}
}

// RT1: toDecimal then toWei is the identity for any non-negative integer.
func TestRoundTrip_ToDecimalToWei(t *testing.T) {
	cases := []string{"0", "1", "123", "1000000000000000000", "289999999999999999", "5000000000000000000"}
	for _, c := range cases {
		wei, _ := new(big.Int).SetString(c, 10)
		dec := weimath.ToDecimal(wei)
		back, err := weimath.ToWei(dec)
		if err != nil {
			t.Fatalf("ToWei(%q): %v", dec, err)
		}
		if back.Cmp(wei) != 0 {
			t.Errorf("round trip %s -> %q -> %s, want %s", c, dec, back, c)
		}
	}
}

func TestToDecimal_Zero(t *testing.T) {
	if got := weimath.ToDecimal(big.NewInt(0)); got != "0" {
		t.Errorf("ToDecimal(0) = %q, want %q", got, "0")
	}
}
