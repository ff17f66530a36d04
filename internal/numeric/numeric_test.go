package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRefinePriceToTickSize(t *testing.T) {
	got, err := RefineString("12345.6789", "0.01", 8)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if got != "12345.67" {
		t.Fatalf("refine price = %q, want 12345.67", got)
	}
}

func TestRefineQtyToStepSize(t *testing.T) {
	got, err := RefineString("1.23456", "0.001", 8)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if got != "1.234" {
		t.Fatalf("refine qty = %q, want 1.234", got)
	}
}

func TestRefineTable(t *testing.T) {
	cases := []struct {
		value, step string
		precision   int
		want        string
	}{
		{"1.000000", "0.001", 8, "1"},
		{"0.09999", "0.1", 8, "0"},
		{"5", "1", 0, "5"},
		{"2.5", "0.5", 2, "2.5"},
		{"0.123456789", "0.00000001", 8, "0.12345678"},
	}
	for _, tc := range cases {
		got, err := RefineString(tc.value, tc.step, tc.precision)
		if err != nil {
			t.Fatalf("refine(%s, %s): %v", tc.value, tc.step, err)
		}
		if got != tc.want {
			t.Fatalf("refine(%s, %s) = %q, want %q", tc.value, tc.step, got, tc.want)
		}
	}
}

func TestTruncateZeroStepPassesThrough(t *testing.T) {
	v := decimal.RequireFromString("3.14159")
	if got := Truncate(v, decimal.Zero); !got.Equal(v) {
		t.Fatalf("zero step must pass value through, got %s", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatalf("expected error for non-numeric input")
	}
}

func TestFormatFixedStripsTrailingZeros(t *testing.T) {
	d := decimal.RequireFromString("12.3400")
	if got := FormatFixed(d, 6); got != "12.34" {
		t.Fatalf("FormatFixed = %q", got)
	}
	if got := FormatFixed(decimal.Zero, 4); got != "0" {
		t.Fatalf("FormatFixed zero = %q", got)
	}
}
