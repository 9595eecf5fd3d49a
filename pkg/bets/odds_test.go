package bets

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmericanOdds(t *testing.T) {
	tests := []struct {
		odds        string
		wantDecimal string
		wantImplied string
	}{
		{"+150", "2.5", "0.4"},
		{"+100", "2", "0.5"},
		{"-200", "1.5", "0.6666666666666667"},
		{"+250", "3.5", "0.2857142857142857"},
	}
	for _, tt := range tests {
		dec, imp, err := ParseAmericanOdds(tt.odds)
		if err != nil {
			t.Fatalf("ParseAmericanOdds(%s) failed: %v", tt.odds, err)
		}
		if !dec.Equal(decimal.RequireFromString(tt.wantDecimal)) {
			t.Errorf("%s: decimal odds = %s, want %s", tt.odds, dec, tt.wantDecimal)
		}
		wantImp := decimal.RequireFromString(tt.wantImplied)
		if imp.Sub(wantImp).Abs().GreaterThan(decimal.RequireFromString("0.0000001")) {
			t.Errorf("%s: implied prob = %s, want %s", tt.odds, imp, tt.wantImplied)
		}
	}
}

func TestParseAmericanOddsMinus110(t *testing.T) {
	dec, imp, err := ParseAmericanOdds("-110")
	if err != nil {
		t.Fatalf("ParseAmericanOdds failed: %v", err)
	}
	// 1 + 100/110
	want := decimal.NewFromInt(1).Add(decimal.NewFromInt(100).Div(decimal.NewFromInt(110)))
	if !dec.Equal(want) {
		t.Errorf("decimal odds = %s, want %s", dec, want)
	}
	// 110/210
	wantImp := decimal.NewFromInt(110).Div(decimal.NewFromInt(210))
	if !imp.Equal(wantImp) {
		t.Errorf("implied prob = %s, want %s", imp, wantImp)
	}
}

func TestParseAmericanOddsRejects(t *testing.T) {
	bad := []string{"", "150", "-99", "+99", "-0", "+abc", "evens", "+150.5", " -110"}
	for _, odds := range bad {
		if _, _, err := ParseAmericanOdds(odds); err == nil {
			t.Errorf("ParseAmericanOdds(%q) should fail", odds)
		} else if !errors.Is(err, ErrParse) {
			t.Errorf("ParseAmericanOdds(%q) error should be a parse error, got %v", odds, err)
		}
	}
}

func TestParseAmericanOddsDeterministic(t *testing.T) {
	a1, b1, _ := ParseAmericanOdds("-110")
	a2, b2, _ := ParseAmericanOdds("-110")
	if !a1.Equal(a2) || !b1.Equal(b2) {
		t.Error("Repeated conversion must produce identical decimals")
	}
}
