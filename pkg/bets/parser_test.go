package bets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// fakeExtractor returns canned extractions keyed by raw text.
type fakeExtractor struct {
	results map[string]*Extraction
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, rawText string) (*Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	ext, ok := f.results[rawText]
	if !ok {
		return nil, fmt.Errorf("no canned extraction for %q", rawText)
	}
	return ext, nil
}

func floatPtr(f float64) *float64 { return &f }

func TestParsePlayerProp(t *testing.T) {
	parser := NewParser(&fakeExtractor{results: map[string]*Extraction{
		"Harper over 1.5 hits +150, 2 units": {
			PlayerName:  "Harper",
			BetType:     "hits",
			TargetValue: floatPtr(1.5),
			Operator:    "over",
			Odds:        "+150",
			Units:       2,
			Confidence:  9,
		},
	}})

	draft, err := parser.Parse(context.Background(), "Harper over 1.5 hits +150, 2 units")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if draft.SubjectToken != "Harper" {
		t.Errorf("SubjectToken = %q, want Harper", draft.SubjectToken)
	}
	if draft.StatType != StatHits || draft.Operator != OpOver || draft.TargetValue != 1.5 {
		t.Errorf("Wrong line: %s %s %.1f", draft.StatType, draft.Operator, draft.TargetValue)
	}
	if draft.Odds != "+150" {
		t.Errorf("Odds = %q, want +150", draft.Odds)
	}
	if !draft.Units.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Units = %s, want 2", draft.Units)
	}
}

func TestParseStatTypeAliases(t *testing.T) {
	tests := []struct {
		alias string
		want  StatType
	}{
		{"hr", StatHomeRuns},
		{"home runs", StatHomeRuns},
		{"ks", StatStrikeouts},
		{"SO", StatStrikeouts},
		{"rbi", StatRBIs},
		{"sb", StatStolenBases},
		{"ml", StatMoneyline},
	}
	for _, tt := range tests {
		got, ok := CanonicalStatType(strings.ToLower(tt.alias))
		if !ok || got != tt.want {
			t.Errorf("CanonicalStatType(%q) = %v, %v; want %v", tt.alias, got, ok, tt.want)
		}
	}
}

func TestParseMoneyline(t *testing.T) {
	parser := NewParser(&fakeExtractor{results: map[string]*Extraction{
		"Phillies ML -140, 3u": {
			TeamName: "Phillies",
			BetType:  "moneyline",
			Odds:     "-140",
			Units:    3,
		},
	}})

	draft, err := parser.Parse(context.Background(), "Phillies ML -140, 3u")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if draft.Operator != OpMoneyline {
		t.Errorf("Operator = %s, want moneyline", draft.Operator)
	}
	if draft.SubjectToken != "Phillies" {
		t.Errorf("SubjectToken = %q, want Phillies", draft.SubjectToken)
	}
	if draft.TargetValue != 0 {
		t.Errorf("Moneyline target must be zero, got %v", draft.TargetValue)
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name      string
		ext       *Extraction
		wantField string
	}{
		{
			name:      "unknown stat type",
			ext:       &Extraction{PlayerName: "Harper", BetType: "fantasy points", Operator: "over", TargetValue: floatPtr(20), Odds: "-110", Units: 1},
			wantField: "bet_type",
		},
		{
			name:      "missing player name",
			ext:       &Extraction{BetType: "hits", Operator: "over", TargetValue: floatPtr(1.5), Odds: "-110", Units: 1},
			wantField: "player_name",
		},
		{
			name:      "missing operator",
			ext:       &Extraction{PlayerName: "Harper", BetType: "hits", TargetValue: floatPtr(1.5), Odds: "-110", Units: 1},
			wantField: "operator",
		},
		{
			name:      "missing target",
			ext:       &Extraction{PlayerName: "Harper", BetType: "hits", Operator: "over", Odds: "-110", Units: 1},
			wantField: "target_value",
		},
		{
			name:      "negative target",
			ext:       &Extraction{PlayerName: "Harper", BetType: "hits", Operator: "over", TargetValue: floatPtr(-1), Odds: "-110", Units: 1},
			wantField: "target_value",
		},
		{
			name:      "moneyline with target",
			ext:       &Extraction{TeamName: "Phillies", BetType: "moneyline", TargetValue: floatPtr(1), Odds: "-110", Units: 1},
			wantField: "target_value",
		},
		{
			name:      "bad odds",
			ext:       &Extraction{PlayerName: "Harper", BetType: "hits", Operator: "over", TargetValue: floatPtr(1.5), Odds: "evens", Units: 1},
			wantField: "odds",
		},
		{
			name:      "zero units",
			ext:       &Extraction{PlayerName: "Harper", BetType: "hits", Operator: "over", TargetValue: floatPtr(1.5), Odds: "-110", Units: 0},
			wantField: "units",
		},
		{
			name:      "oversized units",
			ext:       &Extraction{PlayerName: "Harper", BetType: "hits", Operator: "over", TargetValue: floatPtr(1.5), Odds: "-110", Units: 21},
			wantField: "units",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(&fakeExtractor{results: map[string]*Extraction{"x": tt.ext}})
			_, err := parser.Parse(context.Background(), "x")
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected ParseError, got %v", err)
			}
			if perr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", perr.Field, tt.wantField)
			}
		})
	}
}

func TestParseEmptyInput(t *testing.T) {
	parser := NewParser(&fakeExtractor{})
	_, err := parser.Parse(context.Background(), "   ")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
}

func TestParseOracleFailurePassesThrough(t *testing.T) {
	oracleErr := errors.New("upstream timeout")
	parser := NewParser(&fakeExtractor{err: oracleErr})
	_, err := parser.Parse(context.Background(), "Harper over 1.5 hits")
	if err == nil || errors.Is(err, ErrParse) {
		t.Fatalf("Oracle failures must not be parse errors, got %v", err)
	}
	if !errors.Is(err, oracleErr) {
		t.Errorf("Expected wrapped oracle error, got %v", err)
	}
}
