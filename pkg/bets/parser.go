package bets

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxUnits bounds stake size; anything above this is a typo, not a bet.
const maxUnits = 20

// Parser turns raw pick text into a validated Draft. The extraction oracle
// proposes fields; the parser disposes. No oracle field reaches a Draft
// without passing local validation, and nothing is silently defaulted.
type Parser struct {
	oracle Extractor
}

// NewParser creates a parser over the given extractor.
func NewParser(oracle Extractor) *Parser {
	return &Parser{oracle: oracle}
}

// Parse extracts and locally validates a bet draft from raw text. Field
// failures return a *ParseError naming the field; oracle transport failures
// are returned as-is for retry/degraded handling by the caller.
func (p *Parser) Parse(ctx context.Context, rawText string) (*Draft, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, &ParseError{Field: "raw_text", Reason: "empty input"}
	}

	ext, err := p.oracle.Extract(ctx, rawText)
	if err != nil {
		return nil, fmt.Errorf("extract %q: %w", rawText, err)
	}
	return p.validate(rawText, ext)
}

func (p *Parser) validate(rawText string, ext *Extraction) (*Draft, error) {
	statType, ok := CanonicalStatType(strings.ToLower(strings.TrimSpace(ext.BetType)))
	if !ok {
		return nil, &ParseError{
			Field:  "bet_type",
			Reason: fmt.Sprintf("%q is not in the supported taxonomy", ext.BetType),
		}
	}

	subject, err := subjectToken(statType, ext)
	if err != nil {
		return nil, err
	}

	operator, target, err := operatorAndTarget(statType, ext)
	if err != nil {
		return nil, err
	}

	odds := strings.TrimSpace(ext.Odds)
	if _, _, err := ParseAmericanOdds(odds); err != nil {
		return nil, err
	}

	if ext.Units <= 0 || ext.Units > maxUnits {
		return nil, &ParseError{
			Field:  "units",
			Reason: fmt.Sprintf("units must be in (0, %d], got %v", maxUnits, ext.Units),
		}
	}

	return &Draft{
		SubjectToken:   subject,
		StatType:       statType,
		Operator:       operator,
		TargetValue:    target,
		Odds:           odds,
		Units:          decimal.NewFromFloat(ext.Units),
		RawText:        rawText,
		Confidence:     ext.Confidence,
		Interpretation: ext.Interpretation,
	}, nil
}

// subjectToken picks the player or team token consistent with the stat type.
func subjectToken(st StatType, ext *Extraction) (string, error) {
	switch SubjectKindFor(st) {
	case KindTeam:
		token := strings.TrimSpace(ext.TeamName)
		if token == "" {
			return "", &ParseError{Field: "team_name", Reason: "team market without a team name"}
		}
		return token, nil
	default:
		token := strings.TrimSpace(ext.PlayerName)
		if token == "" {
			return "", &ParseError{Field: "player_name", Reason: "player stat without a player name"}
		}
		return token, nil
	}
}

// operatorAndTarget enforces operator/stat consistency: moneyline bets carry
// neither target nor comparison operator, everything else needs both.
func operatorAndTarget(st StatType, ext *Extraction) (Operator, float64, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(ext.Operator)))

	if st == StatMoneyline {
		if op != "" && op != OpMoneyline {
			return "", 0, &ParseError{
				Field:  "operator",
				Reason: fmt.Sprintf("moneyline bets take no operator, got %q", ext.Operator),
			}
		}
		if ext.TargetValue != nil {
			return "", 0, &ParseError{Field: "target_value", Reason: "moneyline bets take no target value"}
		}
		return OpMoneyline, 0, nil
	}

	switch op {
	case OpOver, OpUnder, OpExactly:
	case "":
		return "", 0, &ParseError{Field: "operator", Reason: "missing operator for " + string(st)}
	default:
		return "", 0, &ParseError{Field: "operator", Reason: fmt.Sprintf("unknown operator %q", ext.Operator)}
	}

	if ext.TargetValue == nil {
		return "", 0, &ParseError{Field: "target_value", Reason: "missing target value for " + string(st)}
	}
	target := *ext.TargetValue
	if target <= 0 && op != OpExactly {
		return "", 0, &ParseError{Field: "target_value", Reason: fmt.Sprintf("target must be positive, got %v", target)}
	}
	if target < 0 {
		return "", 0, &ParseError{Field: "target_value", Reason: fmt.Sprintf("target must not be negative, got %v", target)}
	}
	return op, target, nil
}
