package bets

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// americanOddsPattern is the accepted odds grammar: a sign followed by the
// price, e.g. "-110" or "+150". A bare number is not accepted.
var americanOddsPattern = regexp.MustCompile(`^[+-]\d+$`)

var hundred = decimal.NewFromInt(100)

// ParseAmericanOdds validates an American-format odds string and converts it
// to decimal odds and implied probability.
//
//	+150 -> decimal 2.5,  implied 100/(150+100) = 0.4
//	-110 -> decimal 1.909..., implied 110/(110+100) = 0.5238...
//
// The conversions are pure functions of the string; repeated calls always
// produce identical decimals.
func ParseAmericanOdds(odds string) (decimalOdds, impliedProb decimal.Decimal, err error) {
	if !americanOddsPattern.MatchString(odds) {
		return decimal.Zero, decimal.Zero, &ParseError{
			Field:  "odds",
			Reason: "not American format (expected e.g. -110 or +150): " + odds,
		}
	}

	mag, convErr := strconv.ParseInt(odds[1:], 10, 64)
	if convErr != nil || mag < 100 {
		return decimal.Zero, decimal.Zero, &ParseError{
			Field:  "odds",
			Reason: "American odds magnitude must be at least 100: " + odds,
		}
	}

	price := decimal.NewFromInt(mag)
	if odds[0] == '+' {
		// Underdog: win price per 100 staked.
		decimalOdds = decimal.NewFromInt(1).Add(price.Div(hundred))
		impliedProb = hundred.Div(price.Add(hundred))
	} else {
		// Favorite: stake price to win 100.
		decimalOdds = decimal.NewFromInt(1).Add(hundred.Div(price))
		impliedProb = price.Div(price.Add(hundred))
	}
	return decimalOdds, impliedProb, nil
}
