// Package core implements the plan period and multi-currency progress engine.
//
// Everything in this package is pure computation over caller-supplied data:
// no clocks, no I/O, no retained state. Monetary amounts are integers in
// minor units (cents for USD, won for KRW); fractional minor units never
// exist anywhere in the engine.
package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Currency identifies one of the two supported currencies.
type Currency string

const (
	USD Currency = "USD"
	KRW Currency = "KRW"
)

var (
	ErrUnsupportedPair = errors.New("unsupported currency pair")
	ErrInvalidRate     = errors.New("invalid exchange rate")
)

// MinorUnitScale returns how many minor units make one major unit.
func (c Currency) MinorUnitScale() int64 {
	if c == KRW {
		return 1
	}
	return 100
}

// ParseCurrency maps a free-form currency code to a Currency.
// Unknown or empty codes default to USD.
func ParseCurrency(s string) Currency {
	if strings.EqualFold(strings.TrimSpace(s), string(KRW)) {
		return KRW
	}
	return USD
}

// ParseAmountToMinor converts user-typed text into minor units.
//
// The parser is deliberately permissive so that UI code never has to handle
// a parse failure mid-typing: everything except digits, decimal points, and
// a leading minus is stripped; only the first decimal point acts as the
// separator, later ones are collapsed into the fraction. USD rounds half-up
// to the nearest cent, KRW truncates to a whole won. Malformed or empty
// input yields 0.
//
// Examples:
//
//	ParseAmountToMinor("$1,234.56", USD) -> 123456
//	ParseAmountToMinor("1.005", USD)     -> 101
//	ParseAmountToMinor("1234.9", KRW)    -> 1234
//	ParseAmountToMinor("abc", USD)       -> 0
func ParseAmountToMinor(text string, currency Currency) int64 {
	text = strings.TrimSpace(text)
	negative := strings.HasPrefix(text, "-")

	var intDigits, fracDigits strings.Builder
	seenPoint := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			if seenPoint {
				fracDigits.WriteRune(r)
			} else {
				intDigits.WriteRune(r)
			}
		case r == '.':
			// Only the first point separates; later ones collapse.
			seenPoint = true
		}
	}

	intPart := intDigits.String()
	fracPart := fracDigits.String()
	if intPart == "" && fracPart == "" {
		return 0
	}
	if intPart == "" {
		intPart = "0"
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		// Too many digits to represent; permissive policy says 0.
		return 0
	}

	var minor int64
	if currency == KRW {
		// No fractional won: truncate whatever fraction was typed.
		minor = iv
	} else {
		var cents int64
		if len(fracPart) > 0 {
			cents = int64(fracPart[0]-'0') * 10
			if len(fracPart) > 1 {
				cents += int64(fracPart[1] - '0')
				if len(fracPart) > 2 && fracPart[2] >= '5' {
					cents++
				}
			}
		}
		if iv > (math.MaxInt64-cents)/100 {
			// Would overflow int64 minor units; permissive policy says 0.
			return 0
		}
		minor = iv*100 + cents
	}

	if negative {
		minor = -minor
	}
	return minor
}

// FormatMoney renders a minor-unit amount with its currency symbol.
// USD always shows two decimals ("$12.34"), KRW shows a grouped integer
// ("₩1,234"). Negative amounts carry a leading minus before the symbol.
func FormatMoney(minor int64, currency Currency) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if currency == KRW {
		return sign + "₩" + groupDigits(strconv.FormatInt(minor, 10))
	}
	return sign + "$" + strconv.FormatInt(minor/100, 10) + "." + pad2(minor%100)
}

// FormatMoneyPlain renders like FormatMoney but without the currency symbol.
// Used by the dirty-state differ so a canonical string round-trips through
// ParseAmountToMinor unchanged.
func FormatMoneyPlain(minor int64, currency Currency) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if currency == KRW {
		return sign + groupDigits(strconv.FormatInt(minor, 10))
	}
	return sign + strconv.FormatInt(minor/100, 10) + "." + pad2(minor%100)
}

// ConvertMinor converts a minor-unit amount between currencies using a
// point-in-time rate meaning "1 USD = fxUsdKrw KRW".
//
// Same-currency conversion is the identity and ignores the rate entirely.
// Cross-currency conversion requires a finite positive rate and supports
// only the USD<->KRW pair; anything else is a caller bug and fails loudly.
// The result is rounded to the nearest minor unit of the target currency.
func ConvertMinor(minor int64, from, to Currency, fxUsdKrw float64) (int64, error) {
	if from == to {
		return minor, nil
	}
	if !(fxUsdKrw > 0) || math.IsInf(fxUsdKrw, 0) {
		return 0, ErrInvalidRate
	}

	major := float64(minor) / float64(from.MinorUnitScale())
	var converted float64
	switch {
	case from == USD && to == KRW:
		converted = major * fxUsdKrw
	case from == KRW && to == USD:
		converted = major / fxUsdKrw
	default:
		return 0, ErrUnsupportedPair
	}

	return int64(math.Round(converted * float64(to.MinorUnitScale()))), nil
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
