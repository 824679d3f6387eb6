package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are currencies the gateway only accepts as whole units.
var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {},
	"HUF": {},
	"TWD": {},
}

// CurrencyDecimals returns the number of minor-unit digits for a currency code.
func CurrencyDecimals(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// ParseAmount parses a gateway decimal string. An empty string is zero.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return d, nil
}

// ParseCurrencyAmount parses value and rejects digits beyond the currency's
// precision, so the amount checked locally is the amount the gateway receives.
func ParseCurrencyAmount(value, currency string) (decimal.Decimal, error) {
	d, err := ParseAmount(value)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.Equal(TruncateAmount(d, currency)) {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrAmountPrecision, value, currency)
	}
	return d, nil
}

// FormatAmount renders an amount the way the gateway expects it for currency.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(CurrencyDecimals(currency))
}

// RoundAmount rounds half-up to the currency's precision.
func RoundAmount(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(CurrencyDecimals(currency))
}

// TruncateAmount drops digits beyond the currency's precision (rounds toward zero).
func TruncateAmount(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Truncate(CurrencyDecimals(currency))
}

// AmountsEqual compares two amounts at the currency's precision.
func AmountsEqual(a, b decimal.Decimal, currency string) bool {
	return RoundAmount(a, currency).Equal(RoundAmount(b, currency))
}
