package subscription

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  // Amount in smallest currency unit (cents for USD)
	Currency string // ISO 4217 currency code
}

// Decimal returns the amount in major units of its currency.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -CurrencyExponent(m.Currency))
}

// Currencies whose minor unit differs from 1/100, as listed by Stripe.
var (
	zeroDecimalCurrencies = map[string]struct{}{
		"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
		"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
	}
	threeDecimalCurrencies = map[string]struct{}{
		"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
	}
)

// CurrencyExponent returns the number of minor-unit digits of an ISO 4217 code.
func CurrencyExponent(currency string) int32 {
	code := strings.ToUpper(currency)
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}
