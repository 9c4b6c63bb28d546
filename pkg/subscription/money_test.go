package subscription_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

func TestMoney_Decimal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		money subscription.Money
		want  string
	}{
		{money: subscription.Money{Amount: 1099, Currency: "USD"}, want: "10.99"},
		{money: subscription.Money{Amount: 1099, Currency: "eur"}, want: "10.99"},
		{money: subscription.Money{Amount: 1500, Currency: "JPY"}, want: "1500"},
		{money: subscription.Money{Amount: 990, Currency: "vnd"}, want: "990"},
		{money: subscription.Money{Amount: 1500, Currency: "BHD"}, want: "1.5"},
		{money: subscription.Money{Amount: 0, Currency: "USD"}, want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.money.Currency, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.money.Decimal().String())
		})
	}

	assert.Equal(t, int32(2), subscription.CurrencyExponent("GBP"))
	assert.Equal(t, int32(0), subscription.CurrencyExponent("krw"))
	assert.Equal(t, int32(3), subscription.CurrencyExponent("KWD"))
}
