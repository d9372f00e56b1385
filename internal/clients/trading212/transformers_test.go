package trading212

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/divvy/internal/domain"
)

func TestTransformPositionsComputesDerivedFields(t *testing.T) {
	raw := []apiPosition{
		{Ticker: "AAPL_US_EQ", Quantity: 10, AveragePrice: 100, CurrentPrice: 120, CurrencyCode: "USD"},
	}

	positions, err := transformPositions(raw)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.True(t, p.Value.Equal(decimal.NewFromInt(1200)), "value = quantity * current price")
	assert.True(t, p.PPL.Equal(decimal.NewFromInt(200)), "ppl = quantity * (current - average)")
	assert.True(t, p.PPLPercent.Equal(decimal.NewFromInt(20)), "ppl percent")
}

func TestTransformPositionsFiltersZeroQuantity(t *testing.T) {
	raw := []apiPosition{
		{Ticker: "AAPL_US_EQ", Quantity: 0, AveragePrice: 100, CurrentPrice: 120, CurrencyCode: "USD"},
		{Ticker: "MSFT_US_EQ", Quantity: 5, AveragePrice: 300, CurrentPrice: 310, CurrencyCode: "USD"},
	}

	positions, err := transformPositions(raw)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "MSFT_US_EQ", positions[0].Ticker)
}

func TestTransformPositionsZeroAveragePrice(t *testing.T) {
	raw := []apiPosition{
		{Ticker: "FREE_SHARE", Quantity: 1, AveragePrice: 0, CurrentPrice: 5, CurrencyCode: "GBP"},
	}

	positions, err := transformPositions(raw)
	require.NoError(t, err)
	assert.True(t, positions[0].PPLPercent.IsZero(), "no percent when cost basis is zero")
}

func TestTransformPositionsRejectsInvalid(t *testing.T) {
	cases := map[string]apiPosition{
		"empty ticker":      {Ticker: "", Quantity: 1, CurrencyCode: "USD"},
		"negative quantity": {Ticker: "X", Quantity: -1, CurrencyCode: "USD"},
		"negative price":    {Ticker: "X", Quantity: 1, CurrentPrice: -2, CurrencyCode: "USD"},
		"bad currency":      {Ticker: "X", Quantity: 1, CurrencyCode: "US"},
	}

	for name, pos := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := transformPositions([]apiPosition{pos})
			assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
		})
	}
}

func TestTransformDividends(t *testing.T) {
	raw := []apiDividend{
		{
			PaidOn:              "2025-03-14T13:45:00Z",
			ISIN:                "US0378331005",
			Ticker:              "AAPL_US_EQ",
			Name:                "Apple",
			Quantity:            10,
			GrossAmountPerShare: 0.25,
			Currency:            "USD",
			GrossAmount:         2.5,
			WithheldTax:         0.38,
		},
	}

	records, err := transformDividends(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), rec.PaidOn, "truncated to day")
	assert.Equal(t, "US0378331005|2025-03-14|AAPL_US_EQ", rec.IdentityKey())
	assert.True(t, rec.NetAmount().Equal(decimal.RequireFromString("2.12")))
}

func TestTransformDividendsRejectsInvalid(t *testing.T) {
	cases := map[string]apiDividend{
		"missing isin":     {PaidOn: "2025-03-14", Ticker: "X"},
		"negative gross":   {PaidOn: "2025-03-14", Ticker: "X", ISIN: "I", GrossAmount: -1},
		"wht above gross":  {PaidOn: "2025-03-14", Ticker: "X", ISIN: "I", GrossAmount: 1, WithheldTax: 2},
		"unparseable date": {PaidOn: "14/03/2025", Ticker: "X", ISIN: "I", GrossAmount: 1},
	}

	for name, div := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := transformDividends([]apiDividend{div})
			assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
		})
	}
}
