package analytics

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/divvy/internal/domain"
)

func position(ticker string, quantity, avgPrice, curPrice int64) domain.Position {
	q := decimal.NewFromInt(quantity)
	avg := decimal.NewFromInt(avgPrice)
	cur := decimal.NewFromInt(curPrice)
	return domain.Position{
		Ticker:       ticker,
		Quantity:     q,
		AveragePrice: avg,
		CurrentPrice: cur,
		Currency:     "USD",
		Value:        q.Mul(cur),
		PPL:          q.Mul(cur.Sub(avg)),
	}
}

func forecast(ticker, perShare string) domain.Forecast {
	return domain.Forecast{
		Ticker:           ticker,
		DividendPerShare: decimal.RequireFromString(perShare),
		Currency:         "USD",
	}
}

func payout(ticker string, paidOn time.Time, gross, wht string) domain.PayoutRecord {
	return domain.PayoutRecord{
		PaidOn:      paidOn,
		ISIN:        "ISIN-" + ticker,
		Ticker:      ticker,
		Name:        ticker,
		Quantity:    decimal.NewFromInt(1),
		Currency:    "USD",
		GrossAmount: decimal.RequireFromString(gross),
		WithheldTax: decimal.RequireFromString(wht),
	}
}

func TestYieldAndYieldOnCost(t *testing.T) {
	// quantity=10, average_price=5, current_price=6 (current_value=60),
	// annual dividend per share=1.0.
	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{position("X", 10, 5, 6)},
		Forecasts: map[string]domain.Forecast{"X": forecast("X", "1.0")},
		Now:       time.Now(),
	})

	require.Len(t, snap.DividendSummaries, 1)
	s := snap.DividendSummaries[0]

	assert.True(t, s.AnnualDividend.Equal(decimal.NewFromInt(10)), "annual dividend")
	assert.Equal(t, "16.667", s.DividendYield.Round(3).String(), "yield = 10/60")
	assert.True(t, s.YieldOnCost.Equal(decimal.NewFromInt(20)), "yield on cost = 10/50")
	assert.True(t, s.TotalInvestment.Equal(decimal.NewFromInt(50)))
}

func TestWHTNetting(t *testing.T) {
	// History for X: gross=100, WHT=15 across two payouts -> rate 15%.
	// Forecast annual dividend = 20 -> WHT 3.0, income after WHT 17.0.
	paidOn := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{position("X", 20, 10, 11)},
		Payouts: []domain.PayoutRecord{
			payout("X", paidOn, "60", "9"),
			payout("X", paidOn.AddDate(0, 3, 0), "40", "6"),
		},
		Forecasts: map[string]domain.Forecast{"X": forecast("X", "1.0")},
		Now:       time.Now(),
	})

	require.Len(t, snap.DividendSummaries, 1)
	s := snap.DividendSummaries[0]

	assert.True(t, s.AnnualDividend.Equal(decimal.NewFromInt(20)))
	assert.True(t, s.AnnualWHT.Equal(decimal.NewFromInt(3)), "annual WHT, got %s", s.AnnualWHT)
	assert.True(t, s.AnnualIncomeAfterWHT.Equal(decimal.NewFromInt(17)))
	assert.True(t, s.WHTObserved)
}

func TestWHTRateNotObservedDefaultsToZero(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{position("NEW", 10, 5, 6)},
		Forecasts: map[string]domain.Forecast{"NEW": forecast("NEW", "0.5")},
		Now:       time.Now(),
	})

	require.Len(t, snap.DividendSummaries, 1)
	s := snap.DividendSummaries[0]
	assert.True(t, s.AnnualWHT.IsZero())
	assert.True(t, s.AnnualIncomeAfterWHT.Equal(s.AnnualDividend))
	assert.False(t, s.WHTObserved)
}

func TestMissingForecastOmitsTickerOnly(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{
			position("HAS", 10, 5, 6),
			position("LACKS", 3, 7, 8),
		},
		Forecasts: map[string]domain.Forecast{"HAS": forecast("HAS", "1.0")},
		Now:       time.Now(),
	})

	require.Len(t, snap.DividendSummaries, 1)
	assert.Equal(t, "HAS", snap.DividendSummaries[0].Ticker)
	require.Len(t, snap.UpcomingPayments, 1)
	assert.Equal(t, "HAS", snap.UpcomingPayments[0].Ticker)

	// The ticker without forecast still contributes to portfolio totals.
	assert.True(t, snap.Totals.Invested.Equal(decimal.NewFromInt(71)))
}

func TestUpcomingPaymentAppliesHistoricalWHTRate(t *testing.T) {
	paidOn := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	exDate := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)

	f := forecast("X", "0.5")
	f.ExDividendDate = &exDate

	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{position("X", 40, 10, 12)},
		Payouts:   []domain.PayoutRecord{payout("X", paidOn, "100", "15")},
		Forecasts: map[string]domain.Forecast{"X": f},
		Now:       time.Now(),
	})

	require.Len(t, snap.UpcomingPayments, 1)
	up := snap.UpcomingPayments[0]

	assert.True(t, up.TotalDividend.Equal(decimal.NewFromInt(20)), "40 shares * 0.5")
	assert.True(t, up.WithheldTax.Equal(decimal.NewFromInt(3)), "15 percent of 20")
	assert.True(t, up.NetDividend.Equal(decimal.NewFromInt(17)))
	require.NotNil(t, up.PaymentDate)
	assert.Equal(t, exDate, *up.PaymentDate)
}

func TestClosedPositionProducesNoProjection(t *testing.T) {
	pos := position("X", 0, 10, 12)

	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{pos},
		Forecasts: map[string]domain.Forecast{"X": forecast("X", "0.5")},
		Now:       time.Now(),
	})

	assert.Empty(t, snap.UpcomingPayments)
}

func TestPortfolioTotalsAggregateFirstRoundLast(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{
			position("A", 3, 100, 110),
			position("B", 7, 50, 45),
		},
		Cash: &domain.AccountCash{Free: decimal.NewFromInt(250)},
		Now:  time.Now(),
	})

	// invested = 300 + 350 = 650; value = 330 + 315 = 645; ppl = 30 - 35 = -5.
	assert.True(t, snap.Totals.Invested.Equal(decimal.NewFromInt(650)))
	assert.True(t, snap.Totals.CurrentValue.Equal(decimal.NewFromInt(645)))
	assert.True(t, snap.Totals.PPL.Equal(decimal.NewFromInt(-5)))
	// Percent computed on aggregated totals, not per-position.
	assert.Equal(t, "-0.7692", snap.Totals.PPLPercent.Round(4).String())
	assert.True(t, snap.Totals.FreeCash.Equal(decimal.NewFromInt(250)))
}

func TestCustomWHTRateFn(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	// Flat 30% regardless of history.
	calc.SetWHTRateFn(func(gross, withheld decimal.Decimal) decimal.Decimal {
		return decimal.RequireFromString("0.3")
	})

	snap := calc.BuildSnapshot(Inputs{
		Positions: []domain.Position{position("X", 10, 5, 6)},
		Payouts:   []domain.PayoutRecord{payout("X", time.Now(), "100", "0")},
		Forecasts: map[string]domain.Forecast{"X": forecast("X", "1.0")},
		Now:       time.Now(),
	})

	require.Len(t, snap.DividendSummaries, 1)
	assert.True(t, snap.DividendSummaries[0].AnnualWHT.Equal(decimal.NewFromInt(3)))
}

func TestPayoutRecordsSortedNewestFirst(t *testing.T) {
	old := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	calc := NewCalculator(zerolog.Nop())
	snap := calc.BuildSnapshot(Inputs{
		Payouts: []domain.PayoutRecord{payout("A", old, "1", "0"), payout("B", recent, "1", "0")},
		Now:     time.Now(),
	})

	require.Len(t, snap.PayoutRecords, 2)
	assert.Equal(t, "B", snap.PayoutRecords[0].Ticker)
}
