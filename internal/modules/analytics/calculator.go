// Package analytics computes every derived figure in a snapshot. All
// functions here are pure and total over validated input: the adapters
// reject bad data at the boundary, so nothing in this package returns an
// error or panics on its domain.
package analytics

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/divvy/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Inputs is one refresh cycle's complete raw input batch.
type Inputs struct {
	Positions    []domain.Position
	Payouts      []domain.PayoutRecord
	Forecasts    map[string]domain.Forecast
	Cash         *domain.AccountCash
	Mode         domain.Mode
	BaseCurrency string
	Now          time.Time
}

// WHTRateFn derives a prospective withholding rate from a ticker's realized
// gross and withheld totals. The derivation is deliberately pluggable: the
// realized-rate ratio is a heuristic, not hard law.
type WHTRateFn func(gross, withheld decimal.Decimal) decimal.Decimal

// RealizedWHTRate is the default derivation: withheld / gross over the
// ticker's full payout history. Zero history yields a zero rate.
func RealizedWHTRate(gross, withheld decimal.Decimal) decimal.Decimal {
	if gross.IsZero() {
		return decimal.Zero
	}
	return withheld.Div(gross)
}

// Calculator builds snapshots from raw inputs.
type Calculator struct {
	whtRate WHTRateFn
	log     zerolog.Logger
}

// NewCalculator creates a calculator using the realized WHT rate.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		whtRate: RealizedWHTRate,
		log:     log.With().Str("component", "calculator").Logger(),
	}
}

// SetWHTRateFn replaces the withholding-rate derivation.
func (c *Calculator) SetWHTRateFn(fn WHTRateFn) {
	if fn != nil {
		c.whtRate = fn
	}
}

// BuildSnapshot derives a complete, internally consistent snapshot from one
// input batch. The result is immutable by convention: nothing retains a
// reference to its slices after publish.
func (c *Calculator) BuildSnapshot(in Inputs) *domain.Snapshot {
	whtRates := c.deriveWHTRates(in.Payouts)

	snap := &domain.Snapshot{
		Positions:         in.Positions,
		Totals:            portfolioTotals(in.Positions, in.Cash),
		DividendSummaries: c.dividendSummaries(in.Positions, in.Forecasts, whtRates),
		UpcomingPayments:  c.upcomingPayments(in.Positions, in.Forecasts, whtRates),
		PayoutRecords:     sortPayoutsNewestFirst(in.Payouts),
		TickerSummaries:   AggregateByTicker(in.Payouts),
		MonthlySummaries:  AggregateByMonth(in.Payouts),
		PayoutTotals:      PayoutTotals(in.Payouts),
		Mode:              in.Mode,
		BaseCurrency:      in.BaseCurrency,
		GeneratedAt:       in.Now,
	}

	c.log.Debug().
		Int("positions", len(snap.Positions)).
		Int("summaries", len(snap.DividendSummaries)).
		Int("upcoming", len(snap.UpcomingPayments)).
		Int("payouts", len(snap.PayoutRecords)).
		Msg("Snapshot computed")

	return snap
}

// whtRate pairs the derived rate with whether any history backed it.
type whtRate struct {
	rate     decimal.Decimal
	observed bool
}

func (c *Calculator) deriveWHTRates(payouts []domain.PayoutRecord) map[string]whtRate {
	type totals struct{ gross, withheld decimal.Decimal }
	byTicker := make(map[string]*totals)
	for _, rec := range payouts {
		t, ok := byTicker[rec.Ticker]
		if !ok {
			t = &totals{}
			byTicker[rec.Ticker] = t
		}
		t.gross = t.gross.Add(rec.GrossAmount)
		t.withheld = t.withheld.Add(rec.WithheldTax)
	}

	rates := make(map[string]whtRate, len(byTicker))
	for ticker, t := range byTicker {
		rates[ticker] = whtRate{
			rate:     c.whtRate(t.gross, t.withheld),
			observed: t.gross.IsPositive(),
		}
	}
	return rates
}

func (c *Calculator) dividendSummaries(
	positions []domain.Position,
	forecasts map[string]domain.Forecast,
	whtRates map[string]whtRate,
) []domain.DividendSummary {
	summaries := make([]domain.DividendSummary, 0, len(positions))
	for _, pos := range positions {
		forecast, ok := forecasts[pos.Ticker]
		if !ok {
			continue
		}

		totalInvestment := pos.Quantity.Mul(pos.AveragePrice)
		annualDividend := forecast.DividendPerShare.Mul(pos.Quantity)
		currentValue := pos.Quantity.Mul(pos.CurrentPrice)

		wht := whtRates[pos.Ticker] // zero value: rate 0, not observed
		annualWHT := annualDividend.Mul(wht.rate)

		summary := domain.DividendSummary{
			Ticker:                 pos.Ticker,
			Quantity:               pos.Quantity,
			AveragePrice:           pos.AveragePrice,
			TotalInvestment:        totalInvestment,
			AnnualDividendPerShare: forecast.DividendPerShare,
			AnnualDividend:         annualDividend,
			AnnualWHT:              annualWHT,
			AnnualIncomeAfterWHT:   annualDividend.Sub(annualWHT),
			WHTObserved:            wht.observed,
		}
		// Aggregate first, round never: full precision is kept here and
		// trimmed only at the presentation boundary.
		if currentValue.IsPositive() {
			summary.DividendYield = annualDividend.Div(currentValue).Mul(hundred)
		}
		if totalInvestment.IsPositive() {
			summary.YieldOnCost = annualDividend.Div(totalInvestment).Mul(hundred)
		}

		summaries = append(summaries, summary)
	}
	return summaries
}

func (c *Calculator) upcomingPayments(
	positions []domain.Position,
	forecasts map[string]domain.Forecast,
	whtRates map[string]whtRate,
) []domain.UpcomingPayment {
	payments := make([]domain.UpcomingPayment, 0, len(forecasts))
	for _, pos := range positions {
		// A closed position produces no projection even when a forecast
		// exists.
		if !pos.Quantity.IsPositive() {
			continue
		}
		forecast, ok := forecasts[pos.Ticker]
		if !ok {
			continue
		}

		total := forecast.DividendPerShare.Mul(pos.Quantity)
		withheld := total.Mul(whtRates[pos.Ticker].rate)

		payments = append(payments, domain.UpcomingPayment{
			Ticker:           pos.Ticker,
			PaymentDate:      forecast.ExDividendDate,
			DividendPerShare: forecast.DividendPerShare,
			TotalDividend:    total,
			WithheldTax:      withheld,
			NetDividend:      total.Sub(withheld),
		})
	}
	return payments
}

func portfolioTotals(positions []domain.Position, cash *domain.AccountCash) domain.PortfolioTotals {
	totals := domain.PortfolioTotals{}
	for _, pos := range positions {
		totals.Invested = totals.Invested.Add(pos.Quantity.Mul(pos.AveragePrice))
		totals.CurrentValue = totals.CurrentValue.Add(pos.Value)
		totals.PPL = totals.PPL.Add(pos.PPL)
	}
	if totals.Invested.IsPositive() {
		totals.PPLPercent = totals.PPL.Div(totals.Invested).Mul(hundred)
	}
	if cash != nil {
		totals.FreeCash = cash.Free
	}
	return totals
}

func sortPayoutsNewestFirst(payouts []domain.PayoutRecord) []domain.PayoutRecord {
	out := make([]domain.PayoutRecord, len(payouts))
	copy(out, payouts)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PaidOn.Equal(out[j].PaidOn) {
			return out[i].PaidOn.After(out[j].PaidOn)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
