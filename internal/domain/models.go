// Package domain contains the shared data model for the analytics engine.
// Everything in here is immutable once it has been placed inside a published
// Snapshot; mutation happens only while a refresh cycle is assembling its
// inputs.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects which Trading212 environment credentials apply to.
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

// ParseMode converts a stored string into a Mode, defaulting to demo.
func ParseMode(s string) Mode {
	if s == string(ModeLive) {
		return ModeLive
	}
	return ModeDemo
}

// Settings is the configuration consumed at the start of each refresh cycle.
// A cycle reads it exactly once; changes apply from the next cycle on.
type Settings struct {
	Mode            Mode
	APIKey          string
	BaseCurrency    string
	RefreshInterval time.Duration
}

// Position is one held instrument as reported by the brokerage.
type Position struct {
	Ticker       string          `json:"ticker"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Currency     string          `json:"currency"`
	Value        decimal.Decimal `json:"value"`
	PPL          decimal.Decimal `json:"ppl"`
	PPLPercent   decimal.Decimal `json:"ppl_percent"`
}

// AccountCash is the account-level value summary from the brokerage.
type AccountCash struct {
	Free     decimal.Decimal `json:"free"`
	Invested decimal.Decimal `json:"invested"`
	Total    decimal.Decimal `json:"total"`
}

// PayoutRecord is one historical cash dividend event. Its identity is the
// (ISIN, payment date, ticker) triple; records with the same identity are
// the same payout regardless of which fetch produced them.
type PayoutRecord struct {
	PaidOn        time.Time       `json:"paid_on"`
	ISIN          string          `json:"isin"`
	Ticker        string          `json:"ticker"`
	Name          string          `json:"name"`
	Quantity      decimal.Decimal `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Currency      string          `json:"currency"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	WithheldTax   decimal.Decimal `json:"withheld_tax"`
}

// NetAmount is the payout after withholding tax.
func (r PayoutRecord) NetAmount() decimal.Decimal {
	return r.GrossAmount.Sub(r.WithheldTax)
}

// IdentityKey returns the deduplication key for this record.
func (r PayoutRecord) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%s", r.ISIN, r.PaidOn.UTC().Format("2006-01-02"), r.Ticker)
}

// Forecast is a per-ticker forward dividend-per-share estimate. It is a
// best-effort hint: absence for a ticker only omits that ticker from the
// upcoming-payment projection.
type Forecast struct {
	Ticker           string          `json:"ticker"`
	DividendPerShare decimal.Decimal `json:"dividend_per_share"`
	Currency         string          `json:"currency"`
	ExDividendDate   *time.Time      `json:"ex_dividend_date,omitempty"`
}

// DividendSummary holds the derived dividend metrics for one held ticker.
// Recomputed from scratch every cycle.
type DividendSummary struct {
	Ticker                 string          `json:"ticker"`
	Quantity               decimal.Decimal `json:"quantity"`
	AveragePrice           decimal.Decimal `json:"average_price"`
	TotalInvestment        decimal.Decimal `json:"total_investment"`
	AnnualDividendPerShare decimal.Decimal `json:"annual_dividend_per_share"`
	AnnualDividend         decimal.Decimal `json:"annual_dividend"`
	DividendYield          decimal.Decimal `json:"dividend_yield"`
	YieldOnCost            decimal.Decimal `json:"yield_on_cost"`
	AnnualWHT              decimal.Decimal `json:"annual_wht"`
	AnnualIncomeAfterWHT   decimal.Decimal `json:"annual_income_after_wht"`
	// WHTObserved is false when the ticker has no payout history to derive
	// a withholding rate from; the rate is then zero.
	WHTObserved bool `json:"wht_observed"`
}

// UpcomingPayment is a single projected next payout for a held ticker.
type UpcomingPayment struct {
	Ticker           string          `json:"ticker"`
	PaymentDate      *time.Time      `json:"payment_date,omitempty"`
	DividendPerShare decimal.Decimal `json:"dividend_per_share"`
	TotalDividend    decimal.Decimal `json:"total_dividend"`
	WithheldTax      decimal.Decimal `json:"withheld_tax"`
	NetDividend      decimal.Decimal `json:"net_dividend"`
}

// TickerPayoutSummary aggregates payout history for one ticker.
type TickerPayoutSummary struct {
	Ticker string          `json:"ticker"`
	Gross  decimal.Decimal `json:"gross"`
	WHT    decimal.Decimal `json:"wht"`
	Net    decimal.Decimal `json:"net"`
}

// MonthlyPayoutSummary aggregates payout history for one calendar month.
type MonthlyPayoutSummary struct {
	Year  int             `json:"year"`
	Month time.Month      `json:"month"`
	Gross decimal.Decimal `json:"gross"`
	WHT   decimal.Decimal `json:"wht"`
	Net   decimal.Decimal `json:"net"`
}

// PayoutTotals is the all-history payout total row.
type PayoutTotals struct {
	Gross decimal.Decimal `json:"gross"`
	WHT   decimal.Decimal `json:"wht"`
	Net   decimal.Decimal `json:"net"`
}

// PortfolioTotals holds portfolio-level aggregates.
type PortfolioTotals struct {
	Invested     decimal.Decimal `json:"invested"`
	CurrentValue decimal.Decimal `json:"current_value"`
	PPL          decimal.Decimal `json:"ppl"`
	PPLPercent   decimal.Decimal `json:"ppl_percent"`
	FreeCash     decimal.Decimal `json:"free_cash"`
}

// Snapshot is the atomic unit published by a refresh cycle. All derived
// fields inside one snapshot are computed from the same input batch; readers
// always observe a whole snapshot, never a mixture of two cycles.
type Snapshot struct {
	Positions         []Position             `json:"positions"`
	Totals            PortfolioTotals        `json:"totals"`
	DividendSummaries []DividendSummary      `json:"dividend_summaries"`
	UpcomingPayments  []UpcomingPayment      `json:"upcoming_payments"`
	PayoutRecords     []PayoutRecord         `json:"payout_records"`
	TickerSummaries   []TickerPayoutSummary  `json:"ticker_summaries"`
	MonthlySummaries  []MonthlyPayoutSummary `json:"monthly_summaries"`
	PayoutTotals      PayoutTotals           `json:"payout_totals"`
	Mode              Mode                   `json:"mode"`
	BaseCurrency      string                 `json:"base_currency"`
	GeneratedAt       time.Time              `json:"generated_at"`
}
