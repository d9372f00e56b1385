package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/divvy/internal/domain"
)

// AggregateByTicker groups payout history by ticker. Totals are plain sums;
// the result order is unspecified (set semantics), presentation layers sort
// as they see fit.
func AggregateByTicker(payouts []domain.PayoutRecord) []domain.TickerPayoutSummary {
	byTicker := make(map[string]*domain.TickerPayoutSummary)
	for _, rec := range payouts {
		s, ok := byTicker[rec.Ticker]
		if !ok {
			s = &domain.TickerPayoutSummary{Ticker: rec.Ticker}
			byTicker[rec.Ticker] = s
		}
		s.Gross = s.Gross.Add(rec.GrossAmount)
		s.WHT = s.WHT.Add(rec.WithheldTax)
		s.Net = s.Net.Add(rec.NetAmount())
	}

	summaries := make([]domain.TickerPayoutSummary, 0, len(byTicker))
	for _, s := range byTicker {
		summaries = append(summaries, *s)
	}
	return summaries
}

// AggregateByMonth buckets payout history by UTC calendar month of the
// payment date, oldest first.
func AggregateByMonth(payouts []domain.PayoutRecord) []domain.MonthlyPayoutSummary {
	type monthKey struct {
		year  int
		month int
	}

	byMonth := make(map[monthKey]*domain.MonthlyPayoutSummary)
	for _, rec := range payouts {
		paidOn := rec.PaidOn.UTC()
		key := monthKey{year: paidOn.Year(), month: int(paidOn.Month())}
		s, ok := byMonth[key]
		if !ok {
			s = &domain.MonthlyPayoutSummary{Year: key.year, Month: paidOn.Month()}
			byMonth[key] = s
		}
		s.Gross = s.Gross.Add(rec.GrossAmount)
		s.WHT = s.WHT.Add(rec.WithheldTax)
		s.Net = s.Net.Add(rec.NetAmount())
	}

	summaries := make([]domain.MonthlyPayoutSummary, 0, len(byMonth))
	for _, s := range byMonth {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Year != summaries[j].Year {
			return summaries[i].Year < summaries[j].Year
		}
		return summaries[i].Month < summaries[j].Month
	})
	return summaries
}

// PayoutTotals sums the whole payout history into a single totals row.
func PayoutTotals(payouts []domain.PayoutRecord) domain.PayoutTotals {
	totals := domain.PayoutTotals{
		Gross: decimal.Zero,
		WHT:   decimal.Zero,
		Net:   decimal.Zero,
	}
	for _, rec := range payouts {
		totals.Gross = totals.Gross.Add(rec.GrossAmount)
		totals.WHT = totals.WHT.Add(rec.WithheldTax)
		totals.Net = totals.Net.Add(rec.NetAmount())
	}
	return totals
}
