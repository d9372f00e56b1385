package trading212

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/divvy/internal/domain"
)

// Transformers convert raw API DTOs into validated domain types. Validation
// failures surface as ErrMalformedResponse for the whole fetch: the engine
// would rather keep last cycle's data than publish numbers derived from a
// payload it does not understand.

var hundred = decimal.NewFromInt(100)

func transformPositions(raw []apiPosition) ([]domain.Position, error) {
	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		if err := validatePosition(p); err != nil {
			return nil, err
		}
		// Closed positions still appear in the API response occasionally;
		// they carry no analytics value.
		if p.Quantity == 0 {
			continue
		}

		quantity := decimal.NewFromFloat(p.Quantity)
		avgPrice := decimal.NewFromFloat(p.AveragePrice)
		curPrice := decimal.NewFromFloat(p.CurrentPrice)

		pplPercent := decimal.Zero
		if avgPrice.IsPositive() {
			pplPercent = curPrice.Div(avgPrice).Sub(decimal.NewFromInt(1)).Mul(hundred)
		}

		positions = append(positions, domain.Position{
			Ticker:       p.Ticker,
			Quantity:     quantity,
			AveragePrice: avgPrice,
			CurrentPrice: curPrice,
			Currency:     p.CurrencyCode,
			Value:        quantity.Mul(curPrice),
			PPL:          quantity.Mul(curPrice.Sub(avgPrice)),
			PPLPercent:   pplPercent,
		})
	}
	return positions, nil
}

func transformCash(raw *apiCash) (*domain.AccountCash, error) {
	if raw.Total < 0 || raw.Invested < 0 {
		return nil, fmt.Errorf("negative account value: %w", domain.ErrMalformedResponse)
	}
	return &domain.AccountCash{
		Free:     decimal.NewFromFloat(raw.Free),
		Invested: decimal.NewFromFloat(raw.Invested),
		Total:    decimal.NewFromFloat(raw.Total),
	}, nil
}

func transformDividends(raw []apiDividend) ([]domain.PayoutRecord, error) {
	records := make([]domain.PayoutRecord, 0, len(raw))
	for _, d := range raw {
		if err := validateDividend(d); err != nil {
			return nil, err
		}

		paidOn, err := parsePaidOn(d.PaidOn)
		if err != nil {
			return nil, err
		}

		records = append(records, domain.PayoutRecord{
			// Day granularity: the payout identity key is date-based.
			PaidOn:        paidOn.UTC().Truncate(24 * time.Hour),
			ISIN:          d.ISIN,
			Ticker:        d.Ticker,
			Name:          d.Name,
			Quantity:      decimal.NewFromFloat(d.Quantity),
			PricePerShare: decimal.NewFromFloat(d.GrossAmountPerShare),
			Currency:      d.Currency,
			GrossAmount:   decimal.NewFromFloat(d.GrossAmount),
			WithheldTax:   decimal.NewFromFloat(d.WithheldTax),
		})
	}
	return records, nil
}

func validatePosition(p apiPosition) error {
	if p.Ticker == "" {
		return fmt.Errorf("position with empty ticker: %w", domain.ErrMalformedResponse)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("position %s has negative quantity: %w", p.Ticker, domain.ErrMalformedResponse)
	}
	if p.AveragePrice < 0 || p.CurrentPrice < 0 {
		return fmt.Errorf("position %s has negative price: %w", p.Ticker, domain.ErrMalformedResponse)
	}
	if len(p.CurrencyCode) != 3 {
		return fmt.Errorf("position %s has invalid currency %q: %w", p.Ticker, p.CurrencyCode, domain.ErrMalformedResponse)
	}
	return nil
}

func validateDividend(d apiDividend) error {
	if d.Ticker == "" || d.ISIN == "" {
		return fmt.Errorf("payout record missing identity fields: %w", domain.ErrMalformedResponse)
	}
	if d.Quantity < 0 || d.GrossAmount < 0 || d.WithheldTax < 0 {
		return fmt.Errorf("payout record for %s has negative amounts: %w", d.Ticker, domain.ErrMalformedResponse)
	}
	if d.WithheldTax > d.GrossAmount {
		return fmt.Errorf("payout record for %s withholds more than gross: %w", d.Ticker, domain.ErrMalformedResponse)
	}
	return nil
}

func parsePaidOn(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable payment date %q: %w", s, domain.ErrMalformedResponse)
}
