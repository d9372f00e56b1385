package snapshots

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/divvy/internal/domain"
)

// Store persists the last published snapshot into cache.db as a msgpack
// blob so a restart can serve last-known data (with its original timestamp)
// while the first refresh cycle runs. Decimals travel as strings: msgpack
// reflection cannot see their unexported fields.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a snapshot store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("store", "snapshots").Logger(),
	}
}

// Migrate creates the snapshot table if it does not exist. The table holds
// at most one row: the latest snapshot.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshot (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BLOB NOT NULL,
			generated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot. Failures are the caller's to log;
// persistence is best-effort and never blocks publishing.
func (s *Store) Save(snap *domain.Snapshot) error {
	payload, err := msgpack.Marshal(toStored(snap))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshot (id, payload, generated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			generated_at = excluded.generated_at
	`, payload, snap.GeneratedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when none exists. A corrupt
// blob is treated as absent: the warm start is an optimization, not a
// source of truth.
func (s *Store) Load() (*domain.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM snapshot WHERE id = 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored snapshot: %w", err)
	}

	var stored storedSnapshot
	if err := msgpack.Unmarshal(payload, &stored); err != nil {
		s.log.Warn().Err(err).Msg("Discarding undecodable stored snapshot")
		return nil, nil
	}

	snap, err := fromStored(&stored)
	if err != nil {
		s.log.Warn().Err(err).Msg("Discarding corrupt stored snapshot")
		return nil, nil
	}
	return snap, nil
}

// Storable mirror types. Money fields are decimal strings.

type storedSnapshot struct {
	Positions         []storedPosition        `msgpack:"positions"`
	Totals            storedTotals            `msgpack:"totals"`
	DividendSummaries []storedSummary         `msgpack:"dividend_summaries"`
	UpcomingPayments  []storedUpcoming        `msgpack:"upcoming_payments"`
	PayoutRecords     []storedPayout          `msgpack:"payout_records"`
	TickerSummaries   []storedTickerSummary   `msgpack:"ticker_summaries"`
	MonthlySummaries  []storedMonthlySummary  `msgpack:"monthly_summaries"`
	PayoutTotals      storedPayoutTotals      `msgpack:"payout_totals"`
	Mode              string                  `msgpack:"mode"`
	BaseCurrency      string                  `msgpack:"base_currency"`
	GeneratedAtUnix   int64                   `msgpack:"generated_at"`
}

type storedPosition struct {
	Ticker       string `msgpack:"ticker"`
	Quantity     string `msgpack:"quantity"`
	AveragePrice string `msgpack:"average_price"`
	CurrentPrice string `msgpack:"current_price"`
	Currency     string `msgpack:"currency"`
	Value        string `msgpack:"value"`
	PPL          string `msgpack:"ppl"`
	PPLPercent   string `msgpack:"ppl_percent"`
}

type storedTotals struct {
	Invested     string `msgpack:"invested"`
	CurrentValue string `msgpack:"current_value"`
	PPL          string `msgpack:"ppl"`
	PPLPercent   string `msgpack:"ppl_percent"`
	FreeCash     string `msgpack:"free_cash"`
}

type storedSummary struct {
	Ticker                 string `msgpack:"ticker"`
	Quantity               string `msgpack:"quantity"`
	AveragePrice           string `msgpack:"average_price"`
	TotalInvestment        string `msgpack:"total_investment"`
	AnnualDividendPerShare string `msgpack:"annual_dividend_per_share"`
	AnnualDividend         string `msgpack:"annual_dividend"`
	DividendYield          string `msgpack:"dividend_yield"`
	YieldOnCost            string `msgpack:"yield_on_cost"`
	AnnualWHT              string `msgpack:"annual_wht"`
	AnnualIncomeAfterWHT   string `msgpack:"annual_income_after_wht"`
	WHTObserved            bool   `msgpack:"wht_observed"`
}

type storedUpcoming struct {
	Ticker           string `msgpack:"ticker"`
	PaymentDateUnix  *int64 `msgpack:"payment_date"`
	DividendPerShare string `msgpack:"dividend_per_share"`
	TotalDividend    string `msgpack:"total_dividend"`
	WithheldTax      string `msgpack:"withheld_tax"`
	NetDividend      string `msgpack:"net_dividend"`
}

type storedPayout struct {
	PaidOnUnix    int64  `msgpack:"paid_on"`
	ISIN          string `msgpack:"isin"`
	Ticker        string `msgpack:"ticker"`
	Name          string `msgpack:"name"`
	Quantity      string `msgpack:"quantity"`
	PricePerShare string `msgpack:"price_per_share"`
	Currency      string `msgpack:"currency"`
	GrossAmount   string `msgpack:"gross_amount"`
	WithheldTax   string `msgpack:"withheld_tax"`
}

type storedTickerSummary struct {
	Ticker string `msgpack:"ticker"`
	Gross  string `msgpack:"gross"`
	WHT    string `msgpack:"wht"`
	Net    string `msgpack:"net"`
}

type storedMonthlySummary struct {
	Year  int    `msgpack:"year"`
	Month int    `msgpack:"month"`
	Gross string `msgpack:"gross"`
	WHT   string `msgpack:"wht"`
	Net   string `msgpack:"net"`
}

type storedPayoutTotals struct {
	Gross string `msgpack:"gross"`
	WHT   string `msgpack:"wht"`
	Net   string `msgpack:"net"`
}

func toStored(snap *domain.Snapshot) *storedSnapshot {
	out := &storedSnapshot{
		Mode:            string(snap.Mode),
		BaseCurrency:    snap.BaseCurrency,
		GeneratedAtUnix: snap.GeneratedAt.Unix(),
		Totals: storedTotals{
			Invested:     snap.Totals.Invested.String(),
			CurrentValue: snap.Totals.CurrentValue.String(),
			PPL:          snap.Totals.PPL.String(),
			PPLPercent:   snap.Totals.PPLPercent.String(),
			FreeCash:     snap.Totals.FreeCash.String(),
		},
		PayoutTotals: storedPayoutTotals{
			Gross: snap.PayoutTotals.Gross.String(),
			WHT:   snap.PayoutTotals.WHT.String(),
			Net:   snap.PayoutTotals.Net.String(),
		},
	}

	for _, p := range snap.Positions {
		out.Positions = append(out.Positions, storedPosition{
			Ticker:       p.Ticker,
			Quantity:     p.Quantity.String(),
			AveragePrice: p.AveragePrice.String(),
			CurrentPrice: p.CurrentPrice.String(),
			Currency:     p.Currency,
			Value:        p.Value.String(),
			PPL:          p.PPL.String(),
			PPLPercent:   p.PPLPercent.String(),
		})
	}
	for _, s := range snap.DividendSummaries {
		out.DividendSummaries = append(out.DividendSummaries, storedSummary{
			Ticker:                 s.Ticker,
			Quantity:               s.Quantity.String(),
			AveragePrice:           s.AveragePrice.String(),
			TotalInvestment:        s.TotalInvestment.String(),
			AnnualDividendPerShare: s.AnnualDividendPerShare.String(),
			AnnualDividend:         s.AnnualDividend.String(),
			DividendYield:          s.DividendYield.String(),
			YieldOnCost:            s.YieldOnCost.String(),
			AnnualWHT:              s.AnnualWHT.String(),
			AnnualIncomeAfterWHT:   s.AnnualIncomeAfterWHT.String(),
			WHTObserved:            s.WHTObserved,
		})
	}
	for _, u := range snap.UpcomingPayments {
		stored := storedUpcoming{
			Ticker:           u.Ticker,
			DividendPerShare: u.DividendPerShare.String(),
			TotalDividend:    u.TotalDividend.String(),
			WithheldTax:      u.WithheldTax.String(),
			NetDividend:      u.NetDividend.String(),
		}
		if u.PaymentDate != nil {
			unix := u.PaymentDate.Unix()
			stored.PaymentDateUnix = &unix
		}
		out.UpcomingPayments = append(out.UpcomingPayments, stored)
	}
	for _, r := range snap.PayoutRecords {
		out.PayoutRecords = append(out.PayoutRecords, storedPayout{
			PaidOnUnix:    r.PaidOn.Unix(),
			ISIN:          r.ISIN,
			Ticker:        r.Ticker,
			Name:          r.Name,
			Quantity:      r.Quantity.String(),
			PricePerShare: r.PricePerShare.String(),
			Currency:      r.Currency,
			GrossAmount:   r.GrossAmount.String(),
			WithheldTax:   r.WithheldTax.String(),
		})
	}
	for _, ts := range snap.TickerSummaries {
		out.TickerSummaries = append(out.TickerSummaries, storedTickerSummary{
			Ticker: ts.Ticker,
			Gross:  ts.Gross.String(),
			WHT:    ts.WHT.String(),
			Net:    ts.Net.String(),
		})
	}
	for _, ms := range snap.MonthlySummaries {
		out.MonthlySummaries = append(out.MonthlySummaries, storedMonthlySummary{
			Year:  ms.Year,
			Month: int(ms.Month),
			Gross: ms.Gross.String(),
			WHT:   ms.WHT.String(),
			Net:   ms.Net.String(),
		})
	}

	return out
}

func fromStored(stored *storedSnapshot) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		Mode:         domain.ParseMode(stored.Mode),
		BaseCurrency: stored.BaseCurrency,
		GeneratedAt:  time.Unix(stored.GeneratedAtUnix, 0).UTC(),
	}

	var err error
	if snap.Totals.Invested, err = dec(stored.Totals.Invested); err != nil {
		return nil, err
	}
	if snap.Totals.CurrentValue, err = dec(stored.Totals.CurrentValue); err != nil {
		return nil, err
	}
	if snap.Totals.PPL, err = dec(stored.Totals.PPL); err != nil {
		return nil, err
	}
	if snap.Totals.PPLPercent, err = dec(stored.Totals.PPLPercent); err != nil {
		return nil, err
	}
	if snap.Totals.FreeCash, err = dec(stored.Totals.FreeCash); err != nil {
		return nil, err
	}
	if snap.PayoutTotals.Gross, err = dec(stored.PayoutTotals.Gross); err != nil {
		return nil, err
	}
	if snap.PayoutTotals.WHT, err = dec(stored.PayoutTotals.WHT); err != nil {
		return nil, err
	}
	if snap.PayoutTotals.Net, err = dec(stored.PayoutTotals.Net); err != nil {
		return nil, err
	}

	for _, p := range stored.Positions {
		pos := domain.Position{Ticker: p.Ticker, Currency: p.Currency}
		fields := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&pos.Quantity, p.Quantity},
			{&pos.AveragePrice, p.AveragePrice},
			{&pos.CurrentPrice, p.CurrentPrice},
			{&pos.Value, p.Value},
			{&pos.PPL, p.PPL},
			{&pos.PPLPercent, p.PPLPercent},
		}
		for _, f := range fields {
			if *f.dst, err = dec(f.src); err != nil {
				return nil, err
			}
		}
		snap.Positions = append(snap.Positions, pos)
	}

	for _, s := range stored.DividendSummaries {
		sum := domain.DividendSummary{Ticker: s.Ticker, WHTObserved: s.WHTObserved}
		fields := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&sum.Quantity, s.Quantity},
			{&sum.AveragePrice, s.AveragePrice},
			{&sum.TotalInvestment, s.TotalInvestment},
			{&sum.AnnualDividendPerShare, s.AnnualDividendPerShare},
			{&sum.AnnualDividend, s.AnnualDividend},
			{&sum.DividendYield, s.DividendYield},
			{&sum.YieldOnCost, s.YieldOnCost},
			{&sum.AnnualWHT, s.AnnualWHT},
			{&sum.AnnualIncomeAfterWHT, s.AnnualIncomeAfterWHT},
		}
		for _, f := range fields {
			if *f.dst, err = dec(f.src); err != nil {
				return nil, err
			}
		}
		snap.DividendSummaries = append(snap.DividendSummaries, sum)
	}

	for _, u := range stored.UpcomingPayments {
		up := domain.UpcomingPayment{Ticker: u.Ticker}
		if u.PaymentDateUnix != nil {
			t := time.Unix(*u.PaymentDateUnix, 0).UTC()
			up.PaymentDate = &t
		}
		fields := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&up.DividendPerShare, u.DividendPerShare},
			{&up.TotalDividend, u.TotalDividend},
			{&up.WithheldTax, u.WithheldTax},
			{&up.NetDividend, u.NetDividend},
		}
		for _, f := range fields {
			if *f.dst, err = dec(f.src); err != nil {
				return nil, err
			}
		}
		snap.UpcomingPayments = append(snap.UpcomingPayments, up)
	}

	for _, r := range stored.PayoutRecords {
		rec := domain.PayoutRecord{
			PaidOn:   time.Unix(r.PaidOnUnix, 0).UTC(),
			ISIN:     r.ISIN,
			Ticker:   r.Ticker,
			Name:     r.Name,
			Currency: r.Currency,
		}
		fields := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&rec.Quantity, r.Quantity},
			{&rec.PricePerShare, r.PricePerShare},
			{&rec.GrossAmount, r.GrossAmount},
			{&rec.WithheldTax, r.WithheldTax},
		}
		for _, f := range fields {
			if *f.dst, err = dec(f.src); err != nil {
				return nil, err
			}
		}
		snap.PayoutRecords = append(snap.PayoutRecords, rec)
	}

	for _, ts := range stored.TickerSummaries {
		sum := domain.TickerPayoutSummary{Ticker: ts.Ticker}
		if sum.Gross, err = dec(ts.Gross); err != nil {
			return nil, err
		}
		if sum.WHT, err = dec(ts.WHT); err != nil {
			return nil, err
		}
		if sum.Net, err = dec(ts.Net); err != nil {
			return nil, err
		}
		snap.TickerSummaries = append(snap.TickerSummaries, sum)
	}

	for _, ms := range stored.MonthlySummaries {
		sum := domain.MonthlyPayoutSummary{Year: ms.Year, Month: time.Month(ms.Month)}
		if sum.Gross, err = dec(ms.Gross); err != nil {
			return nil, err
		}
		if sum.WHT, err = dec(ms.WHT); err != nil {
			return nil, err
		}
		if sum.Net, err = dec(ms.Net); err != nil {
			return nil, err
		}
		snap.MonthlySummaries = append(snap.MonthlySummaries, sum)
	}

	return snap, nil
}

func dec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored decimal %q: %w", s, err)
	}
	return d, nil
}
