package snapshots

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/divvy/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db, zerolog.Nop())
	require.NoError(t, store.Migrate())
	return store
}

func fullSnapshot() *domain.Snapshot {
	paidOn := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	exDate := time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)

	return &domain.Snapshot{
		Positions: []domain.Position{{
			Ticker:       "AAPL_US_EQ",
			Quantity:     decimal.RequireFromString("10.5"),
			AveragePrice: decimal.RequireFromString("150.123456"),
			CurrentPrice: decimal.RequireFromString("175.50"),
			Currency:     "USD",
			Value:        decimal.RequireFromString("1842.75"),
			PPL:          decimal.RequireFromString("266.4537"),
			PPLPercent:   decimal.RequireFromString("16.9"),
		}},
		Totals: domain.PortfolioTotals{
			Invested:     decimal.RequireFromString("1576.296288"),
			CurrentValue: decimal.RequireFromString("1842.75"),
			PPL:          decimal.RequireFromString("266.4537"),
			PPLPercent:   decimal.RequireFromString("16.9"),
			FreeCash:     decimal.RequireFromString("42.01"),
		},
		DividendSummaries: []domain.DividendSummary{{
			Ticker:                 "AAPL_US_EQ",
			Quantity:               decimal.RequireFromString("10.5"),
			AveragePrice:           decimal.RequireFromString("150.123456"),
			TotalInvestment:        decimal.RequireFromString("1576.296288"),
			AnnualDividendPerShare: decimal.RequireFromString("0.96"),
			AnnualDividend:         decimal.RequireFromString("10.08"),
			DividendYield:          decimal.RequireFromString("0.547"),
			YieldOnCost:            decimal.RequireFromString("0.639"),
			AnnualWHT:              decimal.RequireFromString("1.512"),
			AnnualIncomeAfterWHT:   decimal.RequireFromString("8.568"),
			WHTObserved:            true,
		}},
		UpcomingPayments: []domain.UpcomingPayment{{
			Ticker:           "AAPL_US_EQ",
			PaymentDate:      &exDate,
			DividendPerShare: decimal.RequireFromString("0.24"),
			TotalDividend:    decimal.RequireFromString("2.52"),
			WithheldTax:      decimal.RequireFromString("0.378"),
			NetDividend:      decimal.RequireFromString("2.142"),
		}},
		PayoutRecords: []domain.PayoutRecord{{
			PaidOn:        paidOn,
			ISIN:          "US0378331005",
			Ticker:        "AAPL_US_EQ",
			Name:          "Apple Inc",
			Quantity:      decimal.RequireFromString("10.5"),
			PricePerShare: decimal.RequireFromString("0.24"),
			Currency:      "USD",
			GrossAmount:   decimal.RequireFromString("2.52"),
			WithheldTax:   decimal.RequireFromString("0.378"),
		}},
		TickerSummaries: []domain.TickerPayoutSummary{{
			Ticker: "AAPL_US_EQ",
			Gross:  decimal.RequireFromString("2.52"),
			WHT:    decimal.RequireFromString("0.378"),
			Net:    decimal.RequireFromString("2.142"),
		}},
		MonthlySummaries: []domain.MonthlyPayoutSummary{{
			Year:  2025,
			Month: time.March,
			Gross: decimal.RequireFromString("2.52"),
			WHT:   decimal.RequireFromString("0.378"),
			Net:   decimal.RequireFromString("2.142"),
		}},
		PayoutTotals: domain.PayoutTotals{
			Gross: decimal.RequireFromString("2.52"),
			WHT:   decimal.RequireFromString("0.378"),
			Net:   decimal.RequireFromString("2.142"),
		},
		Mode:         domain.ModeLive,
		BaseCurrency: "GBP",
		GeneratedAt:  time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC),
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStoreSave(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(fullSnapshot()))
}

func TestStoreRoundTripPreservesEverything(t *testing.T) {
	store := newTestStore(t)
	original := fullSnapshot()

	require.NoError(t, store.Save(original))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.Mode, loaded.Mode)
	assert.Equal(t, original.BaseCurrency, loaded.BaseCurrency)
	assert.True(t, original.GeneratedAt.Equal(loaded.GeneratedAt),
		"timestamp must survive: warm-started data keeps its original generated_at")

	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, "AAPL_US_EQ", loaded.Positions[0].Ticker)
	assert.True(t, original.Positions[0].AveragePrice.Equal(loaded.Positions[0].AveragePrice),
		"decimal precision must survive the round trip")

	require.Len(t, loaded.DividendSummaries, 1)
	assert.True(t, loaded.DividendSummaries[0].WHTObserved)
	assert.True(t, original.DividendSummaries[0].AnnualIncomeAfterWHT.Equal(loaded.DividendSummaries[0].AnnualIncomeAfterWHT))

	require.Len(t, loaded.UpcomingPayments, 1)
	require.NotNil(t, loaded.UpcomingPayments[0].PaymentDate)
	assert.True(t, original.UpcomingPayments[0].PaymentDate.Equal(*loaded.UpcomingPayments[0].PaymentDate))

	require.Len(t, loaded.PayoutRecords, 1)
	assert.Equal(t, original.PayoutRecords[0].IdentityKey(), loaded.PayoutRecords[0].IdentityKey())

	require.Len(t, loaded.TickerSummaries, 1)
	require.Len(t, loaded.MonthlySummaries, 1)
	assert.Equal(t, time.March, loaded.MonthlySummaries[0].Month)

	assert.True(t, original.Totals.Invested.Equal(loaded.Totals.Invested))
	assert.True(t, original.PayoutTotals.Net.Equal(loaded.PayoutTotals.Net))
}

func TestStoreSaveReplacesPrevious(t *testing.T) {
	store := newTestStore(t)

	first := fullSnapshot()
	require.NoError(t, store.Save(first))

	second := fullSnapshot()
	second.GeneratedAt = first.GeneratedAt.Add(time.Hour)
	second.Totals.FreeCash = decimal.RequireFromString("99.99")
	require.NoError(t, store.Save(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, second.GeneratedAt.Equal(loaded.GeneratedAt))
	assert.True(t, second.Totals.FreeCash.Equal(loaded.Totals.FreeCash))
}

func TestStoreLoadDiscardsCorruptBlob(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db, zerolog.Nop())
	require.NoError(t, store.Migrate())

	_, err = db.Exec("INSERT INTO snapshot (id, payload, generated_at) VALUES (1, ?, 0)", []byte("not msgpack"))
	require.NoError(t, err)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStoreRoundTripMinimalSnapshot(t *testing.T) {
	store := newTestStore(t)

	original := &domain.Snapshot{
		Mode:         domain.ModeDemo,
		BaseCurrency: "EUR",
		GeneratedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(original))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Positions)
	assert.True(t, loaded.Totals.Invested.IsZero())
	assert.Equal(t, domain.ModeDemo, loaded.Mode)
}
