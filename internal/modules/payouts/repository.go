// Package payouts persists the dividend payout history in ledger.db.
// The table is an append-only ledger deduplicated on the payout identity
// (ISIN, payment date, ticker): re-ingesting records already known is a
// no-op, so a full-history fetch every cycle never produces duplicates.
package payouts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/divvy/internal/domain"
)

// Repository handles payout history database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new payout repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "payouts").Logger(),
	}
}

// Migrate creates the payout_history table if it does not exist.
// Money columns are stored as TEXT to preserve decimal precision.
func (r *Repository) Migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS payout_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			isin TEXT NOT NULL,
			ticker TEXT NOT NULL,
			name TEXT NOT NULL,
			paid_on TEXT NOT NULL,
			quantity TEXT NOT NULL,
			price_per_share TEXT NOT NULL,
			currency TEXT NOT NULL,
			gross_amount TEXT NOT NULL,
			withheld_tax TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(isin, paid_on, ticker)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create payout_history table: %w", err)
	}
	return nil
}

// UpsertBatch inserts payout records, silently skipping any whose identity
// key is already known. Returns the number of newly inserted records.
func (r *Repository) UpsertBatch(records []domain.PayoutRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin payout transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO payout_history
		(isin, ticker, name, paid_on, quantity, price_per_share, currency,
		 gross_amount, withheld_tax, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(isin, paid_on, ticker) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare payout insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	inserted := 0
	for _, rec := range records {
		res, err := stmt.Exec(
			rec.ISIN,
			rec.Ticker,
			rec.Name,
			rec.PaidOn.UTC().Format("2006-01-02"),
			rec.Quantity.String(),
			rec.PricePerShare.String(),
			rec.Currency,
			rec.GrossAmount.String(),
			rec.WithheldTax.String(),
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert payout %s: %w", rec.IdentityKey(), err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit payout batch: %w", err)
	}

	if inserted > 0 {
		r.log.Info().Int("inserted", inserted).Int("batch", len(records)).Msg("Payout records stored")
	}
	return inserted, nil
}

// All returns every stored payout record, newest first.
func (r *Repository) All() ([]domain.PayoutRecord, error) {
	rows, err := r.db.Query(`
		SELECT isin, ticker, name, paid_on, quantity, price_per_share,
		       currency, gross_amount, withheld_tax
		FROM payout_history
		ORDER BY paid_on DESC, ticker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payout history: %w", err)
	}
	defer rows.Close()

	var records []domain.PayoutRecord
	for rows.Next() {
		rec, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of stored payout records.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM payout_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payout history: %w", err)
	}
	return n, nil
}

func scanPayout(rows *sql.Rows) (domain.PayoutRecord, error) {
	var rec domain.PayoutRecord
	var paidOn, quantity, pricePerShare, gross, wht string

	if err := rows.Scan(
		&rec.ISIN, &rec.Ticker, &rec.Name, &paidOn,
		&quantity, &pricePerShare, &rec.Currency, &gross, &wht,
	); err != nil {
		return rec, fmt.Errorf("failed to scan payout record: %w", err)
	}

	t, err := time.ParseInLocation("2006-01-02", paidOn, time.UTC)
	if err != nil {
		return rec, fmt.Errorf("failed to parse payout date %q: %w", paidOn, err)
	}
	rec.PaidOn = t

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Quantity, quantity},
		{&rec.PricePerShare, pricePerShare},
		{&rec.GrossAmount, gross},
		{&rec.WithheldTax, wht},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return rec, fmt.Errorf("failed to parse stored decimal %q: %w", f.src, err)
		}
		*f.dst = d
	}

	return rec, nil
}
