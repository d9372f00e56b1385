package domain

import "errors"

// Source error taxonomy. Adapters wrap these with context via fmt.Errorf and
// %w; the refresh scheduler branches on them with errors.Is.
var (
	// ErrSourceUnavailable - network or transport failure talking to an
	// external source. Retried on the next scheduled cycle, never within one.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAuthenticationFailed - rejected or expired credentials. Aborts the
	// cycle; surfaced through the status endpoint as user-actionable.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMalformedResponse - the source returned data failing schema
	// validation. Fatal for that fetch, aborts the cycle.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrForecastUnavailable - the forecast lookup produced nothing usable.
	// Non-fatal: downgraded to "no projection".
	ErrForecastUnavailable = errors.New("forecast unavailable")
)
