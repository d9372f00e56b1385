package utils

import "strings"

// symbolOverrides maps Trading212 instrument tickers whose quote symbol
// cannot be derived mechanically. Renamed listings and share classes mostly.
var symbolOverrides = map[string]string{
	"FB_US_EQ":    "META",
	"BRK_B_US_EQ": "BRK-B",
	"VACQ_US_EQ":  "RKLB",
	"BTl_EQ":      "BT-A.L",
}

// QuoteSymbol converts a Trading212 instrument ticker into the symbol used
// by the quote provider. Trading212 tickers carry an exchange suffix after
// the first underscore ("AAPL_US_EQ") and mark London listings with a
// trailing lowercase "l" on the base ("SHELl_EQ" is SHEL.L).
func QuoteSymbol(t212Ticker string) string {
	if override, ok := symbolOverrides[t212Ticker]; ok {
		return override
	}

	base := t212Ticker
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}

	trimmed := strings.TrimRightFunc(base, func(r rune) bool {
		return r >= 'a' && r <= 'z'
	})
	if trimmed == "" {
		return base
	}
	if base == trimmed+"l" {
		return trimmed + ".L"
	}
	return trimmed
}
