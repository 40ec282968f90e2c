package kraken

import (
	"fmt"
	"strings"
)

// DefaultAliases maps canonical asset tickers to Kraken's internal codes.
var DefaultAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// quote suffixes tried when splitting a concatenated pair code; longer first.
var knownQuotes = []string{"USDT", "USDC", "USD", "EUR", "GBP", "CAD", "JPY", "CHF", "AUD", "XBT", "ETH"}

// Symbols translates canonical BASE/QUOTE pairs to venue pair codes and back.
type Symbols struct {
	toVenue     map[string]string
	toCanonical map[string]string
}

// NewSymbols builds a translation table; nil aliases selects DefaultAliases.
func NewSymbols(aliases map[string]string) *Symbols {
	if aliases == nil {
		aliases = DefaultAliases
	}
	s := &Symbols{
		toVenue:     make(map[string]string, len(aliases)),
		toCanonical: make(map[string]string, len(aliases)),
	}
	for canon, venue := range aliases {
		c, v := strings.ToUpper(canon), strings.ToUpper(venue)
		s.toVenue[c] = v
		s.toCanonical[v] = c
	}
	return s
}

// PairCode converts "BTC/USD" into "XBTUSD".
func (s *Symbols) PairCode(symbol string) (string, error) {
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if !ok || base == "" || quote == "" {
		return "", fmt.Errorf("kraken: symbol %q is not BASE/QUOTE", symbol)
	}
	return s.venueAsset(base) + s.venueAsset(quote), nil
}

// Pair converts a venue pair code ("XBTUSD" or "XXBTZUSD") into "BTC/USD".
func (s *Symbols) Pair(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) == 8 && isLegacyPrefix(code[0]) && isLegacyPrefix(code[4]) {
		return s.Asset(code[:4]) + "/" + s.Asset(code[4:]), nil
	}
	for _, q := range knownQuotes {
		if len(code) > len(q) && strings.HasSuffix(code, q) {
			return s.Asset(code[:len(code)-len(q)]) + "/" + s.Asset(q), nil
		}
	}
	return "", fmt.Errorf("kraken: cannot split pair code %q", code)
}

// Asset converts a venue currency key (XXBT, ZUSD, XBT.F) into its canonical ticker.
func (s *Symbols) Asset(code string) string {
	code = strings.ToUpper(code)
	suffix := ""
	if i := strings.IndexByte(code, '.'); i > 0 {
		code, suffix = code[:i], code[i:]
	}
	if len(code) == 4 && isLegacyPrefix(code[0]) {
		code = code[1:]
	}
	if c, ok := s.toCanonical[code]; ok {
		code = c
	}
	return code + suffix
}

func (s *Symbols) venueAsset(asset string) string {
	if v, ok := s.toVenue[asset]; ok {
		return v
	}
	return asset
}

func isLegacyPrefix(b byte) bool {
	return b == 'X' || b == 'Z'
}
