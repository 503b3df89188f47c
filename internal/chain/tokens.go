package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Default stablecoin contracts on the target ledger.
var defaultTokens = map[string]string{
	"AlphaUSD": "0x20c0000000000000000000000000000000000001",
	"BetaUSD":  "0x20c0000000000000000000000000000000000002",
	"ThetaUSD": "0x20c0000000000000000000000000000000000003",
}

const defaultSymbol = "AlphaUSD"

// Registry maps token symbols to contract addresses. Settlement falls
// back to it when a webhook event carries only a symbol.
type Registry struct {
	bySymbol map[string]common.Address
}

// NewRegistry builds a registry from config overrides layered on the
// defaults.
func NewRegistry(overrides map[string]string) Registry {
	bySymbol := make(map[string]common.Address, len(defaultTokens))
	for sym, addr := range defaultTokens {
		bySymbol[sym] = common.HexToAddress(addr)
	}
	for sym, addr := range overrides {
		bySymbol[strings.TrimSpace(sym)] = common.HexToAddress(addr)
	}
	return Registry{bySymbol: bySymbol}
}

// AddressFor resolves a symbol, defaulting to AlphaUSD when unknown.
func (r Registry) AddressFor(symbol string) common.Address {
	if addr, ok := r.bySymbol[strings.TrimSpace(symbol)]; ok {
		return addr
	}
	return r.bySymbol[defaultSymbol]
}

// Addresses returns every registered contract address, lower-cased.
func (r Registry) Addresses() []string {
	out := make([]string, 0, len(r.bySymbol))
	for _, addr := range r.bySymbol {
		out = append(out, strings.ToLower(addr.Hex()))
	}
	return out
}

// FormatUnits renders a raw integer amount in display units, e.g.
// ("1000000", 6) -> "1.000000". Amounts never pass through floats.
func FormatUnits(raw string, decimals uint8) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return d.Shift(-int32(decimals)).StringFixed(int32(decimals))
}

// ParseUnits converts a display amount like "10.5" into raw integer
// units at the given precision.
func ParseUnits(amount string, decimals uint8) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d.Shift(int32(decimals)).Truncate(0), nil
}
