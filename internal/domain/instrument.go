package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Leverage caps per instrument
const (
	MaxLeverageBTC     = 500
	MaxLeverageDefault = 250
)

// Instrument describes a tradable symbol
type Instrument struct {
	Symbol      string          `json:"symbol"`
	CoinGeckoID string          `json:"coingecko_id"`
	SeedPrice   decimal.Decimal `json:"seed_price"`
}

// MaxLeverage returns the highest leverage allowed on the instrument
func (i Instrument) MaxLeverage() int {
	if i.Symbol == "BTC" {
		return MaxLeverageBTC
	}
	return MaxLeverageDefault
}

// ReferenceInstruments is the instrument set of the reference deployment
var ReferenceInstruments = []Instrument{
	{Symbol: "BTC", CoinGeckoID: "bitcoin", SeedPrice: decimal.RequireFromString("62000")},
	{Symbol: "ETH", CoinGeckoID: "ethereum", SeedPrice: decimal.RequireFromString("3000")},
	{Symbol: "ETC", CoinGeckoID: "ethereum-classic", SeedPrice: decimal.RequireFromString("25")},
	{Symbol: "LTC", CoinGeckoID: "litecoin", SeedPrice: decimal.RequireFromString("85")},
	{Symbol: "BNB", CoinGeckoID: "binancecoin", SeedPrice: decimal.RequireFromString("550")},
	{Symbol: "TRX", CoinGeckoID: "tron", SeedPrice: decimal.RequireFromString("0.12")},
	{Symbol: "PEPE", CoinGeckoID: "pepe", SeedPrice: decimal.RequireFromString("0.00001")},
	{Symbol: "AAVE", CoinGeckoID: "aave", SeedPrice: decimal.RequireFromString("90")},
	{Symbol: "DOGE", CoinGeckoID: "dogecoin", SeedPrice: decimal.RequireFromString("0.12")},
	{Symbol: "SOL", CoinGeckoID: "solana", SeedPrice: decimal.RequireFromString("145")},
	{Symbol: "ADA", CoinGeckoID: "cardano", SeedPrice: decimal.RequireFromString("0.45")},
	{Symbol: "AVAX", CoinGeckoID: "avalanche-2", SeedPrice: decimal.RequireFromString("35")},
	{Symbol: "SHIB", CoinGeckoID: "shiba-inu", SeedPrice: decimal.RequireFromString("0.00002")},
	{Symbol: "TON", CoinGeckoID: "the-open-network", SeedPrice: decimal.RequireFromString("5.5")},
	{Symbol: "POL", CoinGeckoID: "polygon-ecosystem-token", SeedPrice: decimal.RequireFromString("9")},
	{Symbol: "FIL", CoinGeckoID: "filecoin", SeedPrice: decimal.RequireFromString("6")},
	{Symbol: "ATOM", CoinGeckoID: "cosmos", SeedPrice: decimal.RequireFromString("11")},
}

// InstrumentSet is the fixed set of supported instruments, keyed by symbol
type InstrumentSet struct {
	bySymbol map[string]Instrument
}

// NewInstrumentSet builds a set from the given instruments
func NewInstrumentSet(instruments []Instrument) InstrumentSet {
	set := InstrumentSet{bySymbol: make(map[string]Instrument, len(instruments))}
	for _, inst := range instruments {
		inst.Symbol = NormalizeSymbol(inst.Symbol)
		set.bySymbol[inst.Symbol] = inst
	}
	return set
}

// ReferenceInstrumentSet returns the instruments whose symbols are listed.
// An empty list selects every reference instrument; unknown symbols are ignored.
func ReferenceInstrumentSet(symbols []string) InstrumentSet {
	if len(symbols) == 0 {
		return NewInstrumentSet(ReferenceInstruments)
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[NormalizeSymbol(s)] = true
	}
	var selected []Instrument
	for _, inst := range ReferenceInstruments {
		if wanted[inst.Symbol] {
			selected = append(selected, inst)
		}
	}
	return NewInstrumentSet(selected)
}

// NormalizeSymbol accepts "btc", "BTC" and "BTC/USDT" alike
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(symbol, "/USDT")
}

// Lookup returns the instrument for a symbol
func (s InstrumentSet) Lookup(symbol string) (Instrument, bool) {
	inst, ok := s.bySymbol[NormalizeSymbol(symbol)]
	return inst, ok
}

// Supports reports whether the symbol is tradable
func (s InstrumentSet) Supports(symbol string) bool {
	_, ok := s.Lookup(symbol)
	return ok
}

// Symbols returns the supported symbols in sorted order
func (s InstrumentSet) Symbols() []string {
	symbols := make([]string, 0, len(s.bySymbol))
	for symbol := range s.bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ClampLeverage reduces leverage to the instrument cap.
// Leverage over the cap is corrected, not rejected.
func (s InstrumentSet) ClampLeverage(symbol string, leverage int) int {
	inst, ok := s.Lookup(symbol)
	if !ok {
		return leverage
	}
	if limit := inst.MaxLeverage(); leverage > limit {
		return limit
	}
	return leverage
}

// Instruments returns the supported instruments ordered by symbol
func (s InstrumentSet) Instruments() []Instrument {
	symbols := s.Symbols()
	instruments := make([]Instrument, 0, len(symbols))
	for _, symbol := range symbols {
		instruments = append(instruments, s.bySymbol[symbol])
	}
	return instruments
}
