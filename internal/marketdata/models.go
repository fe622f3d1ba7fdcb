package marketdata

import "github.com/shopspring/decimal"

// Token identifies one side of a pair
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Liquidity of a pair in USD
type Liquidity struct {
	USD decimal.NullDecimal `json:"usd"`
}

// Pair is one trading pair returned by /latest/dex/tokens
type Pair struct {
	ChainID       string              `json:"chainId"`
	DexID         string              `json:"dexId"`
	URL           string              `json:"url"`
	PairAddress   string              `json:"pairAddress"`
	BaseToken     Token               `json:"baseToken"`
	QuoteToken    Token               `json:"quoteToken"`
	PriceUSD      decimal.NullDecimal `json:"priceUsd"`
	Liquidity     *Liquidity          `json:"liquidity"`
	FDV           decimal.NullDecimal `json:"fdv"`
	MarketCap     decimal.NullDecimal `json:"marketCap"`
	PairCreatedAt int64               `json:"pairCreatedAt"`
}

// Valuation is the pair's fully diluted valuation, falling back to market cap
func (p *Pair) Valuation() (decimal.Decimal, bool) {
	if p.FDV.Valid && p.FDV.Decimal.IsPositive() {
		return p.FDV.Decimal, true
	}
	if p.MarketCap.Valid && p.MarketCap.Decimal.IsPositive() {
		return p.MarketCap.Decimal, true
	}
	return decimal.Decimal{}, false
}

// TokensResponse is the body of GET /latest/dex/tokens/{address}
type TokensResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}
