package types

import (
	"time"
)

type AssetType string

const (
	AssetTypeStock AssetType = "STOCK"
	AssetTypeEtf   AssetType = "ETF"
	AssetTypeIndex AssetType = "INDEX"
)

type Exchange string

const (
	ExchangeSSE     Exchange = "SSE"
	ExchangeSZSE    Exchange = "SZSE"
	ExchangeBSE     Exchange = "BSE"
	ExchangeUnknown Exchange = ""
)

type Asset struct {
	Id         int       `json:"id"`
	Ticker     string    `json:"ticker"`
	Name       string    `json:"name"`
	Type       AssetType `json:"type"`
	Exchange   Exchange  `json:"exchange"`
	LotSize    int64     `json:"lotSize"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Tradable reports whether orders can be placed on the asset. Indices are
// data only.
func (a Asset) Tradable() bool {
	return a.Type != AssetTypeIndex
}

// ExchangeOf infers the listing venue from a six digit A-share code.
func ExchangeOf(ticker string) Exchange {
	if len(ticker) != 6 {
		return ExchangeUnknown
	}
	switch ticker[0] {
	case '5', '6', '9':
		return ExchangeSSE
	case '0', '1', '2', '3':
		return ExchangeSZSE
	case '4', '8':
		return ExchangeBSE
	}
	return ExchangeUnknown
}
