package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PairEvent es un tick de precio / descubrimiento emitido por el feed.
type PairEvent struct {
	PairKey     string         `json:"pair"`
	Venue       Venue          `json:"venue"`
	BaseSymbol  string         `json:"base_symbol"`
	QuoteSymbol string         `json:"quote_symbol"`
	BaseToken   common.Address `json:"base_token"`
	QuoteToken  common.Address `json:"quote_token"`
	Price       float64        `json:"price"`
	Liquidity   *float64       `json:"liquidity_usd,omitempty"` // nil = desconocida
	BuyCount    int            `json:"buys"`
	SellCount   int            `json:"sells"`
	ReceivedAt  time.Time      `json:"-"`
}

// HasPrice indica si el evento trae un precio utilizable.
func (e PairEvent) HasPrice() bool {
	return e.Price > 0
}

// TradedToken devuelve el token que se compra en este par: el lado que no es WBNB.
// En FourMeme siempre es el base token. ok=false si un par V2/V3 no incluye WBNB.
func (e PairEvent) TradedToken(wbnb common.Address) (common.Address, bool) {
	if e.Venue == VenueFourMeme {
		return e.BaseToken, e.BaseToken != (common.Address{})
	}
	switch wbnb {
	case e.QuoteToken:
		return e.BaseToken, true
	case e.BaseToken:
		return e.QuoteToken, true
	}
	return common.Address{}, false
}
