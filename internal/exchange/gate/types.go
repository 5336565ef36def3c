package gate

import (
	"github.com/shopspring/decimal"
)

type spotOrder struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	CurrencyPair string `json:"currency_pair"`
	Status       string `json:"status"`
	Side         string `json:"side"`
	Amount       string `json:"amount"`
	Left         string `json:"left"`
	FilledTotal  string `json:"filled_total"`
}

type spotTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
}

type spotAccount struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

type futuresPosition struct {
	Contract string `json:"contract"`
	Size     int64  `json:"size"`
}

type futuresAccount struct {
	Available string `json:"available"`
	Currency  string `json:"currency"`
}

type futuresOrder struct {
	ID       int64  `json:"id"`
	Contract string `json:"contract"`
	Text     string `json:"text"`
	Size     int64  `json:"size"`
	Left     int64  `json:"left"`
	Status   string `json:"status"`
}

type bookLevel struct {
	P string `json:"p"`
	S int64  `json:"s"`
}

type orderBook struct {
	Current decimal.Decimal `json:"current"`
	Asks    []bookLevel     `json:"asks"`
	Bids    []bookLevel     `json:"bids"`
}

type contractInfo struct {
	Name             string `json:"name"`
	QuantoMultiplier string `json:"quanto_multiplier"`
	OrderPriceRound  string `json:"order_price_round"`
}
