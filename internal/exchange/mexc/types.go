package mexc

import (
	"github.com/shopspring/decimal"
)

type tickerResponse struct {
	Data []struct {
		Symbol string `json:"symbol"`
		Last   string `json:"last"`
	} `json:"data"`
}

type accountResponse struct {
	Data map[string]struct {
		Available string `json:"available"`
		Frozen    string `json:"frozen"`
	} `json:"data"`
}

type placeResponse struct {
	Data string `json:"data"`
}

type spotOrder struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	State         string `json:"state"`
	Quantity      string `json:"quantity"`
	DealQuantity  string `json:"deal_quantity"`
	DealAmount    string `json:"deal_amount"`
	ClientOrderID string `json:"client_order_id"`
}

type spotOrdersResponse struct {
	Data []spotOrder `json:"data"`
}

type positionsResponse struct {
	Data []struct {
		Symbol       string          `json:"symbol"`
		PositionType int             `json:"positionType"`
		HoldVol      decimal.Decimal `json:"holdVol"`
	} `json:"data"`
}

type assetsResponse struct {
	Data []struct {
		Currency         string          `json:"currency"`
		AvailableBalance decimal.Decimal `json:"availableBalance"`
	} `json:"data"`
}

type contractOrderResponse struct {
	Data *struct {
		OrderID     string          `json:"orderId"`
		ExternalOid string          `json:"externalOid"`
		State       int             `json:"state"`
		Vol         decimal.Decimal `json:"vol"`
		DealVol     decimal.Decimal `json:"dealVol"`
	} `json:"data"`
}

type depthResponse struct {
	Data struct {
		Asks      [][]decimal.Decimal `json:"asks"`
		Bids      [][]decimal.Decimal `json:"bids"`
		Timestamp int64               `json:"timestamp"`
	} `json:"data"`
}

type detailResponse struct {
	Data struct {
		Symbol       string          `json:"symbol"`
		ContractSize decimal.Decimal `json:"contractSize"`
		PriceScale   int32           `json:"priceScale"`
		PriceUnit    decimal.Decimal `json:"priceUnit"`
	} `json:"data"`
}

const (
	positionLong  = 1
	positionShort = 2
)

const (
	sideOpenLong  = 1
	sideOpenShort = 3
)

const (
	orderTypeIOC   = 3
	openTypeCross  = 2
	positionOneWay = 2
)
