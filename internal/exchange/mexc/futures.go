package mexc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
)

const settleCurrency = "USDT"

type FuturesClient struct {
	rest       *rest.Transport
	retry      rest.Policy
	leverage   int
	maxSkew    time.Duration
	reconciler exchange.Reconciler
	log        *logrus.Entry
}

var _ exchange.FuturesTrader = (*FuturesClient)(nil)

func NewFuturesClient(opts Options) (*FuturesClient, error) {
	if opts.Leverage <= 0 {
		return nil, fmt.Errorf("mexc futures: leverage must be positive, got %d", opts.Leverage)
	}
	t, err := newTransport(opts, contractOKCode, DefaultFuturesBaseURL)
	if err != nil {
		return nil, err
	}
	return &FuturesClient{
		rest:       t,
		retry:      opts.Retry,
		leverage:   opts.Leverage,
		maxSkew:    opts.MaxSkew,
		reconciler: newReconciler(opts, "mexc/futures"),
		log:        logging.Component(opts.Logger, "mexc_futures"),
	}, nil
}

func (c *FuturesClient) Name() string { return "mexc" }

// Order submits one IOC order and then always reads the executed volume back by externalOid.
func (c *FuturesClient) Order(ctx context.Context, order core.FuturesOrder) core.Fill {
	if order.ClientID == "" {
		order.ClientID = NewExternalOID()
	}
	price, err := order.LimitPrice()
	if err != nil {
		return core.Refused(order.Handle(), err)
	}
	if order.Size.IsZero() {
		return core.Refused(order.Handle(), fmt.Errorf("zero vol: %w", core.ErrInvalidOrder))
	}
	side := sideOpenLong
	if order.Side() == core.Sell {
		side = sideOpenShort
	}
	vol := order.Size.Abs()
	body := map[string]any{
		"symbol":       order.Symbol,
		"price":        price,
		"vol":          vol.InexactFloat64(),
		"leverage":     c.leverage,
		"side":         side,
		"type":         orderTypeIOC,
		"openType":     openTypeCross,
		"externalOid":  order.ClientID,
		"positionMode": positionOneWay,
	}
	params := map[string]string{
		"symbol":      order.Symbol,
		"price":       price,
		"vol":         vol.String(),
		"leverage":    strconv.Itoa(c.leverage),
		"side":        strconv.Itoa(side),
		"externalOid": order.ClientID,
	}
	out := c.rest.Do(ctx, rest.Request{Method: http.MethodPost, Path: "/api/v1/private/order/submit", Body: body})
	return c.reconciler.Resolve(ctx, exchange.Placement{Order: order.Handle(), Params: params, Outcome: out}, nil,
		func(ctx context.Context) (decimal.Decimal, error) {
			return c.dealVol(ctx, order.Symbol, order.ClientID)
		})
}

func (c *FuturesClient) dealVol(ctx context.Context, symbol, externalOid string) (decimal.Decimal, error) {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/private/order/external/" + url.PathEscape(symbol) + "/" + url.PathEscape(externalOid),
		Query:  url.Values{"symbol": {symbol}, "external_oid": {externalOid}},
	})
	if err := out.Err(); err != nil {
		return decimal.Zero, err
	}
	var resp contractOrderResponse
	if err := out.Decode(&resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Data == nil {
		return decimal.Zero, fmt.Errorf("order %s: %w", externalOid, core.ErrNotFound)
	}
	return resp.Data.DealVol, nil
}

// Cancel cancels all open orders on symbol. It is safe to repeat.
func (c *FuturesClient) Cancel(ctx context.Context, symbol string) error {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/private/order/cancel_all",
		Body:   map[string]string{"symbol": symbol},
	})
	return out.Err()
}

// Position returns the signed held volume on symbol: long positive, short negative.
func (c *FuturesClient) Position(ctx context.Context, symbol string) (decimal.Decimal, error) {
	positions, err := c.OpenPositions(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Size)
	}
	return total, nil
}

// OpenPositions lists open positions, for every symbol when symbol is empty.
func (c *FuturesClient) OpenPositions(ctx context.Context, symbol string) ([]core.Position, error) {
	return rest.Retry(ctx, c.retry, c.log, "mexc_position", func(ctx context.Context) ([]core.Position, error) {
		q := url.Values{}
		if symbol != "" {
			q.Set("symbol", symbol)
		}
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/api/v1/private/position/open_positions", Query: q})
		if err := out.Err(); err != nil {
			return nil, err
		}
		var resp positionsResponse
		if err := out.Decode(&resp); err != nil {
			return nil, err
		}
		positions := make([]core.Position, 0, len(resp.Data))
		for _, p := range resp.Data {
			size := p.HoldVol.Abs()
			switch p.PositionType {
			case positionLong:
			case positionShort:
				size = size.Neg()
			default:
				continue
			}
			positions = append(positions, core.Position{Symbol: p.Symbol, Size: size})
		}
		return positions, nil
	})
}

func (c *FuturesClient) HasOpenPositions(ctx context.Context) (bool, error) {
	positions, err := c.OpenPositions(ctx, "")
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if !p.Size.IsZero() {
			return true, nil
		}
	}
	return false, nil
}

// Balance returns the available USDT margin balance.
func (c *FuturesClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "mexc_futures_balance", func(ctx context.Context) (decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/api/v1/private/account/assets"})
		if err := out.Err(); err != nil {
			return decimal.Zero, err
		}
		var resp assetsResponse
		if err := out.Decode(&resp); err != nil {
			return decimal.Zero, err
		}
		for _, a := range resp.Data {
			if a.Currency == settleCurrency {
				return a.AvailableBalance, nil
			}
		}
		return decimal.Zero, nil
	})
}

// ChangePositionMode switches the account position mode (1 hedge, 2 one-way).
func (c *FuturesClient) ChangePositionMode(ctx context.Context, mode int) error {
	_, err := rest.Retry(ctx, c.retry, c.log, "mexc_change_position_mode", func(ctx context.Context) (struct{}, error) {
		out := c.rest.Do(ctx, rest.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/private/position/change_position_mode",
			Body:   map[string]int{"positionMode": mode},
		})
		return struct{}{}, out.Err()
	})
	return err
}

// ChangeLeverage sets the configured cross leverage on symbol.
func (c *FuturesClient) ChangeLeverage(ctx context.Context, symbol string) error {
	_, err := rest.Retry(ctx, c.retry, c.log, "mexc_change_leverage", func(ctx context.Context) (struct{}, error) {
		out := c.rest.Do(ctx, rest.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/private/position/change_leverage",
			Body: map[string]any{
				"leverage":     c.leverage,
				"openType":     openTypeCross,
				"symbol":       symbol,
				"positionType": positionShort,
			},
		})
		return struct{}{}, out.Err()
	})
	return err
}

// Depth fetches one order book snapshot and rejects it when stale or one-sided.
func (c *FuturesClient) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/contract/depth/" + url.PathEscape(symbol),
		Query:  url.Values{"limit": {strconv.Itoa(limit)}},
	})
	received := c.rest.Now()
	if err := out.Err(); err != nil {
		return core.Depth{}, err
	}
	var resp depthResponse
	if err := out.Decode(&resp); err != nil {
		return core.Depth{}, err
	}
	d := core.Depth{
		Symbol:     symbol,
		Bids:       levels(resp.Data.Bids),
		Asks:       levels(resp.Data.Asks),
		Time:       time.UnixMilli(resp.Data.Timestamp),
		ReceivedAt: received,
		Raw:        out.Body,
	}
	if err := core.CheckFresh(d, c.maxSkew); err != nil {
		c.log.WithFields(logrus.Fields{"event": "depth_rejected", "symbol": symbol}).Debug(err.Error())
		return core.Depth{}, err
	}
	return d, nil
}

// levels converts [price, volume, order count] rows.
func levels(rows [][]decimal.Decimal) []core.Level {
	out := make([]core.Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, core.Level{Price: row[0], Size: row[1]})
	}
	return out
}

// Contract returns size multiplier and price precision for symbol.
func (c *FuturesClient) Contract(ctx context.Context, symbol string) (core.Contract, error) {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/contract/detail",
		Query:  url.Values{"symbol": {symbol}},
	})
	if err := out.Err(); err != nil {
		return core.Contract{}, err
	}
	var resp detailResponse
	if err := out.Decode(&resp); err != nil {
		return core.Contract{}, err
	}
	return core.Contract{
		Symbol:         symbol,
		Multiplier:     resp.Data.ContractSize,
		PriceTick:      resp.Data.PriceUnit,
		PricePrecision: resp.Data.PriceScale,
	}, nil
}
