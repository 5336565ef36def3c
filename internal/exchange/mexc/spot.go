package mexc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
)

// filledStates are the terminal order states that count toward executed quote volume.
var filledStates = []string{"FILLED", "PARTIALLY_CANCELED"}

type SpotClient struct {
	rest       *rest.Transport
	retry      rest.Policy
	tif        map[core.Side]core.TimeInForce
	reconciler exchange.Reconciler
	log        *logrus.Entry
}

var _ exchange.SpotTrader = (*SpotClient)(nil)

func NewSpotClient(opts Options) (*SpotClient, error) {
	t, err := newTransport(opts, spotOKCode, DefaultSpotBaseURL)
	if err != nil {
		return nil, err
	}
	buy, sell := opts.BuyTIF, opts.SellTIF
	if buy == "" {
		buy = core.IOC
	}
	if sell == "" {
		sell = core.Limit
	}
	return &SpotClient{
		rest:       t,
		retry:      opts.Retry,
		tif:        map[core.Side]core.TimeInForce{core.Buy: buy, core.Sell: sell},
		reconciler: newReconciler(opts, "mexc/spot"),
		log:        logging.Component(opts.Logger, "mexc_spot"),
	}, nil
}

func (c *SpotClient) Name() string { return "mexc" }

func tradeType(side core.Side) string {
	if side == core.Sell {
		return "ASK"
	}
	return "BID"
}

func orderType(tif core.TimeInForce) string {
	if tif == core.IOC {
		return "IMMEDIATE_OR_CANCEL"
	}
	return "LIMIT_ORDER"
}

// Place submits one spot order. A rejected order is final; an order whose
// submission outcome is unknown cannot be looked up on this API and is reported.
func (c *SpotClient) Place(ctx context.Context, order core.OrderHandle) core.Fill {
	params := map[string]string{
		"symbol":     order.Symbol,
		"price":      core.FormatFixed(order.Price, core.SpotPlaces),
		"quantity":   core.FormatFixed(order.Quantity, core.SpotPlaces),
		"trade_type": tradeType(order.Side),
		"order_type": orderType(c.tif[order.Side]),
	}
	if order.ClientID != "" {
		params["client_order_id"] = order.ClientID
	}
	out := c.rest.Do(ctx, rest.Request{Method: http.MethodPost, Path: "/open/api/v2/order/place", Body: params})

	var lookup exchange.Lookup
	var placed placeResponse
	if out.OK() && out.Decode(&placed) == nil && placed.Data != "" {
		lookup = func(ctx context.Context) (decimal.Decimal, error) {
			return c.dealQuantity(ctx, placed.Data)
		}
	}
	return c.reconciler.Resolve(ctx, exchange.Placement{Order: order, Params: params, Outcome: out}, nil, lookup)
}

func (c *SpotClient) dealQuantity(ctx context.Context, orderID string) (decimal.Decimal, error) {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/open/api/v2/order/query",
		Query:  url.Values{"order_ids": {orderID}},
	})
	if err := out.Err(); err != nil {
		return decimal.Zero, err
	}
	var resp spotOrdersResponse
	if err := out.Decode(&resp); err != nil {
		return decimal.Zero, err
	}
	for _, o := range resp.Data {
		if o.ID == orderID || len(resp.Data) == 1 {
			return core.ParseDecimal(o.DealQuantity)
		}
	}
	return decimal.Zero, fmt.Errorf("order %s: %w", orderID, core.ErrNotFound)
}

func (c *SpotClient) Buy(ctx context.Context, symbol string, price, quantity decimal.Decimal) core.Fill {
	return c.Place(ctx, core.OrderHandle{Symbol: symbol, Side: core.Buy, Price: price, Quantity: quantity})
}

func (c *SpotClient) Sell(ctx context.Context, symbol string, price, quantity decimal.Decimal) core.Fill {
	return c.Place(ctx, core.OrderHandle{Symbol: symbol, Side: core.Sell, Price: price, Quantity: quantity})
}

// Cancel cancels every open order on symbol. It is safe to repeat.
func (c *SpotClient) Cancel(ctx context.Context, symbol string) error {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   "/open/api/v2/order/cancel_by_symbol",
		Query:  url.Values{"symbol": {symbol}},
	})
	return out.Err()
}

// Tickers returns the last traded price of every symbol, retrying until it succeeds.
func (c *SpotClient) Tickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "mexc_tickers", func(ctx context.Context) (map[string]decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/open/api/v2/market/ticker"})
		if err := out.Err(); err != nil {
			return nil, err
		}
		var resp tickerResponse
		if err := out.Decode(&resp); err != nil {
			return nil, err
		}
		prices := make(map[string]decimal.Decimal, len(resp.Data))
		for _, t := range resp.Data {
			last, err := decimal.NewFromString(t.Last)
			if err != nil {
				continue
			}
			prices[t.Symbol] = last
		}
		return prices, nil
	})
}

func (c *SpotClient) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	prices, err := c.Tickers(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	p, ok := prices[symbol]
	return p, ok, nil
}

// Balance returns the available (optionally plus frozen) amount of currency.
// A currency the account does not hold is zero.
func (c *SpotClient) Balance(ctx context.Context, currency string, includeLocked bool) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "mexc_balance", func(ctx context.Context) (decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/open/api/v2/account/info"})
		if err := out.Err(); err != nil {
			return decimal.Zero, err
		}
		var resp accountResponse
		if err := out.Decode(&resp); err != nil {
			return decimal.Zero, err
		}
		coin, ok := resp.Data[strings.ToUpper(currency)]
		if !ok {
			return decimal.Zero, nil
		}
		bal, err := balanceOf(currency, coin.Available, coin.Frozen)
		if err != nil {
			return decimal.Zero, err
		}
		if includeLocked {
			return bal.Total(), nil
		}
		return bal.Available, nil
	})
}

func balanceOf(currency, available, locked string) (core.Balance, error) {
	a, err := core.ParseDecimal(available)
	if err != nil {
		return core.Balance{}, fmt.Errorf("%s available: %w", currency, err)
	}
	l, err := core.ParseDecimal(locked)
	if err != nil {
		return core.Balance{}, fmt.Errorf("%s frozen: %w", currency, err)
	}
	return core.Balance{Currency: currency, Available: a, Locked: l}, nil
}

// FilledQuote sums the quote amount executed on symbol for side within the trailing window.
// The whole query is repeated if any page fails, so partial sums are never returned.
func (c *SpotClient) FilledQuote(ctx context.Context, symbol string, side core.Side, window time.Duration) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "mexc_filled_quote", func(ctx context.Context) (decimal.Decimal, error) {
		since := c.rest.Now().Add(-window).Unix()
		total := decimal.Zero
		for _, state := range filledStates {
			out := c.rest.Do(ctx, rest.Request{
				Method: http.MethodGet,
				Path:   "/open/api/v2/order/list",
				Query: url.Values{
					"symbol":     {symbol},
					"start_time": {strconv.FormatInt(since, 10)},
					"trade_type": {tradeType(side)},
					"states":     {state},
				},
			})
			if err := out.Err(); err != nil {
				return decimal.Zero, err
			}
			var resp spotOrdersResponse
			if err := out.Decode(&resp); err != nil {
				return decimal.Zero, err
			}
			for _, o := range resp.Data {
				if o.State != "" && o.State != state {
					continue
				}
				amount, err := core.ParseDecimal(o.DealAmount)
				if err != nil {
					return decimal.Zero, errors.Join(fmt.Errorf("order %s deal_amount", o.ID), err)
				}
				total = total.Add(amount)
			}
		}
		return total, nil
	})
}
