package gate

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

const futuresPrefix = "/api/v4/futures/usdt"

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
		return nil, fmt.Errorf("gate futures: leverage must be positive, got %d", opts.Leverage)
	}
	t, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	return &FuturesClient{
		rest:       t,
		retry:      opts.Retry,
		leverage:   opts.Leverage,
		maxSkew:    opts.MaxSkew,
		reconciler: newReconciler(opts, "gate/futures"),
		log:        logging.Component(opts.Logger, "gate_futures"),
	}, nil
}

func (c *FuturesClient) Name() string { return "gate" }

// Order submits one IOC order. Size is signed; Gate sizes are whole contracts.
func (c *FuturesClient) Order(ctx context.Context, order core.FuturesOrder) core.Fill {
	order.ClientID = normalizeText(order.ClientID)
	if order.Size.IsZero() || !order.Size.Equal(order.Size.Truncate(0)) {
		return core.Refused(order.Handle(), fmt.Errorf("size %s is not a whole number of contracts: %w", order.Size, core.ErrInvalidOrder))
	}
	size := order.Size.IntPart()
	price, err := order.LimitPrice()
	if err != nil {
		return core.Refused(order.Handle(), err)
	}
	body := map[string]any{
		"contract": order.Symbol,
		"size":     size,
		"price":    price,
		"tif":      "ioc",
		"text":     order.ClientID,
	}
	params := map[string]string{
		"contract": order.Symbol,
		"size":     strconv.FormatInt(size, 10),
		"price":    price,
		"text":     order.ClientID,
	}
	out := c.rest.Do(ctx, rest.Request{Method: http.MethodPost, Path: futuresPrefix + "/orders", Body: body})
	return c.reconciler.Resolve(ctx, exchange.Placement{Order: order.Handle(), Params: params, Outcome: out},
		func(out rest.Outcome) (decimal.Decimal, bool) {
			var o futuresOrder
			if out.Decode(&o) != nil {
				return decimal.Zero, false
			}
			return futuresExecuted(o), true
		},
		func(ctx context.Context) (decimal.Decimal, error) {
			o, err := c.order(ctx, order.ClientID)
			if err != nil {
				return decimal.Zero, err
			}
			return futuresExecuted(o), nil
		})
}

func futuresExecuted(o futuresOrder) decimal.Decimal {
	return core.Executed(decimal.NewFromInt(o.Size), decimal.NewFromInt(o.Left))
}

func (c *FuturesClient) order(ctx context.Context, text string) (futuresOrder, error) {
	out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: futuresPrefix + "/orders/" + url.PathEscape(text)})
	if err := out.Err(); err != nil {
		return futuresOrder{}, err
	}
	var o futuresOrder
	if err := out.Decode(&o); err != nil {
		return futuresOrder{}, err
	}
	return o, nil
}

// Cancel cancels all open orders on the contract. It is safe to repeat.
func (c *FuturesClient) Cancel(ctx context.Context, symbol string) error {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   futuresPrefix + "/orders",
		Query:  url.Values{"contract": {symbol}},
	})
	return out.Err()
}

// Position returns the signed position size. HTTP 400 means no position and reads as zero.
func (c *FuturesClient) Position(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "gate_position", func(ctx context.Context) (decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: futuresPrefix + "/positions/" + url.PathEscape(symbol)})
		if out.Kind == rest.ApplicationError && out.Status == http.StatusBadRequest {
			return decimal.Zero, nil
		}
		if err := out.Err(); err != nil {
			return decimal.Zero, err
		}
		var p futuresPosition
		if err := out.Decode(&p); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(p.Size), nil
	})
}

func (c *FuturesClient) Positions(ctx context.Context) ([]core.Position, error) {
	return rest.Retry(ctx, c.retry, c.log, "gate_positions", func(ctx context.Context) ([]core.Position, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: futuresPrefix + "/positions"})
		if err := out.Err(); err != nil {
			return nil, err
		}
		var list []futuresPosition
		if err := out.Decode(&list); err != nil {
			return nil, err
		}
		positions := make([]core.Position, 0, len(list))
		for _, p := range list {
			positions = append(positions, core.Position{Symbol: p.Contract, Size: decimal.NewFromInt(p.Size)})
		}
		return positions, nil
	})
}

func (c *FuturesClient) HasOpenPositions(ctx context.Context) (bool, error) {
	positions, err := c.Positions(ctx)
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

// Balance returns the available USDT margin.
func (c *FuturesClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "gate_futures_balance", func(ctx context.Context) (decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: futuresPrefix + "/accounts"})
		if err := out.Err(); err != nil {
			return decimal.Zero, err
		}
		var acc futuresAccount
		if err := out.Decode(&acc); err != nil {
			return decimal.Zero, err
		}
		return core.ParseDecimal(acc.Available)
	})
}

// ChangeLeverage switches the contract to cross margin with the configured leverage limit.
// Gate takes these parameters in the query string even though the call is a POST.
func (c *FuturesClient) ChangeLeverage(ctx context.Context, symbol string) error {
	_, err := rest.Retry(ctx, c.retry, c.log, "gate_change_leverage", func(ctx context.Context) (struct{}, error) {
		out := c.rest.Do(ctx, rest.Request{
			Method:    http.MethodPost,
			Path:      futuresPrefix + "/positions/" + url.PathEscape(symbol) + "/leverage",
			Query:     url.Values{"leverage": {"0"}, "cross_leverage_limit": {strconv.Itoa(c.leverage)}},
			QueryOnly: true,
		})
		return struct{}{}, out.Err()
	})
	return err
}

// Depth fetches one order book snapshot and rejects it when stale or one-sided.
func (c *FuturesClient) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   futuresPrefix + "/order_book",
		Query:  url.Values{"contract": {symbol}, "limit": {strconv.Itoa(limit)}},
	})
	received := c.rest.Now()
	if err := out.Err(); err != nil {
		return core.Depth{}, err
	}
	var book orderBook
	if err := out.Decode(&book); err != nil {
		return core.Depth{}, err
	}
	bids, err := bookLevels(book.Bids)
	if err != nil {
		return core.Depth{}, err
	}
	asks, err := bookLevels(book.Asks)
	if err != nil {
		return core.Depth{}, err
	}
	d := core.Depth{
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		Time:       secondsToTime(book.Current),
		ReceivedAt: received,
		Raw:        out.Body,
	}
	if err := core.CheckFresh(d, c.maxSkew); err != nil {
		c.log.WithFields(logrus.Fields{"event": "depth_rejected", "symbol": symbol}).Debug(err.Error())
		return core.Depth{}, err
	}
	return d, nil
}

func bookLevels(in []bookLevel) ([]core.Level, error) {
	out := make([]core.Level, 0, len(in))
	for _, l := range in {
		p, err := decimal.NewFromString(l.P)
		if err != nil {
			return nil, &rest.TransportError{Exchange: "gate", Err: fmt.Errorf("book price %q: %w", l.P, err)}
		}
		out = append(out, core.Level{Price: p, Size: decimal.NewFromInt(l.S)})
	}
	return out, nil
}

// secondsToTime converts fractional epoch seconds at millisecond resolution.
func secondsToTime(sec decimal.Decimal) time.Time {
	return time.UnixMilli(sec.Shift(3).Round(0).IntPart())
}

// Contract returns the quanto multiplier and price precision of a contract.
func (c *FuturesClient) Contract(ctx context.Context, symbol string) (core.Contract, error) {
	out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: futuresPrefix + "/contracts/" + url.PathEscape(symbol)})
	if err := out.Err(); err != nil {
		return core.Contract{}, err
	}
	var info contractInfo
	if err := out.Decode(&info); err != nil {
		return core.Contract{}, err
	}
	multiplier, err := core.ParseDecimal(info.QuantoMultiplier)
	if err != nil {
		return core.Contract{}, fmt.Errorf("%s quanto_multiplier: %w", symbol, err)
	}
	tick, err := core.ParseDecimal(info.OrderPriceRound)
	if err != nil {
		return core.Contract{}, fmt.Errorf("%s order_price_round: %w", symbol, err)
	}
	precision, ok := core.PrecisionFromStep(info.OrderPriceRound)
	if !ok {
		return core.Contract{}, fmt.Errorf("%s: invalid order_price_round %q", symbol, info.OrderPriceRound)
	}
	return core.Contract{Symbol: symbol, Multiplier: multiplier, PriceTick: tick, PricePrecision: precision}, nil
}
