package gate

import (
	"context"
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

type SpotClient struct {
	rest       *rest.Transport
	retry      rest.Policy
	tif        map[core.Side]core.TimeInForce
	reconciler exchange.Reconciler
	log        *logrus.Entry
}

var _ exchange.SpotTrader = (*SpotClient)(nil)

func NewSpotClient(opts Options) (*SpotClient, error) {
	t, err := newTransport(opts)
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
		reconciler: newReconciler(opts, "gate/spot"),
		log:        logging.Component(opts.Logger, "gate_spot"),
	}, nil
}

func (c *SpotClient) Name() string { return "gate" }

func timeInForce(tif core.TimeInForce) string {
	if tif == core.IOC {
		return "ioc"
	}
	return "gtc"
}

// Place submits one spot order tagged with a text id. The executed base amount is
// taken from the response, or read back by text when the response is lost.
func (c *SpotClient) Place(ctx context.Context, order core.OrderHandle) core.Fill {
	order.ClientID = normalizeText(order.ClientID)
	params := map[string]string{
		"currency_pair": order.Symbol,
		"side":          string(order.Side),
		"amount":        core.FormatFixed(order.Quantity, core.SpotPlaces),
		"price":         core.FormatFixed(order.Price, core.SpotPlaces),
		"time_in_force": timeInForce(c.tif[order.Side]),
		"text":          order.ClientID,
	}
	out := c.rest.Do(ctx, rest.Request{Method: http.MethodPost, Path: "/api/v4/spot/orders", Body: params})
	return c.reconciler.Resolve(ctx, exchange.Placement{Order: order, Params: params, Outcome: out},
		func(out rest.Outcome) (decimal.Decimal, bool) {
			var o spotOrder
			if out.Decode(&o) != nil {
				return decimal.Zero, false
			}
			return spotExecuted(o)
		},
		func(ctx context.Context) (decimal.Decimal, error) {
			o, err := c.order(ctx, order.Symbol, order.ClientID)
			if err != nil {
				return decimal.Zero, err
			}
			qty, ok := spotExecuted(o)
			if !ok {
				return decimal.Zero, fmt.Errorf("order %s: unparsable amount %q left %q", order.ClientID, o.Amount, o.Left)
			}
			return qty, nil
		})
}

func spotExecuted(o spotOrder) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(o.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	left, err := core.ParseDecimal(o.Left)
	if err != nil {
		return decimal.Zero, false
	}
	return core.Executed(amount, left), true
}

func (c *SpotClient) order(ctx context.Context, pair, text string) (spotOrder, error) {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/api/v4/spot/orders/" + url.PathEscape(text),
		Query:  url.Values{"currency_pair": {pair}},
	})
	if err := out.Err(); err != nil {
		return spotOrder{}, err
	}
	var o spotOrder
	if err := out.Decode(&o); err != nil {
		return spotOrder{}, err
	}
	return o, nil
}

func (c *SpotClient) Buy(ctx context.Context, symbol string, price, quantity decimal.Decimal) core.Fill {
	return c.Place(ctx, core.OrderHandle{Symbol: symbol, Side: core.Buy, Price: price, Quantity: quantity})
}

func (c *SpotClient) Sell(ctx context.Context, symbol string, price, quantity decimal.Decimal) core.Fill {
	return c.Place(ctx, core.OrderHandle{Symbol: symbol, Side: core.Sell, Price: price, Quantity: quantity})
}

// Cancel cancels every open order on the currency pair. It is safe to repeat.
func (c *SpotClient) Cancel(ctx context.Context, symbol string) error {
	out := c.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   "/api/v4/spot/orders",
		Query:  url.Values{"currency_pair": {symbol}},
	})
	return out.Err()
}

func (c *SpotClient) Tickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "gate_tickers", func(ctx context.Context) (map[string]decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/api/v4/spot/tickers"})
		if err := out.Err(); err != nil {
			return nil, err
		}
		var tickers []spotTicker
		if err := out.Decode(&tickers); err != nil {
			return nil, err
		}
		prices := make(map[string]decimal.Decimal, len(tickers))
		for _, t := range tickers {
			last, err := decimal.NewFromString(t.Last)
			if err != nil {
				continue
			}
			prices[t.CurrencyPair] = last
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

// Balance returns the available (optionally plus locked) amount. An absent currency is zero.
func (c *SpotClient) Balance(ctx context.Context, currency string, includeLocked bool) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "gate_balance", func(ctx context.Context) (decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/api/v4/spot/accounts"})
		if err := out.Err(); err != nil {
			return decimal.Zero, err
		}
		var accounts []spotAccount
		if err := out.Decode(&accounts); err != nil {
			return decimal.Zero, err
		}
		for _, a := range accounts {
			if !strings.EqualFold(a.Currency, currency) {
				continue
			}
			available, err := core.ParseDecimal(a.Available)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%s available: %w", currency, err)
			}
			locked, err := core.ParseDecimal(a.Locked)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%s locked: %w", currency, err)
			}
			bal := core.Balance{Currency: a.Currency, Available: available, Locked: locked}
			if includeLocked {
				return bal.Total(), nil
			}
			return bal.Available, nil
		}
		return decimal.Zero, nil
	})
}

// FilledQuote sums filled_total of finished orders on symbol for side within the trailing window.
func (c *SpotClient) FilledQuote(ctx context.Context, symbol string, side core.Side, window time.Duration) (decimal.Decimal, error) {
	return rest.Retry(ctx, c.retry, c.log, "gate_filled_quote", func(ctx context.Context) (decimal.Decimal, error) {
		out := c.rest.Do(ctx, rest.Request{
			Method: http.MethodGet,
			Path:   "/api/v4/spot/orders",
			Query: url.Values{
				"currency_pair": {symbol},
				"status":        {"finished"},
				"from":          {strconv.FormatInt(c.rest.Now().Add(-window).Unix(), 10)},
				"side":          {string(side)},
			},
		})
		if err := out.Err(); err != nil {
			return decimal.Zero, err
		}
		var orders []spotOrder
		if err := out.Decode(&orders); err != nil {
			return decimal.Zero, err
		}
		total := decimal.Zero
		for _, o := range orders {
			if o.Status == "open" {
				continue
			}
			filled, err := core.ParseDecimal(o.FilledTotal)
			if err != nil {
				return decimal.Zero, fmt.Errorf("order %s filled_total: %w", o.ID, err)
			}
			total = total.Add(filled)
		}
		return total, nil
	})
}
