package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chia4/cex-api/internal/core"
)

// SpotTrader is the spot capability set both exchange families implement.
type SpotTrader interface {
	Name() string
	Place(ctx context.Context, order core.OrderHandle) core.Fill
	Buy(ctx context.Context, symbol string, price, quantity decimal.Decimal) core.Fill
	Sell(ctx context.Context, symbol string, price, quantity decimal.Decimal) core.Fill
	Cancel(ctx context.Context, symbol string) error
	Tickers(ctx context.Context) (map[string]decimal.Decimal, error)
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
	Balance(ctx context.Context, currency string, includeLocked bool) (decimal.Decimal, error)
	FilledQuote(ctx context.Context, symbol string, side core.Side, window time.Duration) (decimal.Decimal, error)
}

// FuturesTrader is the perpetual futures capability set both exchange families implement.
type FuturesTrader interface {
	Name() string
	Order(ctx context.Context, order core.FuturesOrder) core.Fill
	Cancel(ctx context.Context, symbol string) error
	Position(ctx context.Context, symbol string) (decimal.Decimal, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	ChangeLeverage(ctx context.Context, symbol string) error
	Depth(ctx context.Context, symbol string, limit int) (core.Depth, error)
	Contract(ctx context.Context, symbol string) (core.Contract, error)
}
