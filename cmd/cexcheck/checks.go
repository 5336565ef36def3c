package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
	statusSkip checkStatus = "SKIP"
)

type checkResult struct {
	Exchange   string      `json:"exchange"`
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type positionLister interface {
	HasOpenPositions(ctx context.Context) (bool, error)
}

type bookStream interface {
	Run(ctx context.Context, contracts []string, handle func(core.Depth)) error
}

const streamWait = 10 * time.Second

// target is one configured exchange with the symbols its checks use.
type target struct {
	name          string
	spot          exchange.SpotTrader
	futures       exchange.FuturesTrader
	stream        bookStream
	spotSymbol    string
	futuresSymbol string
	quote         string
	minBalance    decimal.Decimal
	depthLimit    int
	window        time.Duration
}

type checkFunc func(ctx context.Context, t target) (string, error)

var errNotConfigured = errors.New("not configured")

var checkRegistry = map[string]checkFunc{
	"spot_ticker": func(ctx context.Context, t target) (string, error) {
		if t.spot == nil || t.spotSymbol == "" {
			return "", errNotConfigured
		}
		price, ok, err := t.spot.Price(ctx, t.spotSymbol)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no ticker for %s", t.spotSymbol)
		}
		return fmt.Sprintf("%s last=%s", t.spotSymbol, price), nil
	},
	"spot_balance": func(ctx context.Context, t target) (string, error) {
		if t.spot == nil {
			return "", errNotConfigured
		}
		bal, err := t.spot.Balance(ctx, t.quote, false)
		if err != nil {
			return "", err
		}
		if bal.LessThan(t.minBalance) {
			return "", fmt.Errorf("%s available %s below minimum %s", t.quote, bal, t.minBalance)
		}
		return fmt.Sprintf("%s available=%s", t.quote, bal), nil
	},
	"spot_filled_quote": func(ctx context.Context, t target) (string, error) {
		if t.spot == nil || t.spotSymbol == "" {
			return "", errNotConfigured
		}
		bought, err := t.spot.FilledQuote(ctx, t.spotSymbol, core.Buy, t.window)
		if err != nil {
			return "", err
		}
		sold, err := t.spot.FilledQuote(ctx, t.spotSymbol, core.Sell, t.window)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s window=%s bought=%s sold=%s", t.spotSymbol, t.window, bought, sold), nil
	},
	"futures_balance": func(ctx context.Context, t target) (string, error) {
		if t.futures == nil {
			return "", errNotConfigured
		}
		bal, err := t.futures.Balance(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("available=%s", bal), nil
	},
	"futures_position": func(ctx context.Context, t target) (string, error) {
		if t.futures == nil || t.futuresSymbol == "" {
			return "", errNotConfigured
		}
		size, err := t.futures.Position(ctx, t.futuresSymbol)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("%s size=%s", t.futuresSymbol, size)
		if lister, ok := t.futures.(positionLister); ok {
			open, err := lister.HasOpenPositions(ctx)
			if err != nil {
				return "", err
			}
			detail += fmt.Sprintf(" any_open=%t", open)
		}
		return detail, nil
	},
	"futures_depth": func(ctx context.Context, t target) (string, error) {
		if t.futures == nil || t.futuresSymbol == "" {
			return "", errNotConfigured
		}
		d, err := t.futures.Depth(ctx, t.futuresSymbol, t.depthLimit)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s bid=%s ask=%s skew=%s", t.futuresSymbol, d.BestBid(), d.BestAsk(), d.Skew()), nil
	},
	"futures_contract": func(ctx context.Context, t target) (string, error) {
		if t.futures == nil || t.futuresSymbol == "" {
			return "", errNotConfigured
		}
		c, err := t.futures.Contract(ctx, t.futuresSymbol)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("%s multiplier=%s tick=%s precision=%d", t.futuresSymbol, c.Multiplier, c.PriceTick, c.PricePrecision)
		// Show how an order at the current best bid would be priced.
		if d, err := t.futures.Depth(ctx, t.futuresSymbol, t.depthLimit); err == nil {
			if price, err := c.Order(d.BestBid(), decimal.NewFromInt(1), "").LimitPrice(); err == nil {
				detail += " bid_limit=" + price
			}
		}
		return detail, nil
	},
	"futures_stream": func(ctx context.Context, t target) (string, error) {
		if t.stream == nil || t.futuresSymbol == "" {
			return "", errNotConfigured
		}
		ctx, cancel := context.WithTimeout(ctx, streamWait)
		defer cancel()
		var first core.Depth
		err := t.stream.Run(ctx, []string{t.futuresSymbol}, func(d core.Depth) {
			if first.Symbol == "" {
				first = d
				cancel()
			}
		})
		if first.Symbol == "" {
			if err == nil || errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("no fresh update within %s", streamWait)
			}
			return "", err
		}
		return fmt.Sprintf("%s bid=%s ask=%s skew=%s", first.Symbol, first.BestBid(), first.BestAsk(), first.Skew()), nil
	},
}

var defaultChecks = []string{"spot_ticker", "spot_balance", "futures_balance", "futures_depth", "futures_contract"}

func parseCheckFlag(v string) ([]string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "", "default":
		return append([]string(nil), defaultChecks...), nil
	case "all":
		all := make([]string, 0, len(checkRegistry))
		for name := range checkRegistry {
			all = append(all, name)
		}
		sort.Strings(all)
		return all, nil
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(v, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		if _, ok := checkRegistry[name]; !ok {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, errors.New("no checks selected")
	}
	return out, nil
}

// runChecks runs every selected check against every target concurrently.
// Results are ordered by target, then by check selection order.
func runChecks(ctx context.Context, targets []target, checks []string, parallel int) []checkResult {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]checkResult, len(targets)*len(checks))
	p := pool.New().WithMaxGoroutines(parallel)
	for ti, t := range targets {
		for ci, name := range checks {
			idx := ti*len(checks) + ci
			t, name, fn := t, name, checkRegistry[name]
			p.Go(func() {
				results[idx] = runOne(ctx, t, name, fn)
			})
		}
	}
	p.Wait()
	return results
}

func runOne(ctx context.Context, t target, name string, fn checkFunc) checkResult {
	start := time.Now()
	detail, err := fn(ctx, t)
	cr := checkResult{
		Exchange:   t.name,
		Name:       name,
		DurationMs: time.Since(start).Milliseconds(),
		Detail:     detail,
	}
	switch {
	case errors.Is(err, errNotConfigured):
		cr.Status = statusSkip
		cr.Detail = err.Error()
	case err != nil:
		cr.Status = statusFail
		cr.Error = err.Error()
	default:
		cr.Status = statusPass
	}
	return cr
}
