package gate

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange/rest"
)

type alertSpy struct {
	mu     sync.Mutex
	events []string
}

func (a *alertSpy) Important(event string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *alertSpy) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func testOptions(srv *httptest.Server, spy *alertSpy, now func() time.Time) Options {
	return Options{
		Credentials: testCreds,
		Transport:   rest.Options{BaseURL: srv.URL, Timeout: time.Second, Now: now},
		Retry:       rest.Policy{Interval: time.Millisecond, MaxAttempts: 3},
		Alerter:     spy,
		Leverage:    10,
	}
}

// verifySigned rejects requests whose SIGN header does not match.
func verifySigned(t *testing.T, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hash := emptyPayloadHash
		if len(body) > 0 {
			sum := sha512.Sum512(body)
			hash = hex.EncodeToString(sum[:])
		}
		plain := r.Method + "\n" + r.URL.Path + "\n" + r.URL.RawQuery + "\n" + hash + "\n" + r.Header.Get("Timestamp")
		if r.Header.Get("SIGN") != hmac512(testCreds.Secret, plain) {
			t.Errorf("bad signature for %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"label":"INVALID_SIGNATURE"}`)
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next(w, r)
	}
}

func TestSpotPlaceEchoesExecuted(t *testing.T) {
	var body string
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"1","text":"t-abc","status":"closed","amount":"0.5","left":"0.2"}`)
	}))
	defer srv.Close()

	c, err := NewSpotClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	fill := c.Place(context.Background(), core.OrderHandle{
		Symbol: "BTC_USDT", ClientID: "abc", Side: core.Buy,
		Price: decimal.RequireFromString("30000"), Quantity: decimal.RequireFromString("0.5"),
	})
	require.Equal(t, core.ResolvedEchoed, fill.Resolution)
	require.Equal(t, "0.3", fill.Executed.String())
	require.Equal(t, "t-abc", fill.Order.ClientID)
	require.JSONEq(t, `{"currency_pair":"BTC_USDT","side":"buy","amount":"0.5000000000","price":"30000.0000000000","time_in_force":"ioc","text":"t-abc"}`, body)
}

func TestSpotCancelTwice(t *testing.T) {
	calls := atomic.Int32{}
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "BTC_USDT", r.URL.Query().Get("currency_pair"))
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `[{"id":"1","status":"cancelled"}]`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c, err := NewSpotClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	require.NoError(t, c.Cancel(context.Background(), "BTC_USDT"))
	require.NoError(t, c.Cancel(context.Background(), "BTC_USDT"))
	require.EqualValues(t, 2, calls.Load())
}

func TestSpotBalanceAbsentCurrencyIsZero(t *testing.T) {
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"currency":"USDT","available":"100","locked":"5.5"}]`)
	}))
	defer srv.Close()

	c, err := NewSpotClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)

	got, err := c.Balance(context.Background(), "BTC", true)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	got, err = c.Balance(context.Background(), "USDT", true)
	require.NoError(t, err)
	require.Equal(t, "105.5", got.String())

	got, err = c.Balance(context.Background(), "USDT", false)
	require.NoError(t, err)
	require.Equal(t, "100", got.String())
}

func TestSpotFilledQuoteSkipsOpenOrders(t *testing.T) {
	now := time.Unix(1700036000, 0)
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "finished", q.Get("status"))
		require.Equal(t, "1700000000", q.Get("from"))
		require.Equal(t, "sell", q.Get("side"))
		_, _ = io.WriteString(w, `[{"id":"1","status":"closed","filled_total":"10"},{"id":"2","status":"open","filled_total":"99"},{"id":"3","status":"cancelled","filled_total":"2.5"}]`)
	}))
	defer srv.Close()

	c, err := NewSpotClient(testOptions(srv, &alertSpy{}, func() time.Time { return now }))
	require.NoError(t, err)
	total, err := c.FilledQuote(context.Background(), "BTC_USDT", core.Sell, 10*time.Hour)
	require.NoError(t, err)
	require.Equal(t, "12.5", total.String())
}

func TestFuturesOrderEcho(t *testing.T) {
	var body string
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1,"contract":"BTC_USDT","size":-5,"left":-2,"text":"t-x1"}`)
	}))
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	fill := c.Order(context.Background(), core.FuturesOrder{
		Symbol: "BTC_USDT", Price: decimal.RequireFromString("30000.27"), Size: decimal.NewFromInt(-5), ClientID: "t-x1", Precision: 1,
	})
	require.Equal(t, core.ResolvedEchoed, fill.Resolution)
	require.Equal(t, "3", fill.Executed.String())
	require.JSONEq(t, `{"contract":"BTC_USDT","size":-5,"price":"30000.2","tif":"ioc","text":"t-x1"}`, body)
}

func TestFuturesOrderNotFoundAfterFailure(t *testing.T) {
	lookups := atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/futures/usdt/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v4/futures/usdt/orders/t-lost", verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"label":"ORDER_NOT_FOUND","message":"Order not found"}`)
	}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	spy := &alertSpy{}
	c, err := NewFuturesClient(testOptions(srv, spy, nil))
	require.NoError(t, err)
	fill := c.Order(context.Background(), core.FuturesOrder{
		Symbol: "BTC_USDT", Price: decimal.NewFromInt(30000), Size: decimal.NewFromInt(2), ClientID: "t-lost",
	})
	require.Equal(t, core.ResolvedNotFound, fill.Resolution)
	require.True(t, fill.Executed.IsZero())
	require.EqualValues(t, 1, lookups.Load())
	require.Zero(t, spy.count())
}

func TestFuturesOrderLookupAfterFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/futures/usdt/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})
	mux.HandleFunc("/api/v4/futures/usdt/orders/t-found", verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":7,"size":4,"left":0,"status":"finished"}`)
	}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	fill := c.Order(context.Background(), core.FuturesOrder{
		Symbol: "BTC_USDT", Price: decimal.NewFromInt(30000), Size: decimal.NewFromInt(4), ClientID: "found",
	})
	require.Equal(t, core.ResolvedLookedUp, fill.Resolution)
	require.Equal(t, "4", fill.Executed.String())
}

func TestFuturesOrderRoundsPriceToTick(t *testing.T) {
	var body string
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":2,"size":1,"left":0}`)
	}))
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	fill := c.Order(context.Background(), core.FuturesOrder{
		Symbol: "BTC_USDT", Price: decimal.RequireFromString("30000.79"), Size: decimal.NewFromInt(1), ClientID: "t-tick",
		Tick: decimal.RequireFromString("0.5"),
	})
	require.Equal(t, core.ResolvedEchoed, fill.Resolution)
	require.JSONEq(t, `{"contract":"BTC_USDT","size":1,"price":"30000.5","tif":"ioc","text":"t-tick"}`, body)
}

func TestFuturesOrderRefusedLocally(t *testing.T) {
	hits := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	spy := &alertSpy{}
	c, err := NewFuturesClient(testOptions(srv, spy, nil))
	require.NoError(t, err)
	orders := []core.FuturesOrder{
		{Symbol: "DOGE_USDT", Price: decimal.RequireFromString("0.04567"), Size: decimal.NewFromInt(10)},
		{Symbol: "BTC_USDT", Price: decimal.NewFromInt(30000), Size: decimal.RequireFromString("0.5")},
		{Symbol: "BTC_USDT", Price: decimal.NewFromInt(30000), Size: decimal.RequireFromString("-1.5")},
		{Symbol: "BTC_USDT", Price: decimal.NewFromInt(30000), Size: decimal.Zero},
	}
	for _, o := range orders {
		fill := c.Order(context.Background(), o)
		require.Equal(t, core.ResolvedRejected, fill.Resolution, "order %+v", o)
		require.False(t, fill.Accepted)
		require.True(t, fill.Executed.IsZero())
		require.ErrorIs(t, fill.Err, core.ErrInvalidOrder)
	}
	require.Zero(t, hits.Load())
	require.Zero(t, spy.count())
}

func TestFuturesPositionBadRequestIsZero(t *testing.T) {
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ETH_USDT") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"label":"POSITION_NOT_FOUND"}`)
			return
		}
		_, _ = io.WriteString(w, `{"contract":"BTC_USDT","size":-12}`)
	}))
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	pos, err := c.Position(context.Background(), "ETH_USDT")
	require.NoError(t, err)
	require.True(t, pos.IsZero())

	pos, err = c.Position(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.Equal(t, "-12", pos.String())
}

func TestFuturesChangeLeverageUsesQuery(t *testing.T) {
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v4/futures/usdt/positions/BTC_USDT/leverage", r.URL.Path)
		require.Equal(t, "0", r.URL.Query().Get("leverage"))
		require.Equal(t, "10", r.URL.Query().Get("cross_leverage_limit"))
		_, _ = io.WriteString(w, `{"contract":"BTC_USDT","size":0}`)
	}))
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	require.NoError(t, c.ChangeLeverage(context.Background(), "BTC_USDT"))
}

func TestFuturesDepthFreshness(t *testing.T) {
	base := time.UnixMilli(1700000000123)
	skew := atomic.Int64{}
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"current":1700000000.123,"update":1700000000.120,"asks":[{"p":"30001.1","s":10}],"bids":[{"p":"30000.9","s":3}]}`)
	}))
	defer srv.Close()

	now := func() time.Time { return base.Add(time.Duration(skew.Load()) * time.Millisecond) }
	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, now))
	require.NoError(t, err)

	skew.Store(121)
	_, err = c.Depth(context.Background(), "BTC_USDT", 5)
	require.ErrorIs(t, err, core.ErrStaleDepth)

	skew.Store(120)
	d, err := c.Depth(context.Background(), "BTC_USDT", 5)
	require.NoError(t, err)
	require.Equal(t, "30000.9", d.BestBid().String())
	require.Equal(t, "30001.1", d.BestAsk().String())
	require.Equal(t, "10", d.Asks[0].Size.String())

	skew.Store(-50)
	_, err = c.Depth(context.Background(), "BTC_USDT", 5)
	require.NoError(t, err)
}

func TestFuturesContract(t *testing.T) {
	srv := httptest.NewServer(verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name":"BTC_USDT","quanto_multiplier":"0.0001","order_price_round":"0.5"}`)
	}))
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	ct, err := c.Contract(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.Equal(t, "0.0001", ct.Multiplier.String())
	require.Equal(t, "0.5", ct.PriceTick.String())
	require.EqualValues(t, 1, ct.PricePrecision)
}

func TestNewOrderText(t *testing.T) {
	a, b := NewOrderText(), NewOrderText()
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "t-"))
	require.Len(t, a, 30)
	require.Equal(t, "t-x", normalizeText("x"))
	require.Equal(t, "t-x", normalizeText("t-x"))
}

func TestFuturesCancelAndBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/futures/usdt/orders", verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "BTC_USDT", r.URL.Query().Get("contract"))
		_, _ = io.WriteString(w, `[]`)
	}))
	balanceCalls := atomic.Int32{}
	mux.HandleFunc("/api/v4/futures/usdt/accounts", verifySigned(t, func(w http.ResponseWriter, r *http.Request) {
		if balanceCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `upstream unavailable`)
			return
		}
		_, _ = io.WriteString(w, `{"total":"120.5","available":"99.25","currency":"USDT"}`)
	}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewFuturesClient(testOptions(srv, &alertSpy{}, nil))
	require.NoError(t, err)
	require.NoError(t, c.Cancel(context.Background(), "BTC_USDT"))

	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "99.25", bal.String())
	require.EqualValues(t, 2, balanceCalls.Load())
}
