package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
)

const DefaultFuturesWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

const bookTickerChannel = "futures.book_ticker"

type StreamOptions struct {
	URL     string
	MaxSkew time.Duration
	Now     func() time.Time
	Logger  *logrus.Entry
	// SourceAddr and InsecureSkipVerify follow the REST transport settings.
	SourceAddr         string
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
}

// BookTickerStream delivers best bid/ask updates for futures contracts,
// dropping any update that fails the freshness check.
type BookTickerStream struct {
	url     string
	maxSkew time.Duration
	now     func() time.Time
	dialer  *websocket.Dialer
	log     *logrus.Entry

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewBookTickerStream(opts StreamOptions) (*BookTickerStream, error) {
	log := logging.Component(opts.Logger, "gate_book_ticker")
	netDialer, err := rest.NewDialer(opts.SourceAddr, opts.HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("gate stream: %w", err)
	}
	dialer := &websocket.Dialer{
		NetDialContext:   netDialer.DialContext,
		TLSClientConfig:  rest.TLSConfig(opts.InsecureSkipVerify, log),
		HandshakeTimeout: netDialer.Timeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	s := &BookTickerStream{
		url:     opts.URL,
		maxSkew: opts.MaxSkew,
		now:     opts.Now,
		dialer:  dialer,
		log:     log,
	}
	if s.url == "" {
		s.url = DefaultFuturesWSURL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

type wsMessage struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload []string        `json:"payload,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bookTicker struct {
	T        int64           `json:"t"`
	Contract string          `json:"s"`
	Bid      decimal.Decimal `json:"b"`
	BidSize  decimal.Decimal `json:"B"`
	Ask      decimal.Decimal `json:"a"`
	AskSize  decimal.Decimal `json:"A"`
}

// Run subscribes to contracts and calls handle for every fresh update until ctx
// is done or the connection fails. It returns ctx.Err() on cancellation.
func (s *BookTickerStream) Run(ctx context.Context, contracts []string, handle func(core.Depth)) error {
	if len(contracts) == 0 {
		return errors.New("gate book ticker: no contracts")
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("gate book ticker dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	sub := wsMessage{Time: s.now().Unix(), Channel: bookTickerChannel, Event: "subscribe", Payload: contracts}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("gate book ticker subscribe: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gate book ticker read: %w", err)
		}
		received := s.now()
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.WithField("event", "ws_decode_failed").WithError(err).Debug("skip message")
			continue
		}
		if msg.Channel != bookTickerChannel {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("gate book ticker %s error %d: %s", msg.Event, msg.Error.Code, msg.Error.Message)
		}
		if msg.Event != "update" {
			continue
		}
		var tick bookTicker
		if err := json.Unmarshal(msg.Result, &tick); err != nil {
			s.log.WithField("event", "ws_decode_failed").WithError(err).Debug("skip update")
			continue
		}
		d := core.Depth{
			Symbol:     tick.Contract,
			Bids:       []core.Level{{Price: tick.Bid, Size: tick.BidSize}},
			Asks:       []core.Level{{Price: tick.Ask, Size: tick.AskSize}},
			Time:       time.UnixMilli(tick.T),
			ReceivedAt: received,
			Raw:        data,
		}
		if err := core.CheckFresh(d, s.maxSkew); err != nil {
			s.dropped.Add(1)
			s.log.WithFields(logrus.Fields{"event": "depth_rejected", "symbol": d.Symbol}).Debug(err.Error())
			continue
		}
		s.delivered.Add(1)
		handle(d)
	}
}

func (s *BookTickerStream) Delivered() uint64 { return s.delivered.Load() }

func (s *BookTickerStream) Dropped() uint64 { return s.dropped.Load() }
