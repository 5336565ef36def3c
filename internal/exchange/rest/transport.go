package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/chia4/cex-api/internal/logging"
)

// DefaultTimeout bounds a single exchange call.
const DefaultTimeout = 5 * time.Second

const maxResponseBytes = 8 << 20

type Options struct {
	BaseURL string
	// SourceAddr is the local IP outgoing connections bind to. Empty means the OS default.
	SourceAddr         string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64
	Burst     int
	Logger    *logrus.Entry
	Now       func() time.Time
}

// Transport executes signed calls for one scheme over a source-bound HTTP client.
// It is safe for concurrent use; nothing in it changes after construction.
type Transport struct {
	scheme  Scheme
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     *logrus.Entry
	metrics *transportMetrics
}

func NewTransport(scheme Scheme, opts Options) (*Transport, error) {
	if scheme == nil {
		return nil, errors.New("scheme required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base url required", scheme.Name())
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := logging.Component(opts.Logger, "rest").WithField("exchange", scheme.Name())

	dialer, err := NewDialer(opts.SourceAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", scheme.Name(), err)
	}
	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpTransport.DialContext = dialer.DialContext
	if cfg := TLSConfig(opts.InsecureSkipVerify, log); cfg != nil {
		httpTransport.TLSClientConfig = cfg
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Transport{
		scheme:  scheme,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout, Transport: httpTransport},
		limiter: limiter,
		now:     now,
		log:     log,
		metrics: newTransportMetrics(scheme.Name()),
	}, nil
}

func (t *Transport) Exchange() string { return t.scheme.Name() }

// Now is the clock used for signing timestamps and receipt times.
func (t *Transport) Now() time.Time { return t.now() }

func (t *Transport) Logger() *logrus.Entry { return t.log }

// Do signs and executes req exactly once. Every failure is returned inside the Outcome.
func (t *Transport) Do(ctx context.Context, req Request) Outcome {
	started := time.Now()
	outcome := t.do(ctx, req)
	outcome.Exchange = t.scheme.Name()
	t.metrics.record(ctx, req.Method, outcome.Kind, time.Since(started))
	if outcome.Kind != Success {
		t.log.WithFields(logrus.Fields{
			"event":  "request_failed",
			"method": req.Method,
			"path":   req.Path,
			"kind":   outcome.Kind.String(),
			"status": outcome.Status,
		}).Debug(outcome.String())
	}
	return outcome
}

func (t *Transport) do(ctx context.Context, req Request) Outcome {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Failed(0, nil, fmt.Errorf("rate limit wait: %w", err))
		}
	}
	payload, err := req.Payload()
	if err != nil {
		return Failed(0, nil, err)
	}
	headers := t.scheme.Sign(payload, t.now())

	urlStr := t.baseURL + payload.Path
	if payload.RawQuery != "" {
		urlStr += "?" + payload.RawQuery
	}
	var body io.Reader
	if payload.HasBody {
		body = bytes.NewReader(payload.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, payload.Method, urlStr, body)
	if err != nil {
		return Failed(0, nil, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Failed(0, nil, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Failed(resp.StatusCode, nil, fmt.Errorf("read response: %w", err))
	}
	return t.scheme.Classify(resp.StatusCode, respBody)
}
