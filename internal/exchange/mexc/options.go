package mexc

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/alert"
	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
)

const (
	DefaultSpotBaseURL    = "https://www.mexc.com"
	DefaultFuturesBaseURL = "https://contract.mexc.com"
)

// Options configures either MEXC client. Fields a client has no use for are ignored.
type Options struct {
	Credentials rest.Credentials
	Transport   rest.Options
	Retry       rest.Policy
	Alerter     alert.Alerter
	Logger      *logrus.Entry
	// MaxSkew bounds how far a depth snapshot may lag its exchange timestamp.
	MaxSkew time.Duration
	// Leverage is applied to futures orders and ChangeLeverage.
	Leverage int
	BuyTIF   core.TimeInForce
	SellTIF  core.TimeInForce
}

func newTransport(opts Options, okCode int, defaultBase string) (*rest.Transport, error) {
	topts := opts.Transport
	if strings.TrimSpace(topts.BaseURL) == "" {
		topts.BaseURL = defaultBase
	}
	if topts.Logger == nil {
		topts.Logger = opts.Logger
	}
	return rest.NewTransport(NewScheme(opts.Credentials, okCode), topts)
}

// newReconciler keeps looking an order up until MEXC acknowledges it. MEXC answers
// lookups for orders it has not yet indexed with empty data or 404, so neither proves
// the order was lost.
func newReconciler(opts Options, source string) exchange.Reconciler {
	return exchange.Reconciler{
		Source:  source,
		Policy:  opts.Retry,
		Alerter: opts.Alerter,
		Log:     logging.Component(opts.Logger, source),
	}
}

// NewExternalOID returns a fresh idempotency token for a contract order.
func NewExternalOID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
