package gate

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

const DefaultBaseURL = "https://api.gateio.ws"

// textPrefix is required by Gate on user-defined order ids.
const textPrefix = "t-"

type Options struct {
	Credentials rest.Credentials
	Transport   rest.Options
	Retry       rest.Policy
	Alerter     alert.Alerter
	Logger      *logrus.Entry
	MaxSkew     time.Duration
	// Leverage is the cross leverage limit applied by ChangeLeverage.
	Leverage int
	BuyTIF   core.TimeInForce
	SellTIF  core.TimeInForce
}

func newTransport(opts Options) (*rest.Transport, error) {
	topts := opts.Transport
	if strings.TrimSpace(topts.BaseURL) == "" {
		topts.BaseURL = DefaultBaseURL
	}
	if topts.Logger == nil {
		topts.Logger = opts.Logger
	}
	return rest.NewTransport(NewScheme(opts.Credentials), topts)
}

// newReconciler treats a 404 from the order lookup as final: Gate's order lookup reads
// the same store that accepted the order, so an unknown text was never placed.
func newReconciler(opts Options, source string) exchange.Reconciler {
	return exchange.Reconciler{
		Source:        source,
		Policy:        opts.Retry,
		Alerter:       opts.Alerter,
		Log:           logging.Component(opts.Logger, source),
		NotFoundFinal: true,
	}
}

// NewOrderText returns a fresh idempotency token in the form Gate accepts.
// Gate limits text to 28 characters after the prefix.
func NewOrderText() string {
	return textPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:28]
}

// normalizeText adds the mandatory prefix to a caller-supplied id.
func normalizeText(id string) string {
	if id == "" {
		return NewOrderText()
	}
	if strings.HasPrefix(id, textPrefix) {
		return id
	}
	return textPrefix + id
}
