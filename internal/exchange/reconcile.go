package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/alert"
	"github.com/chia4/cex-api/internal/core"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
)

// Echo extracts the executed quantity from a successful placement response, if present.
type Echo func(rest.Outcome) (decimal.Decimal, bool)

// Lookup queries the order by its idempotency token. An error wrapping core.ErrNotFound
// means the exchange has no record of the order yet; see Reconciler.NotFoundFinal.
type Lookup func(ctx context.Context) (decimal.Decimal, error)

// Placement is the result of the single submission attempt for one order.
type Placement struct {
	Order   core.OrderHandle
	Params  map[string]string
	Outcome rest.Outcome
}

// Reconciler resolves a placement to the quantity actually executed.
// It never resubmits an order; only the status lookup is retried.
type Reconciler struct {
	Source  string
	Policy  rest.Policy
	Alerter alert.Alerter
	Log     *logrus.Entry
	// NotFoundFinal treats a lookup that finds no order as proof it was never accepted.
	// When false the lookup is retried until the order shows up, and running out of
	// attempts is reported like any other unresolved order.
	NotFoundFinal bool
}

func (r Reconciler) Resolve(ctx context.Context, p Placement, echo Echo, lookup Lookup) core.Fill {
	log := logging.Component(r.Log, "reconcile").WithFields(logrus.Fields{
		"source":    r.Source,
		"symbol":    p.Order.Symbol,
		"client_id": p.Order.ClientID,
		"side":      string(p.Order.Side),
	})
	log.WithFields(logrus.Fields{
		"event":  "order_submitted",
		"kind":   p.Outcome.Kind.String(),
		"status": p.Outcome.Status,
	}).Info(p.Outcome.String())

	fill := core.Fill{Order: p.Order, Executed: decimal.Zero, Err: p.Outcome.Err()}

	if p.Outcome.OK() && echo != nil {
		if qty, ok := echo(p.Outcome); ok {
			fill.Accepted = true
			fill.Executed = qty
			fill.Resolution = core.ResolvedEchoed
			return fill
		}
	}

	if lookup == nil {
		if p.Outcome.Kind == rest.ApplicationError {
			fill.Resolution = core.ResolvedRejected
			return fill
		}
		return r.unresolved(log, p, fill, p.Outcome.Err())
	}

	type lookupResult struct {
		qty   decimal.Decimal
		found bool
	}
	res, err := rest.Retry(ctx, r.Policy, log, "order_lookup", func(ctx context.Context) (lookupResult, error) {
		qty, err := lookup(ctx)
		if errors.Is(err, core.ErrNotFound) {
			if r.NotFoundFinal {
				return lookupResult{}, nil
			}
			return lookupResult{}, err
		}
		if err != nil {
			return lookupResult{}, err
		}
		return lookupResult{qty: qty, found: true}, nil
	})
	if err != nil {
		return r.unresolved(log, p, fill, err)
	}
	if !res.found {
		log.WithFields(paramFields(p.Params)).WithField("event", "order_not_found").Warn("exchange has no record of order")
		fill.Resolution = core.ResolvedNotFound
		return fill
	}
	fill.Accepted = true
	fill.Executed = res.qty
	fill.Resolution = core.ResolvedLookedUp
	return fill
}

// unresolved reports the raw order to the operator and assumes nothing executed.
func (r Reconciler) unresolved(log *logrus.Entry, p Placement, fill core.Fill, cause error) core.Fill {
	fields := make(map[string]string, len(p.Params)+2)
	for k, v := range p.Params {
		fields[k] = v
	}
	fields["source"] = r.Source
	if cause != nil {
		fields["error"] = cause.Error()
	}
	log.WithFields(paramFields(p.Params)).WithField("event", "order_unresolved").WithError(cause).Error("order outcome unknown, assuming nothing executed")
	if r.Alerter != nil {
		r.Alerter.Important("order_unresolved", fields)
	}
	fill.Accepted = p.Outcome.OK()
	fill.Executed = decimal.Zero
	fill.Resolution = core.ResolvedUnresolved
	if fill.Err == nil {
		fill.Err = cause
	}
	return fill
}

func paramFields(params map[string]string) logrus.Fields {
	fields := make(logrus.Fields, len(params))
	for k, v := range params {
		fields["param_"+k] = v
	}
	return fields
}
