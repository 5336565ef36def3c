package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type TimeInForce string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

const (
	IOC   TimeInForce = "ioc"
	Limit TimeInForce = "limit"
)

// OrderHandle correlates a placement attempt with a later status lookup.
type OrderHandle struct {
	Symbol   string
	ClientID string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// FuturesOrder is an IOC futures order. Size is signed: positive buys, negative sells.
// Tick, when set, is the contract price step; Precision is the minimum number of price digits sent.
type FuturesOrder struct {
	Symbol    string
	Price     decimal.Decimal
	Size      decimal.Decimal
	ClientID  string
	Precision int32
	Tick      decimal.Decimal
}

// LimitPrice rounds Price down to Tick and renders it with enough digits for both Tick and Precision.
// It fails with ErrInvalidOrder when the rendered price is not positive.
func (o FuturesOrder) LimitPrice() (string, error) {
	places := o.Precision
	if p, ok := PrecisionFromStep(o.Tick.String()); ok && p > places {
		places = p
	}
	s := FormatFixed(RoundDown(o.Price, o.Tick), places)
	if d, err := decimal.NewFromString(s); err != nil || !d.IsPositive() {
		return "", fmt.Errorf("price %s at %d digits is %s: %w", o.Price, places, s, ErrInvalidOrder)
	}
	return s, nil
}

func (o FuturesOrder) Side() Side {
	if o.Size.IsNegative() {
		return Sell
	}
	return Buy
}

func (o FuturesOrder) Handle() OrderHandle {
	return OrderHandle{
		Symbol:   o.Symbol,
		ClientID: o.ClientID,
		Side:     o.Side(),
		Price:    o.Price,
		Quantity: o.Size.Abs(),
	}
}

type Resolution string

const (
	// ResolvedEchoed means the placement response carried the executed quantity.
	ResolvedEchoed Resolution = "echoed"
	// ResolvedLookedUp means the executed quantity came from a status lookup.
	ResolvedLookedUp Resolution = "looked_up"
	// ResolvedNotFound means the exchange has no record of the order.
	ResolvedNotFound Resolution = "not_found"
	// ResolvedRejected means the exchange definitively refused the order.
	ResolvedRejected Resolution = "rejected"
	// ResolvedUnresolved means no definitive answer was obtained; Executed is zero.
	ResolvedUnresolved Resolution = "unresolved"
)

type Fill struct {
	Order      OrderHandle
	Accepted   bool
	Executed   decimal.Decimal
	Resolution Resolution
	Err        error
}

// Refused is the fill of an order that was never sent because it failed local validation.
func Refused(order OrderHandle, err error) Fill {
	return Fill{Order: order, Executed: decimal.Zero, Resolution: ResolvedRejected, Err: err}
}

type Position struct {
	Symbol string
	Size   decimal.Decimal
}

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type Depth struct {
	Symbol     string
	Bids       []Level
	Asks       []Level
	Time       time.Time
	ReceivedAt time.Time
	Raw        []byte
}

func (d Depth) BestBid() decimal.Decimal {
	if len(d.Bids) == 0 {
		return decimal.Zero
	}
	return d.Bids[0].Price
}

func (d Depth) BestAsk() decimal.Decimal {
	if len(d.Asks) == 0 {
		return decimal.Zero
	}
	return d.Asks[0].Price
}

func (d Depth) Skew() time.Duration {
	return d.ReceivedAt.Sub(d.Time)
}

type Contract struct {
	Symbol         string
	Multiplier     decimal.Decimal
	PriceTick      decimal.Decimal
	PricePrecision int32
}

// Order builds an IOC order whose price follows this contract's tick and precision.
func (c Contract) Order(price, size decimal.Decimal, clientID string) FuturesOrder {
	return FuturesOrder{
		Symbol:    c.Symbol,
		Price:     price,
		Size:      size,
		ClientID:  clientID,
		Precision: c.PricePrecision,
		Tick:      c.PriceTick,
	}
}

type Balance struct {
	Currency  string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
