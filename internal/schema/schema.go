// Package schema defines the canonical market-access model every venue is
// normalized into, plus the tagged event variants carried on the bus.
package schema

import (
	"strings"

	"github.com/exwrap/martin/errs"
)

// Venue identifies a supported exchange.
type Venue string

const (
	VenueBinance  Venue = "binance"
	VenueBitfinex Venue = "bitfinex"
	VenueHuobi    Venue = "huobi"
	VenueOKX      Venue = "okx"
)

// ParseVenue resolves a configured exchange name to a venue tag.
func ParseVenue(name string) (Venue, error) {
	switch Venue(strings.ToLower(strings.TrimSpace(name))) {
	case VenueBinance:
		return VenueBinance, nil
	case VenueBitfinex:
		return VenueBitfinex, nil
	case VenueHuobi:
		return VenueHuobi, nil
	case VenueOKX:
		return VenueOKX, nil
	default:
		return "", errs.New(name, errs.CodeAuth, errs.WithMessage("unsupported exchange"))
	}
}

// OrderSide is the canonical order side.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the canonical order type.
type OrderType string

const (
	TypeLimit           OrderType = "LIMIT"
	TypeMarket          OrderType = "MARKET"
	TypeStopLoss        OrderType = "STOP_LOSS"
	TypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	TypeTakeProfit      OrderType = "TAKE_PROFIT"
	TypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
	TypeLimitMaker      OrderType = "LIMIT_MAKER"
)

// TimeInForce is the canonical time-in-force.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus is the canonical order lifecycle state.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// MapStatus normalizes a venue-native status string.
func MapStatus(native string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(native)) {
	case "canceled", "cancelled", "partial-canceled", "partially_canceled":
		return StatusCanceled
	case "partial-filled", "partially_filled", "partially filled":
		return StatusPartiallyFilled
	case "filled", "executed":
		return StatusFilled
	case "rejected":
		return StatusRejected
	case "expired":
		return StatusExpired
	default:
		return StatusNew
	}
}

// Terminal reports whether the status admits no further fills.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Intervals is the canonical kline interval set, ascending by bucket length.
var Intervals = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w", "1M"}

// ValidInterval reports whether interval belongs to the canonical set.
func ValidInterval(interval string) bool {
	for _, i := range Intervals {
		if i == interval {
			return true
		}
	}
	return false
}
