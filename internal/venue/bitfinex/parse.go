package bitfinex

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
)

// The venue encodes everything as positional arrays of JSON numbers.
// decodeNumbers keeps them as json.Number so decimal strings survive intact.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func num(v any) string {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case string:
		return t
	default:
		return ""
	}
}

func dec(v any) decimal.Decimal {
	d, err := decimal.NewFromString(num(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func i64(v any) int64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return i
}

func at(raw []any, i int) any {
	if i < 0 || i >= len(raw) {
		return nil
	}
	return raw[i]
}

// symbolFromWire folds the venue's BASE/QUOTE pair back into the canonical
// concatenated symbol.
func symbolFromWire(wire string) string {
	return strings.ToUpper(strings.ReplaceAll(wire, "/", ""))
}

// Order array layout: 0 id, 2 cid, 3 symbol, 4 mtsCreate, 5 mtsUpdate,
// 6 amount (signed remaining), 7 amountOrig (signed), 8 type, 13 status,
// 16 price, 17 priceAvg.
func parseOrder(raw []any) (schema.Order, error) {
	if len(raw) < 17 {
		return schema.Order{}, errs.New(string(schema.VenueBitfinex), errs.CodeOther,
			errs.WithMessage("order array too short"))
	}
	amountOrig := dec(at(raw, 7))
	remaining := dec(at(raw, 6))
	origQty := amountOrig.Abs()
	executed := origQty.Sub(remaining.Abs())
	if executed.Sign() < 0 {
		executed = decimal.Zero
	}
	side := schema.SideBuy
	if amountOrig.Sign() < 0 {
		side = schema.SideSell
	}
	price := dec(at(raw, 16))
	avg := dec(at(raw, 17))
	if avg.Sign() == 0 {
		avg = price
	}
	order := schema.Order{
		Symbol:              symbolFromWire(num(at(raw, 3))),
		OrderID:             i64(at(raw, 0)),
		OrderListID:         -1,
		ClientOrderID:       num(at(raw, 2)),
		Price:               price.String(),
		OrigQty:             origQty.String(),
		ExecutedQty:         executed.String(),
		CummulativeQuoteQty: executed.Mul(avg).String(),
		Status:              parseStatus(num(at(raw, 13)), executed),
		TimeInForce:         schema.TIFGTC,
		Type:                parseOrderType(num(at(raw, 8))),
		Side:                side,
		Time:                i64(at(raw, 4)),
		UpdateTime:          i64(at(raw, 5)),
		OrigQuoteOrderQty:   origQty.Mul(price).String(),
	}
	order.IsWorking = order.Status == schema.StatusNew || order.Status == schema.StatusPartiallyFilled
	return order, nil
}

func parseStatus(native string, executed decimal.Decimal) schema.OrderStatus {
	switch {
	case strings.HasPrefix(native, "EXECUTED"):
		return schema.StatusFilled
	case strings.Contains(native, "PARTIALLY FILLED"):
		return schema.StatusPartiallyFilled
	case strings.HasPrefix(native, "CANCELED"):
		return schema.StatusCanceled
	case native == "ACTIVE" && executed.Sign() > 0:
		return schema.StatusPartiallyFilled
	case native == "ACTIVE":
		return schema.StatusNew
	default:
		return schema.StatusRejected
	}
}

func parseOrderType(native string) schema.OrderType {
	switch native {
	case "EXCHANGE MARKET", "MARKET":
		return schema.TypeMarket
	default:
		return schema.TypeLimit
	}
}

// Trade array layout: 0 id, 1 pair, 2 mtsCreate, 3 orderId, 4 execAmount
// (signed), 5 execPrice, 8 maker flag, 9 fee (signed), 10 feeCurrency.
func parseTrade(raw []any) schema.Trade {
	qty := dec(at(raw, 4))
	price := dec(at(raw, 5))
	return schema.Trade{
		Symbol:          symbolFromWire(num(at(raw, 1))),
		ID:              i64(at(raw, 0)),
		OrderID:         i64(at(raw, 3)),
		OrderListID:     -1,
		Price:           price.String(),
		Qty:             qty.Abs().String(),
		QuoteQty:        qty.Abs().Mul(price).String(),
		Commission:      dec(at(raw, 9)).Abs().String(),
		CommissionAsset: num(at(raw, 10)),
		Time:            i64(at(raw, 2)),
		IsBuyer:         qty.Sign() > 0,
		IsMaker:         i64(at(raw, 8)) == 1,
		IsBestMatch:     true,
	}
}

// Wallet array layout: 0 walletType, 1 currency, 2 balance, 4 available.
func parseWalletBalance(raw []any) schema.Balance {
	balance := dec(at(raw, 2))
	available := balance
	if v := num(at(raw, 4)); v != "" {
		available = dec(at(raw, 4))
	}
	locked := balance.Sub(available)
	if locked.Sign() < 0 {
		locked = decimal.Zero
	}
	return schema.Balance{
		Asset:  strings.ToUpper(num(at(raw, 1))),
		Free:   available.String(),
		Locked: locked.String(),
	}
}

// Candle array layout: 0 mts, 1 open, 2 close, 3 high, 4 low, 5 volume.
func parseKline(raw []any, interval string) schema.Kline {
	open := i64(at(raw, 0))
	return schema.Kline{
		OpenTime:      open,
		Open:          num(at(raw, 1)),
		High:          num(at(raw, 3)),
		Low:           num(at(raw, 4)),
		Close:         num(at(raw, 2)),
		Volume:        num(at(raw, 5)),
		CloseTime:     open + intervalMillis(interval) - 1,
		QuoteVolume:   "0",
		TakerBuyBase:  "0",
		TakerBuyQuote: "0",
	}
}

func intervalMillis(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 5 * 60_000
	case "15m":
		return 15 * 60_000
	case "30m":
		return 30 * 60_000
	case "1h":
		return 60 * 60_000
	case "1d":
		return 24 * 60 * 60_000
	case "1w":
		return 7 * 24 * 60 * 60_000
	case "1M":
		return 30 * 24 * 60 * 60_000
	default:
		return 60_000
	}
}

// te array layout: 0 tradeId, 1 pair, 2 mts, 3 orderId, 4 execAmount
// (signed), 5 execPrice.
func parseTradeExecuted(raw []any) schema.ExecutionReport {
	qty := dec(at(raw, 4))
	side := schema.SideBuy
	if qty.Sign() < 0 {
		side = schema.SideSell
	}
	return schema.ExecutionReport{
		EventTime:            i64(at(raw, 2)),
		Symbol:               symbolFromWire(num(at(raw, 1))),
		Side:                 side,
		Type:                 schema.TypeLimit,
		TimeInForce:          schema.TIFGTC,
		ExecutionType:        "TRADE",
		Status:               schema.StatusPartiallyFilled,
		OrderID:              i64(at(raw, 3)),
		LastExecutedQuantity: qty.Abs().String(),
		LastExecutedPrice:    num(at(raw, 5)),
		TransactionTime:      i64(at(raw, 2)),
		TradeID:              i64(at(raw, 0)),
	}
}
