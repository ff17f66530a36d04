// Package okx adapts the dash-symbol venue: header-signed REST under a
// passphrase, checksum-verified depth books, and string-typed numeric
// payloads throughout.
package okx

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
)

// envelope is the venue's REST wrapper; every payload rides under data.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Venue codes that mean the request was throttled, not wrong.
var rateLimitCodes = map[string]struct{}{
	"50011": {},
	"50013": {},
	"50061": {},
}

func (e envelope) err() error {
	if e.Code == "" || e.Code == "0" {
		return nil
	}
	code := errs.CodeHTTP
	if _, ok := rateLimitCodes[e.Code]; ok {
		code = errs.CodeRateLimited
	}
	return errs.New(string(schema.VenueOKX), code,
		errs.WithMessage("request rejected"),
		errs.WithRawCode(e.Code),
		errs.WithRawMessage(e.Msg))
}

// canonicalFromWire folds "BTC-USDT" into the canonical symbol.
func canonicalFromWire(wire string) string {
	return strings.ToUpper(strings.ReplaceAll(wire, "-", ""))
}

func pi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func mulStrings(a, b string) string {
	da, err1 := decimal.NewFromString(a)
	db, err2 := decimal.NewFromString(b)
	if err1 != nil || err2 != nil {
		return "0"
	}
	return da.Mul(db).String()
}

type nativeOrder struct {
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	InstID    string `json:"instId"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	AvgPx     string `json:"avgPx"`
	AccFillSz string `json:"accFillSz"`
	FillSz    string `json:"fillSz"`
	FillPx    string `json:"fillPx"`
	TradeID   string `json:"tradeId"`
	State     string `json:"state"`
	Side      string `json:"side"`
	OrdType   string `json:"ordType"`
	Fee       string `json:"fee"`
	FeeCcy    string `json:"feeCcy"`
	CTime     string `json:"cTime"`
	UTime     string `json:"uTime"`
}

func convertOrder(native nativeOrder) schema.Order {
	side := schema.SideSell
	if native.Side == "buy" {
		side = schema.SideBuy
	}
	orderType := schema.TypeLimit
	if native.OrdType == "market" {
		orderType = schema.TypeMarket
	}
	status := schema.MapStatus(native.State)
	executed := orZero(native.AccFillSz)
	avg := native.AvgPx
	if avg == "" {
		avg = orZero(native.Px)
	}
	return schema.Order{
		Symbol:              canonicalFromWire(native.InstID),
		OrderID:             pi64(native.OrdID),
		OrderListID:         -1,
		ClientOrderID:       native.ClOrdID,
		Price:               orZero(native.Px),
		OrigQty:             orZero(native.Sz),
		ExecutedQty:         executed,
		CummulativeQuoteQty: mulStrings(executed, avg),
		Status:              status,
		TimeInForce:         schema.TIFGTC,
		Type:                orderType,
		Side:                side,
		StopPrice:           "0",
		IcebergQty:          "0",
		Time:                pi64(native.CTime),
		UpdateTime:          pi64(native.UTime),
		IsWorking:           status == schema.StatusNew || status == schema.StatusPartiallyFilled,
		OrigQuoteOrderQty:   mulStrings(orZero(native.Sz), orZero(native.Px)),
	}
}

type nativeFill struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	OrdID   string `json:"ordId"`
	FillPx  string `json:"fillPx"`
	FillSz  string `json:"fillSz"`
	Side    string `json:"side"`
	ExecType string `json:"execType"` // T taker, M maker
	Fee     string `json:"fee"`
	FeeCcy  string `json:"feeCcy"`
	Ts      string `json:"ts"`
}

// convertFill maps one fill row; the venue reports fees as negative
// amounts in the fee currency.
func convertFill(native nativeFill) schema.Trade {
	commission := orZero(native.Fee)
	if fee, err := decimal.NewFromString(commission); err == nil {
		commission = fee.Abs().String()
	}
	return schema.Trade{
		Symbol:          canonicalFromWire(native.InstID),
		ID:              pi64(native.TradeID),
		OrderID:         pi64(native.OrdID),
		OrderListID:     -1,
		Price:           orZero(native.FillPx),
		Qty:             orZero(native.FillSz),
		QuoteQty:        mulStrings(orZero(native.FillPx), orZero(native.FillSz)),
		Commission:      commission,
		CommissionAsset: strings.ToUpper(native.FeeCcy),
		Time:            pi64(native.Ts),
		IsBuyer:         native.Side == "buy",
		IsMaker:         native.ExecType == "M",
		IsBestMatch:     true,
	}
}

// bookRow is one depth level: [px, sz, liquidated, orders]; only the first
// two fields matter.
type bookRow []string

func toLevels(rows []bookRow) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, schema.PriceLevel{row[0], row[1]})
	}
	return out
}
