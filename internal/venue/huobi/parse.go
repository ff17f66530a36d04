package huobi

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
)

// envelope is the venue's REST wrapper. Account endpoints report
// status/err-code, market endpoints carry ch/ts and a tick or data payload.
type envelope struct {
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	ErrMsg  string          `json:"err-msg"`
	Ch      string          `json:"ch"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Tick    json.RawMessage `json:"tick"`
}

func (e envelope) err() error {
	if e.Status == "" || e.Status == "ok" {
		return nil
	}
	code := errs.CodeHTTP
	if strings.Contains(e.ErrCode, "frequen") || strings.Contains(e.ErrCode, "rate") {
		code = errs.CodeRateLimited
	}
	return errs.New(string(schema.VenueHuobi), code,
		errs.WithMessage("request rejected"),
		errs.WithRawCode(e.ErrCode),
		errs.WithRawMessage(e.ErrMsg))
}

// wireSymbol renders the venue form: t<BASE><QUOTE> when both assets are
// three characters or fewer, t<BASE>:<QUOTE> otherwise.
func wireSymbol(base, quote string) string {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	if len(base) <= 3 && len(quote) <= 3 {
		return "t" + base + quote
	}
	return "t" + base + ":" + quote
}

// canonicalFromWire folds the t-form back into the canonical symbol.
func canonicalFromWire(wire string) string {
	wire = strings.TrimPrefix(wire, "t")
	return strings.ToUpper(strings.ReplaceAll(wire, ":", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "0"
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
	ID            int64  `json:"id"`
	Symbol        string `json:"symbol"`
	ClientOrderID string `json:"client-order-id"`
	Price         string `json:"price"`
	Amount        string `json:"amount"`
	FilledAmount  string `json:"filled-amount"`
	FieldAmount   string `json:"field-amount"`
	FilledCash    string `json:"filled-cash-amount"`
	FieldCash     string `json:"field-cash-amount"`
	Type          string `json:"type"`
	State         string `json:"state"`
	CreatedAt     int64  `json:"created-at"`
	CanceledAt    int64  `json:"canceled-at"`
	FinishedAt    int64  `json:"finished-at"`
}

// convertOrder maps a native order onto the canonical shape. The venue
// reports executed amounts under two historical key spellings.
func convertOrder(native nativeOrder) schema.Order {
	executed := firstNonEmpty(native.FilledAmount, native.FieldAmount)
	cumQuote := firstNonEmpty(native.FilledCash, native.FieldCash)
	side := schema.SideSell
	if strings.Contains(native.Type, "buy") {
		side = schema.SideBuy
	}
	orderType := schema.TypeLimit
	if strings.Contains(native.Type, "market") {
		orderType = schema.TypeMarket
	}
	updateTime := native.CreatedAt
	if native.FinishedAt > 0 {
		updateTime = native.FinishedAt
	}
	if native.CanceledAt > 0 {
		updateTime = native.CanceledAt
	}
	status := schema.MapStatus(native.State)
	return schema.Order{
		Symbol:              canonicalFromWire(native.Symbol),
		OrderID:             native.ID,
		OrderListID:         -1,
		ClientOrderID:       native.ClientOrderID,
		Price:               firstNonEmpty(native.Price),
		OrigQty:             firstNonEmpty(native.Amount),
		ExecutedQty:         executed,
		CummulativeQuoteQty: cumQuote,
		Status:              status,
		TimeInForce:         schema.TIFGTC,
		Type:                orderType,
		Side:                side,
		StopPrice:           "0",
		IcebergQty:          "0",
		Time:                native.CreatedAt,
		UpdateTime:          updateTime,
		IsWorking:           status == schema.StatusNew || status == schema.StatusPartiallyFilled,
		OrigQuoteOrderQty:   mulStrings(firstNonEmpty(native.Amount), firstNonEmpty(native.Price)),
	}
}

type nativeTrade struct {
	Symbol       string `json:"symbol"`
	TradeID      int64  `json:"trade-id"`
	OrderID      int64  `json:"id"`
	Price        string `json:"price"`
	FilledAmount string `json:"filled-amount"`
	FilledFees   string `json:"filled-fees"`
	FeeCurrency  string `json:"fee-currency"`
	CreatedAt    int64  `json:"created-at"`
	Type         string `json:"type"`
	Role         string `json:"role"`
}

func convertTrade(native nativeTrade) schema.Trade {
	return schema.Trade{
		Symbol:          canonicalFromWire(native.Symbol),
		ID:              native.TradeID,
		OrderID:         native.OrderID,
		OrderListID:     -1,
		Price:           native.Price,
		Qty:             native.FilledAmount,
		QuoteQty:        mulStrings(native.Price, native.FilledAmount),
		Commission:      native.FilledFees,
		CommissionAsset: strings.ToUpper(native.FeeCurrency),
		Time:            native.CreatedAt,
		IsBuyer:         strings.Contains(native.Type, "buy"),
		IsMaker:         native.Role == "maker",
		IsBestMatch:     true,
	}
}

func toLevels(raw [][2]json.Number) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(raw))
	for _, level := range raw {
		out = append(out, schema.PriceLevel{level[0].String(), level[1].String()})
	}
	return out
}

// normalizeMillis lifts second-resolution stamps to milliseconds.
func normalizeMillis(ts int64) int64 {
	if ts > 0 && ts < 1_000_000_000_000 {
		return ts * 1000
	}
	return ts
}
