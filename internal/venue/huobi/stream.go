package huobi

import (
	"context"
	"strings"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/sign"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

// Private subscription topics. accounts.update#2 carries available and
// total balance on every change, trade.clearing#*#0 carries fills only.
const (
	topicAccounts = "accounts.update#2"
	topicClearing = "trade.clearing#*#0"
)

const reconnectHold = 120 * time.Second

// controlAction maps the venue's stream control codes onto the state
// machine. 10300 and 20051 ask for a fresh connection, 10301/10302/10305
// mean the key is no longer usable, 20060 demands a two minute hold first.
func controlAction(code int64) (stream.Action, bool) {
	switch code {
	case 10300, 20051:
		return stream.Action{Kind: stream.ActionReconnect}, true
	case 10301, 10302, 10305:
		return stream.Action{Kind: stream.ActionStop}, true
	case 20060:
		return stream.Action{Kind: stream.ActionReconnect, Delay: reconnectHold}, true
	default:
		return stream.Action{}, false
	}
}

type marketSub struct {
	channel string // canonical event key, e.g. btcusdt@depth5
	symbol  string
	kind    string // ticker, kline, depth
	tf      string // canonical interval for klines
}

type marketState struct {
	byTopic   map[string]*marketSub
	lastPrice map[string]string
}

func (a *Adapter) newMarketState(channels []string) *marketState {
	st := &marketState{
		byTopic:   make(map[string]*marketSub),
		lastPrice: make(map[string]string),
	}
	for _, channel := range channels {
		symbol, suffix := schema.SplitKey(channel)
		sub := &marketSub{channel: channel, symbol: strings.ToUpper(symbol)}
		switch {
		case suffix == schema.StreamMiniTicker:
			sub.kind = "ticker"
		case strings.HasPrefix(suffix, schema.StreamKline):
			sub.kind = "kline"
			sub.tf = strings.TrimPrefix(suffix, schema.StreamKline+"_")
		case suffix == schema.StreamDepth5:
			sub.kind = "depth"
		default:
			continue
		}
		st.byTopic[a.marketTopic(sub)] = sub
	}
	return st
}

func (a *Adapter) marketTopic(sub *marketSub) string {
	wire := a.wireFor(sub.symbol)
	switch sub.kind {
	case "ticker":
		return "market." + wire + ".ticker"
	case "kline":
		return "market." + wire + ".kline." + intervalTable[sub.tf]
	default:
		return "market." + wire + ".depth.step0"
	}
}

// NewMarketStream opens the public socket. Frames arrive gzip-compressed
// and the venue expects its numeric pings echoed as pongs on the same
// connection.
func (a *Adapter) NewMarketStream(ctx context.Context, channels []string, emit venue.Emit) (*stream.Manager, error) {
	st := a.newMarketState(channels)
	cfg := stream.Config{
		URL:        a.endpoints.WSPublic,
		Channels:   channels,
		Name:       "huobi-market",
		GzipBinary: true,
		Subscribe: func(ctx context.Context, conn *websocket.Conn, _ []string) error {
			for topic := range st.byTopic {
				if err := stream.WriteJSON(ctx, conn, map[string]any{"sub": topic}); err != nil {
					return err
				}
			}
			return nil
		},
		OnFrame: func(ctx context.Context, conn *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleMarketFrame(ctx, conn, st, data, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

type marketFrame struct {
	Ping    int64           `json:"ping"`
	Subbed  string          `json:"subbed"`
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	Code    int64           `json:"code"`
	Ch      string          `json:"ch"`
	Ts      int64           `json:"ts"`
	Tick    json.RawMessage `json:"tick"`
}

func (a *Adapter) handleMarketFrame(ctx context.Context, conn *websocket.Conn, st *marketState, data []byte, emit venue.Emit) (stream.Action, error) {
	var frame marketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch {
	case frame.Ping != 0:
		err := stream.WriteJSON(ctx, conn, map[string]int64{"pong": frame.Ping})
		return stream.Action{Kind: stream.ActionControl}, err
	case frame.Status == "error":
		if action, ok := controlAction(frame.Code); ok {
			return action, nil
		}
		return stream.Action{Kind: stream.ActionReconnect}, nil
	case frame.Ch == "" || frame.Tick == nil:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	sub, ok := st.byTopic[frame.Ch]
	if !ok {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	switch sub.kind {
	case "ticker":
		a.emitTicker(st, sub, frame, emit)
	case "kline":
		a.emitCandle(sub, frame, emit)
	case "depth":
		a.emitBook(sub, frame, emit)
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

type tickerTick struct {
	Open      json.Number `json:"open"`
	High      json.Number `json:"high"`
	Low       json.Number `json:"low"`
	Amount    json.Number `json:"amount"`
	Vol       json.Number `json:"vol"`
	LastPrice json.Number `json:"lastPrice"`
}

// emitTicker drops consecutive frames whose last price did not move.
func (a *Adapter) emitTicker(st *marketState, sub *marketSub, frame marketFrame, emit venue.Emit) {
	var tick tickerTick
	if err := json.Unmarshal(frame.Tick, &tick); err != nil {
		return
	}
	last := tick.LastPrice.String()
	if st.lastPrice[sub.channel] == last {
		return
	}
	st.lastPrice[sub.channel] = last
	emit(schema.MiniTicker{
		EventTime:   normalizeMillis(frame.Ts),
		Symbol:      sub.symbol,
		ClosePrice:  last,
		OpenPrice:   tick.Open.String(),
		HighPrice:   tick.High.String(),
		LowPrice:    tick.Low.String(),
		Volume:      tick.Amount.String(),
		QuoteVolume: tick.Vol.String(),
	})
}

func (a *Adapter) emitCandle(sub *marketSub, frame marketFrame, emit venue.Emit) {
	var tick nativeKline
	if err := json.Unmarshal(frame.Tick, &tick); err != nil {
		return
	}
	row := convertKline(tick, intervalTable[sub.tf])
	emit(schema.Candle{
		EventTime:   normalizeMillis(frame.Ts),
		Symbol:      sub.symbol,
		Interval:    sub.tf,
		StartTime:   row.OpenTime,
		CloseTime:   row.CloseTime,
		Open:        row.Open,
		High:        row.High,
		Low:         row.Low,
		Close:       row.Close,
		Volume:      row.Volume,
		QuoteVolume: row.QuoteVolume,
		Trades:      row.Trades,
	})
}

func (a *Adapter) emitBook(sub *marketSub, frame marketFrame, emit venue.Emit) {
	var tick struct {
		Bids [][2]json.Number `json:"bids"`
		Asks [][2]json.Number `json:"asks"`
	}
	if err := json.Unmarshal(frame.Tick, &tick); err != nil {
		return
	}
	if len(tick.Bids) > 5 {
		tick.Bids = tick.Bids[:5]
	}
	if len(tick.Asks) > 5 {
		tick.Asks = tick.Asks[:5]
	}
	emit(schema.OrderBookTop{
		Symbol:       sub.symbol,
		LastUpdateID: normalizeMillis(frame.Ts),
		Bids:         toLevels(tick.Bids),
		Asks:         toLevels(tick.Asks),
	})
}

// NewUserStream opens the authenticated stream. The venue acknowledges the
// auth request on the same channel before subscriptions are accepted, so
// Authenticate reads frames until the ack arrives.
func (a *Adapter) NewUserStream(ctx context.Context, emit venue.Emit) (*stream.Manager, error) {
	cfg := stream.Config{
		URL:          a.endpoints.WSAuth,
		Channels:     []string{topicAccounts, topicClearing},
		Name:         "huobi-user",
		Authenticate: a.authenticate,
		Subscribe: func(ctx context.Context, conn *websocket.Conn, channels []string) error {
			for _, channel := range channels {
				if err := stream.WriteJSON(ctx, conn, map[string]any{
					"action": "sub", "ch": channel,
				}); err != nil {
					return err
				}
			}
			return nil
		},
		OnFrame: func(ctx context.Context, conn *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleUserFrame(ctx, conn, data, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

type userFrame struct {
	Action string          `json:"action"`
	Ch     string          `json:"ch"`
	Code   int64           `json:"code"`
	Data   json.RawMessage `json:"data"`
}

func (a *Adapter) authenticate(ctx context.Context, conn *websocket.Conn) error {
	ts := a.clock().UTC().Format(timestampLayout)
	if err := stream.WriteJSON(ctx, conn, map[string]any{
		"action": "req",
		"ch":     "auth",
		"params": map[string]any{
			"authType":         "api",
			"accessKey":        a.apiKey,
			"signatureMethod":  signatureMethod,
			"signatureVersion": "2.1",
			"timestamp":        ts,
			"signature":        sign.Sign(schema.VenueHuobi, a.apiSecret, []byte(ts+"websocket_login")),
		},
	}); err != nil {
		return err
	}

	ackCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ackCtx)
		if err != nil {
			return err
		}
		var frame userFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Action == "ping" {
			if err := a.replyPong(ackCtx, conn, frame.Data); err != nil {
				return err
			}
			continue
		}
		if frame.Action == "req" && frame.Ch == "auth" {
			if frame.Code != 200 {
				return errs.New(string(schema.VenueHuobi), errs.CodeAuth,
					errs.WithMessage("stream auth rejected"))
			}
			return nil
		}
	}
}

func (a *Adapter) replyPong(ctx context.Context, conn *websocket.Conn, data json.RawMessage) error {
	var ping struct {
		Ts int64 `json:"ts"`
	}
	_ = json.Unmarshal(data, &ping)
	return stream.WriteJSON(ctx, conn, map[string]any{
		"action": "pong", "data": map[string]int64{"ts": ping.Ts},
	})
}

func (a *Adapter) handleUserFrame(ctx context.Context, conn *websocket.Conn, data []byte, emit venue.Emit) (stream.Action, error) {
	var frame userFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch frame.Action {
	case "ping":
		err := a.replyPong(ctx, conn, frame.Data)
		return stream.Action{Kind: stream.ActionControl}, err
	case "sub", "req":
		if action, ok := controlAction(frame.Code); ok {
			return action, nil
		}
		if frame.Code != 0 && frame.Code != 200 {
			return stream.Action{Kind: stream.ActionReconnect}, nil
		}
		return stream.Action{Kind: stream.ActionControl}, nil
	case "push":
		return a.handleUserPush(frame, emit)
	default:
		if action, ok := controlAction(frame.Code); ok {
			return action, nil
		}
		return stream.Action{Kind: stream.ActionControl}, nil
	}
}

func (a *Adapter) handleUserPush(frame userFrame, emit venue.Emit) (stream.Action, error) {
	switch {
	case strings.HasPrefix(frame.Ch, "accounts.update"):
		a.emitAccountUpdate(frame.Data, emit)
	case strings.HasPrefix(frame.Ch, "trade.clearing"):
		a.emitClearing(frame.Data, emit)
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

type accountUpdate struct {
	Currency   string `json:"currency"`
	AccountID  int64  `json:"accountId"`
	Balance    string `json:"balance"`
	Available  string `json:"available"`
	ChangeTime int64  `json:"changeTime"`
}

// emitAccountUpdate forwards changes on the spot account only; the topic
// also carries margin and point accounts.
func (a *Adapter) emitAccountUpdate(data json.RawMessage, emit venue.Emit) {
	var update accountUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return
	}
	if update.AccountID != a.AccountID() || update.Currency == "" {
		return
	}
	total, err1 := decimal.NewFromString(firstNonEmpty(update.Balance))
	free, err2 := decimal.NewFromString(firstNonEmpty(update.Available))
	if err1 != nil || err2 != nil {
		return
	}
	locked := total.Sub(free)
	if locked.IsNegative() {
		locked = decimal.Zero
	}
	when := normalizeMillis(update.ChangeTime)
	if when == 0 {
		when = a.clock().UnixMilli()
	}
	emit(schema.OutboundAccountPosition{
		EventTime:  when,
		UpdateTime: when,
		Balances: []schema.Balance{{
			Asset:  strings.ToUpper(update.Currency),
			Free:   free.String(),
			Locked: locked.String(),
		}},
	})
}

type clearingPush struct {
	Symbol          string      `json:"symbol"`
	EventType       string      `json:"eventType"`
	OrderID         int64       `json:"orderId"`
	ClientOrderID   string      `json:"clientOrderId"`
	OrderSide       string      `json:"orderSide"`
	OrderType       string      `json:"orderType"`
	OrderStatus     string      `json:"orderStatus"`
	OrderSize       json.Number `json:"orderSize"`
	OrderValue      json.Number `json:"orderValue"`
	OrderPrice      json.Number `json:"orderPrice"`
	TradePrice      json.Number `json:"tradePrice"`
	TradeVolume     json.Number `json:"tradeVolume"`
	TradeID         int64       `json:"tradeId"`
	TradeTime       int64       `json:"tradeTime"`
	Aggressor       bool        `json:"aggressor"`
	TransactFee     json.Number `json:"transactFee"`
	FeeCurrency     string      `json:"feeCurrency"`
	OrderCreateTime int64       `json:"orderCreateTime"`
	AccountID       int64       `json:"accountId"`
}

// emitClearing maps one fill push onto the canonical execution report. The
// venue reports order size for limit orders and order value for market buys,
// and does not stream a running filled total, so the cumulative fields are
// only authoritative on the terminal frame.
func (a *Adapter) emitClearing(data json.RawMessage, emit venue.Emit) {
	var push clearingPush
	if err := json.Unmarshal(data, &push); err != nil {
		return
	}
	if push.TradeVolume.String() == "" {
		return
	}
	side := schema.SideSell
	if strings.Contains(push.OrderSide, "buy") {
		side = schema.SideBuy
	}
	orderType := schema.TypeLimit
	if strings.Contains(push.OrderType, "market") {
		orderType = schema.TypeMarket
	}
	status := schema.MapStatus(push.OrderStatus)
	if status == schema.StatusNew {
		status = schema.StatusPartiallyFilled
	}
	qty := firstNonEmpty(push.OrderSize.String(), push.OrderValue.String())
	price := firstNonEmpty(push.OrderPrice.String(), push.TradePrice.String())
	lastQty := push.TradeVolume.String()
	lastPrice := push.TradePrice.String()
	report := schema.ExecutionReport{
		EventTime:                normalizeMillis(push.TradeTime),
		Symbol:                   canonicalFromWire(push.Symbol),
		ClientOrderID:            push.ClientOrderID,
		Side:                     side,
		Type:                     orderType,
		TimeInForce:              schema.TIFGTC,
		Quantity:                 qty,
		Price:                    price,
		StopPrice:                "0",
		IcebergQty:               "0",
		OrderListID:              -1,
		ExecutionType:            "TRADE",
		Status:                   status,
		OrderID:                  push.OrderID,
		LastExecutedQuantity:     lastQty,
		LastExecutedPrice:        lastPrice,
		CumulativeFilledQuantity: "0",
		CommissionAmount:         firstNonEmpty(push.TransactFee.String()),
		CommissionAsset:          strings.ToUpper(push.FeeCurrency),
		TransactionTime:          normalizeMillis(push.TradeTime),
		TradeID:                  push.TradeID,
		IsMakerSide:              !push.Aggressor,
		OrderCreationTime:        normalizeMillis(push.OrderCreateTime),
		QuoteAssetTransacted:     "0",
		LastQuoteAssetTransacted: mulStrings(lastQty, lastPrice),
		QuoteOrderQuantity:       mulStrings(qty, price),
	}
	if status == schema.StatusFilled {
		report.CumulativeFilledQuantity = qty
		report.QuoteAssetTransacted = mulStrings(qty, price)
	}
	emit(report)
}
