package okx

import (
	"context"
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/sign"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

const (
	appPingEvery = 15 * time.Second
	checksumDepth = 25
)

// wsBook mirrors one depth subscription keeping the venue's exact level
// strings, so the checksum is computed over the wire text.
type wsBook struct {
	bids   map[string]string // px -> sz
	asks   map[string]string
	seeded bool
}

func newWSBook() *wsBook {
	return &wsBook{bids: make(map[string]string), asks: make(map[string]string)}
}

func (b *wsBook) reset() {
	b.bids = make(map[string]string)
	b.asks = make(map[string]string)
	b.seeded = false
}

func (b *wsBook) apply(bids, asks []bookRow) {
	applySide(b.bids, bids)
	applySide(b.asks, asks)
}

func applySide(side map[string]string, rows []bookRow) {
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		if row[1] == "0" {
			delete(side, row[0])
			continue
		}
		side[row[0]] = row[1]
	}
}

func sortedLevels(side map[string]string, descending bool) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(side))
	for px, sz := range side {
		out = append(out, schema.PriceLevel{px, sz})
	}
	sort.Slice(out, func(i, j int) bool {
		pi, erri := decimal.NewFromString(out[i].Price())
		pj, errj := decimal.NewFromString(out[j].Price())
		if erri != nil || errj != nil {
			return out[i].Price() < out[j].Price()
		}
		if descending {
			return pi.GreaterThan(pj)
		}
		return pi.LessThan(pj)
	})
	return out
}

func (b *wsBook) top(n int) ([]schema.PriceLevel, []schema.PriceLevel) {
	bids := sortedLevels(b.bids, true)
	asks := sortedLevels(b.asks, false)
	if n > 0 && len(bids) > n {
		bids = bids[:n]
	}
	if n > 0 && len(asks) > n {
		asks = asks[:n]
	}
	return bids, asks
}

// checksum interleaves up to 25 levels per side as "px:sz" fields joined
// with ":" and returns the CRC32 the venue publishes alongside each frame.
func (b *wsBook) checksum() int32 {
	bids, asks := b.top(checksumDepth)
	fields := make([]string, 0, 2*(len(bids)+len(asks)))
	for i := 0; i < len(bids) || i < len(asks); i++ {
		if i < len(bids) {
			fields = append(fields, bids[i].Price(), bids[i].Qty())
		}
		if i < len(asks) {
			fields = append(fields, asks[i].Price(), asks[i].Qty())
		}
	}
	return int32(crc32.ChecksumIEEE([]byte(strings.Join(fields, ":"))))
}

type marketSub struct {
	channel string // canonical event key, e.g. btcusdt@depth5
	symbol  string
	wire    string
	wsChan  string // tickers, candle<bar>, books
	tf      string
	book    *wsBook
}

type marketState struct {
	subs      map[string]*marketSub // "<wsChan>|<instId>" -> sub
	lastPrice map[string]string
}

func subKey(wsChan, instID string) string { return wsChan + "|" + instID }

func (a *Adapter) newMarketState(channels []string) *marketState {
	st := &marketState{
		subs:      make(map[string]*marketSub),
		lastPrice: make(map[string]string),
	}
	for _, channel := range channels {
		symbol, suffix := schema.SplitKey(channel)
		sub := &marketSub{
			channel: channel,
			symbol:  strings.ToUpper(symbol),
			wire:    a.wireFor(strings.ToUpper(symbol)),
		}
		switch {
		case suffix == schema.StreamMiniTicker:
			sub.wsChan = "tickers"
		case strings.HasPrefix(suffix, schema.StreamKline):
			sub.tf = strings.TrimPrefix(suffix, schema.StreamKline+"_")
			sub.wsChan = "candle" + intervalTable[sub.tf]
		case suffix == schema.StreamDepth5:
			sub.wsChan = "books"
			sub.book = newWSBook()
		default:
			continue
		}
		st.subs[subKey(sub.wsChan, sub.wire)] = sub
	}
	return st
}

// appPing writes the venue's text-level ping until the session ends.
func appPing(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(appPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, []byte("ping"))
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func subscribeOp(args []map[string]string) map[string]any {
	return map[string]any{"op": "subscribe", "args": args}
}

// NewMarketStream opens the public socket carrying every registered channel.
func (a *Adapter) NewMarketStream(ctx context.Context, channels []string, emit venue.Emit) (*stream.Manager, error) {
	st := a.newMarketState(channels)
	cfg := stream.Config{
		URL:       a.endpoints.WSPublic,
		Channels:  channels,
		Name:      "okx-market",
		Keepalive: appPing,
		Subscribe: func(ctx context.Context, conn *websocket.Conn, _ []string) error {
			args := make([]map[string]string, 0, len(st.subs))
			for _, sub := range st.subs {
				args = append(args, map[string]string{"channel": sub.wsChan, "instId": sub.wire})
			}
			return stream.WriteJSON(ctx, conn, subscribeOp(args))
		},
		OnFrame: func(_ context.Context, _ *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleMarketFrame(st, data, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

type wsFrame struct {
	Event  string `json:"event"`
	Code   string `json:"code"`
	Msg    string `json:"msg"`
	Action string `json:"action"`
	Arg    struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

func (a *Adapter) handleMarketFrame(st *marketState, data []byte, emit venue.Emit) (stream.Action, error) {
	if string(data) == "pong" {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch frame.Event {
	case "error":
		return stream.Action{Kind: stream.ActionReconnect}, nil
	case "subscribe":
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	sub, ok := st.subs[subKey(frame.Arg.Channel, frame.Arg.InstID)]
	if !ok || frame.Data == nil {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	switch {
	case sub.wsChan == "tickers":
		a.emitTicker(st, sub, frame.Data, emit)
	case strings.HasPrefix(sub.wsChan, "candle"):
		a.emitCandle(sub, frame.Data, emit)
	case sub.wsChan == "books":
		return a.applyBook(sub, frame, emit)
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

type tickerRow struct {
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	Ts        string `json:"ts"`
}

// emitTicker drops consecutive frames whose last price did not move.
func (a *Adapter) emitTicker(st *marketState, sub *marketSub, data json.RawMessage, emit venue.Emit) {
	var rows []tickerRow
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return
	}
	row := rows[len(rows)-1]
	if st.lastPrice[sub.channel] == row.Last {
		return
	}
	st.lastPrice[sub.channel] = row.Last
	emit(schema.MiniTicker{
		EventTime:   pi64(row.Ts),
		Symbol:      sub.symbol,
		ClosePrice:  row.Last,
		OpenPrice:   row.Open24h,
		HighPrice:   row.High24h,
		LowPrice:    row.Low24h,
		Volume:      row.Vol24h,
		QuoteVolume: row.VolCcy24h,
	})
}

// Candle rows are [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func (a *Adapter) emitCandle(sub *marketSub, data json.RawMessage, emit venue.Emit) {
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		start := pi64(row[0])
		candle := schema.Candle{
			EventTime: a.clock().UnixMilli(),
			Symbol:    sub.symbol,
			Interval:  sub.tf,
			StartTime: start,
			CloseTime: start + intervalMillis[sub.tf] - 1,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		}
		if len(row) > 6 {
			candle.QuoteVolume = row[6]
		}
		if len(row) > 8 {
			candle.Closed = row[8] == "1"
		}
		emit(candle)
	}
}

type bookData struct {
	Bids     []bookRow `json:"bids"`
	Asks     []bookRow `json:"asks"`
	Ts       string    `json:"ts"`
	Checksum int64     `json:"checksum"`
}

// applyBook seeds the mirror on a partial frame and patches it on updates,
// verifying the venue checksum each time. A mismatch means the mirror has
// silently diverged, so the connection is torn down without emitting.
func (a *Adapter) applyBook(sub *marketSub, frame wsFrame, emit venue.Emit) (stream.Action, error) {
	var rows []bookData
	if err := json.Unmarshal(frame.Data, &rows); err != nil || len(rows) == 0 {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	row := rows[0]
	switch frame.Action {
	case "partial":
		sub.book.reset()
		sub.book.apply(row.Bids, row.Asks)
		sub.book.seeded = true
	case "update":
		if !sub.book.seeded {
			return stream.Action{Kind: stream.ActionControl}, nil
		}
		sub.book.apply(row.Bids, row.Asks)
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	if sub.book.checksum() != int32(row.Checksum) {
		a.log.Warn("depth checksum mismatch, resyncing",
			observability.String("symbol", sub.symbol))
		sub.book.reset()
		return stream.Action{Kind: stream.ActionReconnect}, nil
	}
	bids, asks := sub.book.top(5)
	emit(schema.OrderBookTop{
		Symbol:       sub.symbol,
		LastUpdateID: pi64(row.Ts),
		Bids:         bids,
		Asks:         asks,
	})
	return stream.Action{Kind: stream.ActionData}, nil
}

// NewUserStream opens the authenticated stream carrying order and account
// frames.
func (a *Adapter) NewUserStream(ctx context.Context, emit venue.Emit) (*stream.Manager, error) {
	cfg := stream.Config{
		URL:          a.endpoints.WSAuth,
		Channels:     []string{"orders", "account"},
		Name:         "okx-user",
		Keepalive:    appPing,
		Authenticate: a.authenticate,
		Subscribe: func(ctx context.Context, conn *websocket.Conn, _ []string) error {
			return stream.WriteJSON(ctx, conn, subscribeOp([]map[string]string{
				{"channel": "orders", "instType": "SPOT"},
				{"channel": "account"},
			}))
		},
		OnFrame: func(_ context.Context, _ *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleUserFrame(data, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

func (a *Adapter) authenticate(ctx context.Context, conn *websocket.Conn) error {
	ts := strconv.FormatInt(a.clock().Unix(), 10)
	if err := stream.WriteJSON(ctx, conn, map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     a.apiKey,
			"passphrase": a.passphrase,
			"timestamp":  ts,
			"sign":       sign.Sign(schema.VenueOKX, a.apiSecret, []byte(ts+"GET"+"/users/self/verify")),
		}},
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
		if string(data) == "pong" {
			continue
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case "login":
			return nil
		case "error":
			return errs.New(string(schema.VenueOKX), errs.CodeAuth,
				errs.WithMessage("stream auth rejected"),
				errs.WithRawCode(frame.Code),
				errs.WithRawMessage(frame.Msg))
		}
	}
}

func (a *Adapter) handleUserFrame(data []byte, emit venue.Emit) (stream.Action, error) {
	if string(data) == "pong" {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch frame.Event {
	case "error":
		return stream.Action{Kind: stream.ActionReconnect}, nil
	case "subscribe", "login":
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	switch frame.Arg.Channel {
	case "orders":
		a.emitOrders(frame.Data, emit)
	case "account":
		a.emitAccount(frame.Data, emit)
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

type orderPush struct {
	nativeOrder
	FillTime string `json:"fillTime"`
	FillFee  string `json:"fillFee"`
	FillFeeCcy string `json:"fillFeeCcy"`
}

// emitOrders maps order-channel rows onto execution reports. Rows with a
// fill are TRADE executions; cancels and placements report without one.
func (a *Adapter) emitOrders(data json.RawMessage, emit venue.Emit) {
	var rows []orderPush
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	for _, row := range rows {
		order := convertOrder(row.nativeOrder)
		report := schema.ExecutionReport{
			EventTime:                pi64(row.UTime),
			Symbol:                   order.Symbol,
			ClientOrderID:            order.ClientOrderID,
			Side:                     order.Side,
			Type:                     order.Type,
			TimeInForce:              order.TimeInForce,
			Quantity:                 order.OrigQty,
			Price:                    order.Price,
			StopPrice:                "0",
			IcebergQty:               "0",
			OrderListID:              -1,
			Status:                   order.Status,
			OrderID:                  order.OrderID,
			LastExecutedQuantity:     orZero(row.FillSz),
			LastExecutedPrice:        orZero(row.FillPx),
			CumulativeFilledQuantity: order.ExecutedQty,
			CommissionAmount:         absString(row.FillFee),
			CommissionAsset:          strings.ToUpper(row.FillFeeCcy),
			TransactionTime:          pi64(row.UTime),
			TradeID:                  pi64(row.TradeID),
			OrderCreationTime:        order.Time,
			QuoteAssetTransacted:     order.CummulativeQuoteQty,
			LastQuoteAssetTransacted: mulStrings(orZero(row.FillSz), orZero(row.FillPx)),
			QuoteOrderQuantity:       order.OrigQuoteOrderQty,
		}
		switch {
		case row.FillSz != "" && row.FillSz != "0":
			report.ExecutionType = "TRADE"
		case order.Status == schema.StatusCanceled:
			report.ExecutionType = "CANCELED"
		default:
			report.ExecutionType = "NEW"
		}
		emit(report)
	}
}

func absString(s string) string {
	if s == "" {
		return "0"
	}
	if v, err := decimal.NewFromString(s); err == nil {
		return v.Abs().String()
	}
	return "0"
}

// emitAccount forwards trading-account balance pushes.
func (a *Adapter) emitAccount(data json.RawMessage, emit venue.Emit) {
	var rows []struct {
		UTime   string          `json:"uTime"`
		Details []balanceDetail `json:"details"`
	}
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return
	}
	row := rows[len(rows)-1]
	if len(row.Details) == 0 {
		return
	}
	balances := make([]schema.Balance, 0, len(row.Details))
	for _, detail := range row.Details {
		balances = append(balances, schema.Balance{
			Asset:  strings.ToUpper(detail.Ccy),
			Free:   orZero(detail.AvailBal),
			Locked: orZero(detail.FrozenBal),
		})
	}
	when := pi64(row.UTime)
	if when == 0 {
		when = a.clock().UnixMilli()
	}
	emit(schema.OutboundAccountPosition{EventTime: when, UpdateTime: when, Balances: balances})
}
