package binance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

const listenKeyRenewal = 30 * time.Minute

// NewMarketStream multiplexes every market channel over one combined-stream
// socket.
func (a *Adapter) NewMarketStream(ctx context.Context, channels []string, emit venue.Emit) (*stream.Manager, error) {
	url := strings.TrimSuffix(a.endpoints.WSPublic, "/") + "/stream?streams=" + strings.Join(channels, "/")
	dedupe := newTickerDedupe()
	cfg := stream.Config{
		URL:  url,
		Name: "binance-market",
		OnFrame: func(_ context.Context, _ *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleMarketFrame(data, dedupe, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tickerDedupe struct {
	mu   sync.Mutex
	last map[string]string
}

func newTickerDedupe() *tickerDedupe {
	return &tickerDedupe{last: make(map[string]string)}
}

// changed reports whether lastPrice differs from the previously forwarded
// value for this stream, updating it when so.
func (d *tickerDedupe) changed(streamKey, lastPrice string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last[streamKey] == lastPrice {
		return false
	}
	d.last[streamKey] = lastPrice
	return true
}

type wsMiniTicker struct {
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

type wsKline struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime   int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Interval    string `json:"i"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		Trades      int64  `json:"n"`
		Closed      bool   `json:"x"`
		QuoteVolume string `json:"q"`
	} `json:"k"`
}

type wsDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func (a *Adapter) handleMarketFrame(data []byte, dedupe *tickerDedupe, emit venue.Emit) (stream.Action, error) {
	var frame combinedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	if frame.Stream == "" || len(frame.Data) == 0 {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	symbol, suffix := schema.SplitKey(frame.Stream)

	switch {
	case suffix == schema.StreamMiniTicker:
		var t wsMiniTicker
		if err := json.Unmarshal(frame.Data, &t); err != nil {
			return stream.Action{Kind: stream.ActionControl}, err
		}
		if !dedupe.changed(frame.Stream, t.Close) {
			return stream.Action{Kind: stream.ActionData}, nil
		}
		emit(schema.MiniTicker{
			EventTime: t.EventTime, Symbol: t.Symbol, ClosePrice: t.Close,
			OpenPrice: t.Open, HighPrice: t.High, LowPrice: t.Low,
			Volume: t.Volume, QuoteVolume: t.QuoteVolume,
		})
	case strings.HasPrefix(suffix, schema.StreamKline):
		var k wsKline
		if err := json.Unmarshal(frame.Data, &k); err != nil {
			return stream.Action{Kind: stream.ActionControl}, err
		}
		emit(schema.Candle{
			EventTime: k.EventTime, Symbol: k.Symbol, Interval: k.Kline.Interval,
			StartTime: k.Kline.StartTime, CloseTime: k.Kline.CloseTime,
			Open: k.Kline.Open, High: k.Kline.High, Low: k.Kline.Low, Close: k.Kline.Close,
			Volume: k.Kline.Volume, QuoteVolume: k.Kline.QuoteVolume,
			Trades: k.Kline.Trades, Closed: k.Kline.Closed,
		})
	case suffix == schema.StreamDepth5:
		var d wsDepth
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return stream.Action{Kind: stream.ActionControl}, err
		}
		emit(schema.OrderBookTop{
			Symbol:       strings.ToUpper(symbol),
			LastUpdateID: d.LastUpdateID,
			Bids:         toLevels(d.Bids),
			Asks:         toLevels(d.Asks),
		})
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

// NewUserStream opens the listen-key user stream. The key is created per
// connection attempt and renewed every 30 minutes; a renewal failure closes
// the socket so the reconnect path builds a fresh session.
func (a *Adapter) NewUserStream(ctx context.Context, emit venue.Emit) (*stream.Manager, error) {
	var keyMu sync.Mutex
	var currentKey string

	cfg := stream.Config{
		Name: "binance-user",
		ResolveURL: func(ctx context.Context) (string, error) {
			key, err := a.createListenKey(ctx)
			if err != nil {
				return "", err
			}
			keyMu.Lock()
			currentKey = key
			keyMu.Unlock()
			return strings.TrimSuffix(a.endpoints.WSPublic, "/") + "/ws/" + key, nil
		},
		OnFrame: func(_ context.Context, _ *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleUserFrame(data, emit)
		},
		Keepalive: func(ctx context.Context, conn *websocket.Conn) {
			ticker := time.NewTicker(listenKeyRenewal)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					keyMu.Lock()
					key := currentKey
					keyMu.Unlock()
					if key != "" {
						closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						if err := a.closeListenKey(closeCtx, key); err != nil {
							a.log.Debug("close listen key", observability.Err(err))
						}
						cancel()
					}
					return
				case <-ticker.C:
					keyMu.Lock()
					key := currentKey
					keyMu.Unlock()
					if err := a.keepAliveListenKey(ctx, key); err != nil {
						a.log.Warn("listen key renewal failed", observability.Err(err))
						_ = conn.Close(websocket.StatusInternalError, "listen key renewal failed")
						return
					}
				}
			}
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

type wsExecutionReport struct {
	EventTime         int64  `json:"E"`
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	Side              string `json:"S"`
	OrderType         string `json:"o"`
	TimeInForce       string `json:"f"`
	Quantity          string `json:"q"`
	Price             string `json:"p"`
	StopPrice         string `json:"P"`
	IcebergQty        string `json:"F"`
	OrderListID       int64  `json:"g"`
	OrigClientOrderID string `json:"C"`
	ExecutionType     string `json:"x"`
	Status            string `json:"X"`
	RejectReason      string `json:"r"`
	OrderID           int64  `json:"i"`
	LastQty           string `json:"l"`
	CumQty            string `json:"z"`
	LastPrice         string `json:"L"`
	Commission        string `json:"n"`
	CommissionAsset   string `json:"N"`
	TransactionTime   int64  `json:"T"`
	TradeID           int64  `json:"t"`
	InOrderBook       bool   `json:"w"`
	IsMakerSide       bool   `json:"m"`
	CreationTime      int64  `json:"O"`
	CumQuote          string `json:"Z"`
	LastQuote         string `json:"Y"`
	QuoteOrderQty     string `json:"Q"`
}

type wsAccountPosition struct {
	EventTime  int64 `json:"E"`
	UpdateTime int64 `json:"u"`
	Balances   []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

func (a *Adapter) handleUserFrame(data []byte, emit venue.Emit) (stream.Action, error) {
	var head struct {
		Event string `json:"e"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch head.Event {
	case "executionReport":
		var r wsExecutionReport
		if err := json.Unmarshal(data, &r); err != nil {
			return stream.Action{Kind: stream.ActionControl}, err
		}
		emit(schema.ExecutionReport{
			EventTime:                r.EventTime,
			Symbol:                   r.Symbol,
			ClientOrderID:            r.ClientOrderID,
			Side:                     schema.OrderSide(r.Side),
			Type:                     schema.OrderType(r.OrderType),
			TimeInForce:              schema.TimeInForce(r.TimeInForce),
			Quantity:                 r.Quantity,
			Price:                    r.Price,
			StopPrice:                r.StopPrice,
			IcebergQty:               r.IcebergQty,
			OrderListID:              r.OrderListID,
			OrigClientOrderID:        r.OrigClientOrderID,
			ExecutionType:            r.ExecutionType,
			Status:                   schema.OrderStatus(r.Status),
			RejectReason:             r.RejectReason,
			OrderID:                  r.OrderID,
			LastExecutedQuantity:     r.LastQty,
			CumulativeFilledQuantity: r.CumQty,
			LastExecutedPrice:        r.LastPrice,
			CommissionAmount:         r.Commission,
			CommissionAsset:          r.CommissionAsset,
			TransactionTime:          r.TransactionTime,
			TradeID:                  r.TradeID,
			InOrderBook:              r.InOrderBook,
			IsMakerSide:              r.IsMakerSide,
			OrderCreationTime:        r.CreationTime,
			QuoteAssetTransacted:     r.CumQuote,
			LastQuoteAssetTransacted: r.LastQuote,
			QuoteOrderQuantity:       r.QuoteOrderQty,
		})
	case "outboundAccountPosition":
		var p wsAccountPosition
		if err := json.Unmarshal(data, &p); err != nil {
			return stream.Action{Kind: stream.ActionControl}, err
		}
		balances := make([]schema.Balance, 0, len(p.Balances))
		for _, b := range p.Balances {
			balances = append(balances, schema.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked})
		}
		emit(schema.OutboundAccountPosition{
			EventTime: p.EventTime, UpdateTime: p.UpdateTime, Balances: balances,
		})
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	return stream.Action{Kind: stream.ActionData}, nil
}
