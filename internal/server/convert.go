package server

import (
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/rpcapi"
)

func orderOut(o schema.Order) *rpcapi.Order {
	return &rpcapi.Order{
		Symbol:              o.Symbol,
		OrderID:             o.OrderID,
		OrderListID:         o.OrderListID,
		ClientOrderID:       o.ClientOrderID,
		Price:               o.Price,
		OrigQty:             o.OrigQty,
		ExecutedQty:         o.ExecutedQty,
		CummulativeQuoteQty: o.CummulativeQuoteQty,
		Status:              string(o.Status),
		TimeInForce:         string(o.TimeInForce),
		Type:                string(o.Type),
		Side:                string(o.Side),
		StopPrice:           o.StopPrice,
		IcebergQty:          o.IcebergQty,
		Time:                o.Time,
		UpdateTime:          o.UpdateTime,
		IsWorking:           o.IsWorking,
		OrigQuoteOrderQty:   o.OrigQuoteOrderQty,
	}
}

func ordersOut(in []schema.Order) []rpcapi.Order {
	out := make([]rpcapi.Order, 0, len(in))
	for _, o := range in {
		out = append(out, *orderOut(o))
	}
	return out
}

func tradesOut(in []schema.Trade) []rpcapi.Trade {
	out := make([]rpcapi.Trade, 0, len(in))
	for _, t := range in {
		out = append(out, rpcapi.Trade{
			Symbol:          t.Symbol,
			ID:              t.ID,
			OrderID:         t.OrderID,
			OrderListID:     t.OrderListID,
			Price:           t.Price,
			Qty:             t.Qty,
			QuoteQty:        t.QuoteQty,
			Commission:      t.Commission,
			CommissionAsset: t.CommissionAsset,
			Time:            t.Time,
			IsBuyer:         t.IsBuyer,
			IsMaker:         t.IsMaker,
			IsBestMatch:     t.IsBestMatch,
		})
	}
	return out
}

func balancesOut(in []schema.Balance) []rpcapi.Balance {
	out := make([]rpcapi.Balance, 0, len(in))
	for _, b := range in {
		out = append(out, rpcapi.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked})
	}
	return out
}

func levelsOut(in []schema.PriceLevel) [][2]string {
	out := make([][2]string, 0, len(in))
	for _, l := range in {
		out = append(out, [2]string{l.Price(), l.Qty()})
	}
	return out
}

func symbolInfoOut(info schema.SymbolInfo) *rpcapi.SymbolInfo {
	types := make([]string, 0, len(info.OrderTypes))
	for _, t := range info.OrderTypes {
		types = append(types, string(t))
	}
	return &rpcapi.SymbolInfo{
		Symbol:             info.Symbol,
		Status:             info.Status,
		BaseAsset:          info.BaseAsset,
		BaseAssetPrecision: info.BaseAssetPrecision,
		QuoteAsset:         info.QuoteAsset,
		QuotePrecision:     info.QuotePrecision,
		OrderTypes:         types,
		IcebergAllowed:     info.IcebergAllowed,
		OcoAllowed:         info.OcoAllowed,
		PriceFilter: rpcapi.PriceFilter{
			MinPrice: info.Filters.Price.MinPrice,
			MaxPrice: info.Filters.Price.MaxPrice,
			TickSize: info.Filters.Price.TickSize,
		},
		LotSize: rpcapi.LotSizeFilter{
			MinQty:   info.Filters.LotSize.MinQty,
			MaxQty:   info.Filters.LotSize.MaxQty,
			StepSize: info.Filters.LotSize.StepSize,
		},
		MinNotional: rpcapi.MinNotionalFilter{
			MinNotional:   info.Filters.MinNotional.MinNotional,
			ApplyToMarket: info.Filters.MinNotional.ApplyToMarket,
			AvgPriceMins:  info.Filters.MinNotional.AvgPriceMins,
		},
		Permissions: info.Permissions,
	}
}

func klineOut(k schema.Kline) rpcapi.Kline {
	return rpcapi.Kline{
		k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume,
		k.CloseTime, k.QuoteVolume, k.Trades, k.TakerBuyBase, k.TakerBuyQuote, "0",
	}
}

func candleOut(c schema.Candle) *rpcapi.CandleFrame {
	return &rpcapi.CandleFrame{
		EventTime:   c.EventTime,
		Symbol:      c.Symbol,
		Interval:    c.Interval,
		StartTime:   c.StartTime,
		CloseTime:   c.CloseTime,
		Open:        c.Open,
		High:        c.High,
		Low:         c.Low,
		Close:       c.Close,
		Volume:      c.Volume,
		QuoteVolume: c.QuoteVolume,
		Trades:      c.Trades,
		Closed:      c.Closed,
	}
}

func tickerOut(t schema.MiniTicker) *rpcapi.TickerFrame {
	return &rpcapi.TickerFrame{
		EventTime:   t.EventTime,
		Symbol:      t.Symbol,
		ClosePrice:  t.ClosePrice,
		OpenPrice:   t.OpenPrice,
		HighPrice:   t.HighPrice,
		LowPrice:    t.LowPrice,
		Volume:      t.Volume,
		QuoteVolume: t.QuoteVolume,
	}
}

func bookOut(b schema.OrderBookTop) *rpcapi.OrderBookFrame {
	return &rpcapi.OrderBookFrame{
		Symbol:       b.Symbol,
		LastUpdateID: b.LastUpdateID,
		Bids:         levelsOut(b.Bids),
		Asks:         levelsOut(b.Asks),
	}
}

func reportOut(r schema.ExecutionReport) *rpcapi.OrderUpdateFrame {
	return &rpcapi.OrderUpdateFrame{
		EventTime:                r.EventTime,
		Symbol:                   r.Symbol,
		ClientOrderID:            r.ClientOrderID,
		Side:                     string(r.Side),
		Type:                     string(r.Type),
		TimeInForce:              string(r.TimeInForce),
		Quantity:                 r.Quantity,
		Price:                    r.Price,
		StopPrice:                r.StopPrice,
		IcebergQty:               r.IcebergQty,
		OrderListID:              r.OrderListID,
		OrigClientOrderID:        r.OrigClientOrderID,
		ExecutionType:            r.ExecutionType,
		Status:                   string(r.Status),
		RejectReason:             r.RejectReason,
		OrderID:                  r.OrderID,
		LastExecutedQuantity:     r.LastExecutedQuantity,
		CumulativeFilledQuantity: r.CumulativeFilledQuantity,
		LastExecutedPrice:        r.LastExecutedPrice,
		CommissionAmount:         r.CommissionAmount,
		CommissionAsset:          r.CommissionAsset,
		TransactionTime:          r.TransactionTime,
		TradeID:                  r.TradeID,
		InOrderBook:              r.InOrderBook,
		IsMakerSide:              r.IsMakerSide,
		OrderCreationTime:        r.OrderCreationTime,
		QuoteAssetTransacted:     r.QuoteAssetTransacted,
		LastQuoteAssetTransacted: r.LastQuoteAssetTransacted,
		QuoteOrderQuantity:       r.QuoteOrderQuantity,
	}
}
