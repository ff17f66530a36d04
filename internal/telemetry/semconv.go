// Package telemetry attribute conventions, namespace.attribute_name style.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrVenue      = attribute.Key("venue")
	AttrSymbol     = attribute.Key("symbol")
	AttrStream     = attribute.Key("stream")
	AttrEventType  = attribute.Key("event.type")
	AttrTradeID    = attribute.Key("trade.id")
	AttrErrorCode  = attribute.Key("error.code")
	AttrHTTPMethod = attribute.Key("http.method")
	AttrPath       = attribute.Key("path")

	AttrEnvironment = attribute.Key("environment")
)

// Event type values carried on decoded stream frames.
const (
	EventTypeTicker     = "ticker"
	EventTypeKline      = "kline"
	EventTypeBook       = "book"
	EventTypeExecReport = "exec_report"
	EventTypeFunds      = "funds"
)

// StreamAttributes returns common attributes for stream event metrics.
func StreamAttributes(environment, venue, eventType, symbol string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrEventType.String(eventType),
		AttrSymbol.String(symbol),
	}
}

// RequestAttributes returns common attributes for REST request metrics.
func RequestAttributes(environment, venue, method, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrHTTPMethod.String(method),
		AttrPath.String(path),
	}
}

// ErrorAttributes returns attributes for error metrics.
func ErrorAttributes(environment, venue, code string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrErrorCode.String(code),
	}
}

// DropAttributes returns attributes for overflow teardown metrics.
func DropAttributes(environment, venue, tradeID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrTradeID.String(tradeID),
	}
}
