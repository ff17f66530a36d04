package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Instruments bundles the gateway's metric instruments. A nil *Instruments is
// safe to record against.
type Instruments struct {
	framesDecoded  metric.Int64Counter
	queueDrops     metric.Int64Counter
	reconnects     metric.Int64Counter
	rateLimitTrips metric.Int64Counter
	restDuration   metric.Float64Histogram
}

// NewInstruments registers the gateway instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	framesDecoded, err := meter.Int64Counter("stream.frames.decoded",
		metric.WithDescription("Decoded websocket frames routed onto the bus"),
		metric.WithUnit("{frame}"))
	if err != nil {
		return nil, fmt.Errorf("frames counter: %w", err)
	}
	queueDrops, err := meter.Int64Counter("bus.queue.drops",
		metric.WithDescription("Subscription teardowns caused by queue overflow"),
		metric.WithUnit("{drop}"))
	if err != nil {
		return nil, fmt.Errorf("drops counter: %w", err)
	}
	reconnects, err := meter.Int64Counter("stream.reconnects",
		metric.WithDescription("Websocket reconnect attempts"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, fmt.Errorf("reconnects counter: %w", err)
	}
	rateLimitTrips, err := meter.Int64Counter("rest.ratelimit.trips",
		metric.WithDescription("429 responses that tripped the rate limit latch"),
		metric.WithUnit("{trip}"))
	if err != nil {
		return nil, fmt.Errorf("trips counter: %w", err)
	}
	restDuration, err := meter.Float64Histogram("rest.request.duration",
		metric.WithDescription("Venue REST round trip duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}
	return &Instruments{
		framesDecoded:  framesDecoded,
		queueDrops:     queueDrops,
		reconnects:     reconnects,
		rateLimitTrips: rateLimitTrips,
		restDuration:   restDuration,
	}, nil
}

// FrameDecoded counts one decoded stream frame.
func (i *Instruments) FrameDecoded(ctx context.Context, venue, eventType, symbol string) {
	if i == nil {
		return
	}
	i.framesDecoded.Add(ctx, 1, metric.WithAttributes(
		StreamAttributes(Environment(), venue, eventType, symbol)...))
}

// QueueDrop counts one overflow teardown for a trade id.
func (i *Instruments) QueueDrop(ctx context.Context, venue, tradeID string) {
	if i == nil {
		return
	}
	i.queueDrops.Add(ctx, 1, metric.WithAttributes(
		DropAttributes(Environment(), venue, tradeID)...))
}

// Reconnect counts one websocket reconnect attempt.
func (i *Instruments) Reconnect(ctx context.Context, stream string) {
	if i == nil {
		return
	}
	i.reconnects.Add(ctx, 1, metric.WithAttributes(
		AttrEnvironment.String(Environment()), AttrStream.String(stream)))
}

// RateLimitTrip counts one latch trip.
func (i *Instruments) RateLimitTrip(ctx context.Context, venue string) {
	if i == nil {
		return
	}
	i.rateLimitTrips.Add(ctx, 1, metric.WithAttributes(
		AttrEnvironment.String(Environment()), AttrVenue.String(venue)))
}

// RESTDuration records one REST round trip in milliseconds.
func (i *Instruments) RESTDuration(ctx context.Context, venue, method, path string, millis float64) {
	if i == nil {
		return
	}
	i.restDuration.Record(ctx, millis, metric.WithAttributes(
		RequestAttributes(Environment(), venue, method, path)...))
}
