// Package telemetry exposes the client's OpenTelemetry instruments.
// Exporter wiring belongs to the embedding application; without a
// meter provider every instrument is a no-op.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/motorlot/realtime-go"

// Metrics holds the connection-level instruments.
type Metrics struct {
	reconnects  metric.Int64Counter
	framesIn    metric.Int64Counter
	framesOut   metric.Int64Counter
	outboxDrops metric.Int64Counter
	rpcTimeouts metric.Int64Counter
}

// New creates the instrument set on the given provider. A nil provider
// yields no-op instruments.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := new(Metrics)
	var err error
	if m.reconnects, err = meter.Int64Counter("realtime.reconnects",
		metric.WithDescription("Completed reconnections after a drop")); err != nil {
		return nil, fmt.Errorf("create reconnects counter: %w", err)
	}
	if m.framesIn, err = meter.Int64Counter("realtime.frames.in",
		metric.WithDescription("Inbound frames dispatched to the event bus")); err != nil {
		return nil, fmt.Errorf("create frames.in counter: %w", err)
	}
	if m.framesOut, err = meter.Int64Counter("realtime.frames.out",
		metric.WithDescription("Outbound frames written to the transport")); err != nil {
		return nil, fmt.Errorf("create frames.out counter: %w", err)
	}
	if m.outboxDrops, err = meter.Int64Counter("realtime.outbox.drops",
		metric.WithDescription("Deferred operations dropped at outbox capacity")); err != nil {
		return nil, fmt.Errorf("create outbox.drops counter: %w", err)
	}
	if m.rpcTimeouts, err = meter.Int64Counter("realtime.rpc.timeouts",
		metric.WithDescription("Correlated requests resolved by timeout")); err != nil {
		return nil, fmt.Errorf("create rpc.timeouts counter: %w", err)
	}
	return m, nil
}

// Reconnect records a completed reconnection.
func (m *Metrics) Reconnect(ctx context.Context) {
	if m != nil {
		m.reconnects.Add(ctx, 1)
	}
}

// FrameIn records an inbound frame.
func (m *Metrics) FrameIn(ctx context.Context) {
	if m != nil {
		m.framesIn.Add(ctx, 1)
	}
}

// FrameOut records an outbound frame.
func (m *Metrics) FrameOut(ctx context.Context) {
	if m != nil {
		m.framesOut.Add(ctx, 1)
	}
}

// OutboxDrop records a deferred operation dropped at capacity.
func (m *Metrics) OutboxDrop(ctx context.Context) {
	if m != nil {
		m.outboxDrops.Add(ctx, 1)
	}
}

// RPCTimeout records a correlated request resolved by timeout.
func (m *Metrics) RPCTimeout(ctx context.Context) {
	if m != nil {
		m.rpcTimeouts.Add(ctx, 1)
	}
}
