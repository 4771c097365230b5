package realtime

import (
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/notify"
	"github.com/motorlot/realtime-go/transport"
)

type options struct {
	log           *zap.Logger
	dialer        transport.Dialer
	meterProvider metric.MeterProvider
	store         notify.Store
	pusher        notify.Pusher
	email         notify.EmailSender
	sms           notify.SMSSender
}

func defaultOptions() options {
	return options{log: zap.NewNop()}
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the structured logger used across the client.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithDialer overrides the transport, mainly for tests and embedded
// brokers.
func WithDialer(dialer transport.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithMeterProvider wires the OpenTelemetry instruments to a provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = provider }
}

// WithNotificationStore wires the persisted-record channel and feed.
func WithNotificationStore(store notify.Store) Option {
	return func(o *options) { o.store = store }
}

// WithPusher wires the device push channel.
func WithPusher(pusher notify.Pusher) Option {
	return func(o *options) { o.pusher = pusher }
}

// WithEmailSender wires the email side channel.
func WithEmailSender(sender notify.EmailSender) Option {
	return func(o *options) { o.email = sender }
}

// WithSMSSender wires the SMS side channel.
func WithSMSSender(sender notify.SMSSender) Option {
	return func(o *options) { o.sms = sender }
}
