// Package transport defines the bidirectional message-framed transport
// the connection layer runs on, plus the production websocket
// implementation. The connection layer never touches framing directly;
// it dials connections and exchanges named frames.
package transport

import "context"

// Handshake carries the session identity presented when a connection
// opens. The token may be empty for guest sessions.
type Handshake struct {
	UserID string
	Token  string
}

// Frame is one named inbound message with its raw payload.
type Frame struct {
	Event string
	Data  []byte
}

// Conn is a single live connection. Implementations must deliver
// inbound frames in server-send order on the Frames channel and close
// Done exactly once when the connection dies for any reason.
type Conn interface {
	// Emit sends a fire-and-forget named frame.
	Emit(ctx context.Context, event string, payload any) error
	// EmitWithAck sends a named frame expecting a one-shot
	// acknowledgement; ack is invoked at most once with the raw reply.
	EmitWithAck(ctx context.Context, event string, payload any, ack func([]byte)) error
	// Frames yields inbound frames until the connection closes.
	Frames() <-chan Frame
	// Done is closed when the connection is no longer usable.
	Done() <-chan struct{}
	// Err reports why the connection closed, once Done is closed.
	Err() error
	// Close tears the connection down locally.
	Close(ctx context.Context) error
}

// Dialer opens connections. The reconnect policy above redials through
// the same Dialer after every drop.
type Dialer interface {
	Dial(ctx context.Context, hs Handshake) (Conn, error)
}
