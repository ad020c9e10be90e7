package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// DefaultZMQAddress is where the GNU Radio ZMQ PUB sink publishes frames
const DefaultZMQAddress = "tcp://127.0.0.1:10000"

// ZMQTransport subscribes to every message of a ZeroMQ publisher and
// delivers each message frame as one raw frame, in arrival order.
type ZMQTransport struct {
	addr   string
	socket zmq4.Socket
	cancel context.CancelFunc
	settings

	mu     sync.RWMutex
	closed bool
}

// DialZMQ connects a SUB socket to the publisher at addr
func DialZMQ(ctx context.Context, addr string, opts ...Option) (*ZMQTransport, error) {
	sockCtx, cancel := context.WithCancel(ctx)

	socket := zmq4.NewSub(sockCtx)
	if err := socket.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		cancel()
		_ = socket.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	if err := socket.Dial(addr); err != nil {
		cancel()
		_ = socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return &ZMQTransport{
		addr:     addr,
		socket:   socket,
		cancel:   cancel,
		settings: newSettings(opts),
	}, nil
}

// Serve implements Transport.Serve for ZeroMQ. Each frame is echoed as a
// LinePrefix line before it is handed over.
func (t *ZMQTransport) Serve(ctx context.Context, handler Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = t.Close()
	})
	defer stop()

	for {
		msg, err := t.socket.Recv()
		if err != nil {
			if ctx.Err() != nil || t.isClosed() {
				return nil
			}
			return fmt.Errorf("failed to receive from %s: %w", t.addr, err)
		}

		for _, part := range msg.Frames {
			data := make([]byte, len(part))
			copy(data, part)

			t.echoLine(FormatLine(data))
			handler(data)
		}
	}
}

func (t *ZMQTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Close implements Transport.Close.
func (t *ZMQTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	return t.socket.Close()
}

// String implements Transport.String
func (t *ZMQTransport) String() string {
	return t.addr
}
