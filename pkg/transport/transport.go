package transport

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/vitalvas/gounwrap/pkg/log"
)

// LinePrefix marks a captured line that carries a hex encoded frame
const LinePrefix = "DF:HEX:"

// Transport abstracts a source of raw frames.
type Transport interface {
	// Serve reads frames and calls handler for each one, in arrival order.
	// Blocks until the source is exhausted, ctx is cancelled or Close is called.
	Serve(ctx context.Context, handler Handler) error

	// Close stops the transport and releases resources.
	Close() error

	// String names the source for operator messages.
	String() string
}

// Handler is called for each received frame. data is owned by the handler.
type Handler func(data []byte)

// Option configures a transport.
type Option func(*settings)

type settings struct {
	echo   io.Writer
	logger log.Logger
}

func newSettings(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = log.NewDiscardLogger()
	}
	return s
}

// WithEcho copies every received line to w, as captured.
func WithEcho(w io.Writer) Option {
	return func(s *settings) {
		s.echo = w
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

func (s settings) echoLine(line string) {
	if s.echo == nil {
		return
	}
	if _, err := io.WriteString(s.echo, line+"\n"); err != nil {
		s.logger.Warnf("failed to echo line: %v", err)
	}
}

// ParseLine extracts the frame from a captured line. ok is false for lines
// without LinePrefix, which carry no frame.
func ParseLine(line string) (data []byte, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, LinePrefix) {
		return nil, false, nil
	}

	data, err = hex.DecodeString(line[len(LinePrefix):])
	if err != nil {
		return nil, false, fmt.Errorf("invalid hex frame: %w", err)
	}
	return data, true, nil
}

// FormatLine renders a frame as a captured line
func FormatLine(data []byte) string {
	return LinePrefix + hex.EncodeToString(data)
}
