package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LineTransport reads captured lines (file, stdin or a serial port) and
// delivers the frames found on LinePrefix lines.
type LineTransport struct {
	name      string
	r         io.Reader
	closer    io.Closer
	skipFirst bool
	settings

	mu     sync.Mutex
	closed bool
}

// NewLineTransport creates a line transport over r. name is used in messages.
func NewLineTransport(name string, r io.Reader, opts ...Option) *LineTransport {
	return &LineTransport{
		name:     name,
		r:        r,
		settings: newSettings(opts),
	}
}

// OpenFile creates a line transport over a capture file
func OpenFile(path string, opts ...Option) (*LineTransport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}

	t := NewLineTransport(path, f, opts...)
	t.closer = f
	return t, nil
}

// Serve implements Transport.Serve. Lines with bad hex are logged and skipped.
// Serve returns on cancel even when the reader has no closer, leaving the
// scanning goroutine parked in Read until the reader yields.
func (t *LineTransport) Serve(ctx context.Context, handler Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = t.Close()
	})
	defer stop()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go t.scan(lines, scanErr, done)

	first := true
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-scanErr:
			if err != nil {
				if ctx.Err() != nil || t.isClosed() {
					return nil
				}
				return fmt.Errorf("failed to read %s: %w", t.name, err)
			}
			return nil

		case raw := <-lines:
			if first && t.skipFirst {
				// the first line may start mid-frame
				first = false
				continue
			}
			first = false

			line := strings.TrimSpace(raw)
			t.echoLine(line)

			data, ok, err := ParseLine(line)
			if err != nil {
				t.logger.Warnf("%s: skipping line: %v", t.name, err)
				continue
			}
			if !ok {
				continue
			}

			handler(data)
		}
	}
}

// scan feeds lines until EOF, a read error or done
func (t *LineTransport) scan(lines chan<- string, scanErr chan<- error, done <-chan struct{}) {
	s := bufio.NewScanner(t.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for s.Scan() {
		select {
		case lines <- s.Text():
		case <-done:
			return
		}
	}
	scanErr <- s.Err()
}

// Close implements Transport.Close
func (t *LineTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

func (t *LineTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// String implements Transport.String
func (t *LineTransport) String() string {
	return t.name
}
