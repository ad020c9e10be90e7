package transport

import "fmt"

// DefaultBaud is the MCU UART rate
const DefaultBaud = 115200

// OpenSerial creates a line transport over a serial port. The first line
// received is discarded since the port may be opened mid-line.
func OpenSerial(path string, baud int, opts ...Option) (*LineTransport, error) {
	f, err := openSerial(path, baud)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	t := NewLineTransport("serial port "+path, f, opts...)
	t.closer = f
	t.skipFirst = true
	return t, nil
}
