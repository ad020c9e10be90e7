package transport

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []byte
		wantOK  bool
		wantErr bool
	}{
		{"frame", "DF:HEX:00000001aabbccdd", []byte{0, 0, 0, 1, 0xaa, 0xbb, 0xcc, 0xdd}, true, false},
		{"surrounding space", "  DF:HEX:0102\r\n", []byte{1, 2}, true, false},
		{"empty frame", "DF:HEX:", []byte{}, true, false},
		{"log line", "[MCU] booting", nil, false, false},
		{"blank", "", nil, false, false},
		{"bad hex", "DF:HEX:zz", nil, false, true},
		{"odd hex", "DF:HEX:abc", nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ok, err := ParseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, data)
		})
	}
}

func TestFormatLine(t *testing.T) {
	line := FormatLine([]byte{0x00, 0xab})
	assert.Equal(t, "DF:HEX:00ab", line)

	data, ok, err := ParseLine(line)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x00, 0xab}, data)
}

func collect(t *testing.T, tr Transport) [][]byte {
	t.Helper()

	var frames [][]byte
	err := tr.Serve(context.Background(), func(data []byte) {
		frames = append(frames, data)
	})
	require.NoError(t, err)
	return frames
}

func TestLineTransport(t *testing.T) {
	input := strings.Join([]string{
		"[MCU] starting",
		"DF:HEX:0102",
		"DF:HEX:nothex",
		"",
		"DF:HEX:0304",
	}, "\n")

	var echo bytes.Buffer
	tr := NewLineTransport("stdin", strings.NewReader(input), WithEcho(&echo))

	frames := collect(t, tr)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}}, frames)
	assert.Equal(t, input+"\n", echo.String())
	assert.Equal(t, "stdin", tr.String())
	assert.NoError(t, tr.Close())
}

func TestLineTransportSkipFirst(t *testing.T) {
	tr := NewLineTransport("serial", strings.NewReader("HEX:0102\nDF:HEX:0304\n"))
	tr.skipFirst = true

	assert.Equal(t, [][]byte{{3, 4}}, collect(t, tr))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	require.NoError(t, os.WriteFile(path, []byte("DF:HEX:ff\nDF:HEX:ee\n"), 0o600))

	tr, err := OpenFile(path)
	require.NoError(t, err)

	assert.Equal(t, [][]byte{{0xff}, {0xee}}, collect(t, tr))
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLineTransportCancel(t *testing.T) {
	t.Run("reader without closer", func(t *testing.T) {
		pr, pw, err := os.Pipe()
		require.NoError(t, err)
		defer pw.Close()
		defer pr.Close()

		tr := NewLineTransport("stdin", pr)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- tr.Serve(ctx, func([]byte) {})
		}()

		_, err = pw.WriteString("DF:HEX:01\n")
		require.NoError(t, err)

		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Serve still blocked after cancel")
		}
	})

	t.Run("reader with closer", func(t *testing.T) {
		pr, pw := net.Pipe()
		defer pw.Close()

		tr := NewLineTransport("pipe", pr)
		tr.closer = pr

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- tr.Serve(ctx, func([]byte) {})
		}()

		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return after cancel")
		}
	})
}

func TestLineTransportDeliversAllLinesBeforeEOF(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, FormatLine([]byte{byte(i)}))
	}

	tr := NewLineTransport("capture", strings.NewReader(strings.Join(lines, "\n")))
	frames := collect(t, tr)

	require.Len(t, frames, 100)
	for i, f := range frames {
		assert.Equal(t, []byte{byte(i)}, f)
	}
}

func TestOpenSerialMissingPort(t *testing.T) {
	_, err := OpenSerial(filepath.Join(t.TempDir(), "ttyNONE"), DefaultBaud)
	assert.Error(t, err)
}

func TestUDPTransport(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	var echo safeBuffer
	tr := NewUDPTransport(conn, WithEcho(&echo))
	assert.Contains(t, tr.String(), "udp://127.0.0.1:")

	received := make(chan []byte, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tr.Serve(ctx, func(data []byte) {
			received <- data
		})
	}()

	client, err := net.Dial("udp", tr.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	for _, msg := range [][]byte{{1, 2, 3}, {4}, {5, 6}} {
		_, err := client.Write(msg)
		require.NoError(t, err)

		select {
		case got := <-received:
			assert.Equal(t, msg, got)
		case <-time.After(5 * time.Second):
			t.Fatal("datagram not delivered")
		}
	}

	assert.Equal(t, "DF:HEX:010203\nDF:HEX:04\nDF:HEX:0506\n", echo.String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.NoError(t, tr.Close())
}

func TestListenUDPBadAddress(t *testing.T) {
	_, err := ListenUDP("not-an-address")
	assert.Error(t, err)
}

func TestZMQTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := zmq4.NewPub(ctx)
	defer pub.Close()
	require.NoError(t, pub.Listen("tcp://127.0.0.1:0"))
	addr := "tcp://" + pub.Addr().String()

	var echo safeBuffer
	tr, err := DialZMQ(ctx, addr, WithEcho(&echo))
	require.NoError(t, err)
	assert.Equal(t, addr, tr.String())

	received := make(chan []byte, 16)
	done := make(chan error, 1)
	go func() {
		done <- tr.Serve(ctx, func(data []byte) {
			received <- data
		})
	}()

	// a subscription takes effect asynchronously, so publish a marker
	// until one arrives
	marker := []byte{0xff}
	deadline := time.After(5 * time.Second)
subscribed:
	for {
		require.NoError(t, pub.Send(zmq4.NewMsg(marker)))
		select {
		case <-received:
			break subscribed
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("subscription never became active")
		}
	}

	msgs := [][]byte{{1, 2, 3}, {4}, {5, 6}}
	for _, msg := range msgs {
		require.NoError(t, pub.Send(zmq4.NewMsg(msg)))
	}

	var got [][]byte
	for len(got) < len(msgs) {
		select {
		case data := <-received:
			if bytes.Equal(data, marker) {
				continue
			}
			got = append(got, data)
		case <-time.After(5 * time.Second):
			t.Fatal("message not delivered")
		}
	}
	assert.Equal(t, msgs, got)
	assert.Contains(t, echo.String(), "DF:HEX:010203\nDF:HEX:04\nDF:HEX:0506\n")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestDialZMQBadAddress(t *testing.T) {
	_, err := DialZMQ(context.Background(), "not-an-address")
	assert.Error(t, err)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
