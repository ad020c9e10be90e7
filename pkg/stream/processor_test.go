package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gounwrap/pkg/crypto"
	"github.com/vitalvas/gounwrap/pkg/frame"
	"github.com/vitalvas/gounwrap/pkg/log"
	"github.com/vitalvas/gounwrap/pkg/transport"
	"github.com/vitalvas/gounwrap/pkg/unwrap"
)

func newAuthenticator(t *testing.T) *unwrap.Authenticator {
	t.Helper()
	a, err := unwrap.New(crypto.ZeroKey(16), unwrap.WithPayloadLength(4))
	require.NoError(t, err)
	return a
}

func sealLine(t *testing.T, a *unwrap.Authenticator, sender uint8, counter uint32) string {
	t.Helper()
	raw, err := a.Seal(frame.Header{SenderID: sender, Counter: counter}, []byte{0xAA, 0xBB, 0xCC, 0xDD})
	require.NoError(t, err)
	return transport.FormatLine(raw)
}

func TestProcessorRun(t *testing.T) {
	a := newAuthenticator(t)

	capture := strings.Join([]string{
		"[MCU] hello",
		sealLine(t, a, 0, 1),
		sealLine(t, a, 0, 1),
		sealLine(t, a, 7, 2),
		"DF:HEX:0000",
		sealLine(t, a, 0, 2),
	}, "\n")

	var out bytes.Buffer
	p := NewProcessor(a, &out, nil)

	err := p.Run(context.Background(), transport.NewLineTransport("capture", strings.NewReader(capture)))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "From 0, received packet: aabbccdd", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Invalid packet error: counter 1 from sender 0"))
	assert.Equal(t, "Invalid packet error: sender 7 is not allowed", lines[2])
	assert.Contains(t, lines[3], "bad frame length")
	assert.Equal(t, "From 0, received packet: aabbccdd", lines[4])

	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.Frames)
	assert.Equal(t, uint64(2), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Rejected[unwrap.KindReplayDetected])
	assert.Equal(t, uint64(1), stats.Rejected[unwrap.KindSenderNotAllowed])
	assert.Equal(t, uint64(1), stats.Rejected[unwrap.KindMalformed])
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate([]byte) (unwrap.Result, error) {
	return unwrap.Result{}, errors.New("boom")
}

func TestProcessorUnexpectedError(t *testing.T) {
	var out bytes.Buffer
	p := NewProcessor(failingAuthenticator{}, &out, nil)

	p.Handle([]byte{1})

	assert.Empty(t, out.String())
	assert.Zero(t, p.Stats().Frames)
}

type errTransport struct{}

func (errTransport) Serve(context.Context, transport.Handler) error { return errors.New("read failed") }
func (errTransport) Close() error { return nil }
func (errTransport) String() string { return "broken" }

func TestProcessorTransportError(t *testing.T) {
	p := NewProcessor(newAuthenticator(t), nil, nil)

	err := p.Run(context.Background(), errTransport{})
	assert.ErrorContains(t, err, "transport broken: read failed")
}

func TestProcessorNilOutput(t *testing.T) {
	a := newAuthenticator(t)
	p := NewProcessor(a, nil, nil)

	raw, err := a.Seal(frame.Header{SenderID: 0, Counter: 1}, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		p.Handle(raw)
	})
	assert.Equal(t, uint64(1), p.Stats().Accepted)
}

func TestProcessorRejectionLogFields(t *testing.T) {
	a := newAuthenticator(t)

	var logs bytes.Buffer
	logger := log.NewLoggerWithLevel("warn")
	logger.SetOutput(&logs)
	require.NoError(t, logger.SetFormat("json"))

	p := NewProcessor(a, nil, logger)

	raw, err := a.Seal(frame.Header{SenderID: 7, Counter: 3}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	p.Handle(raw)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "SenderNotAllowed", entry["kind"])
	assert.Equal(t, float64(7), entry["sender"])
	assert.Equal(t, float64(3), entry["counter"])
	assert.Equal(t, "frame rejected: sender 7 is not allowed", entry["msg"])

	logs.Reset()
	p.Handle([]byte{1, 2})

	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "Malformed", entry["kind"])
	assert.NotContains(t, logs.String(), `"sender"`)
}
