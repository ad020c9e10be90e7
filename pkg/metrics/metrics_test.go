package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gounwrap/pkg/crypto"
	"github.com/vitalvas/gounwrap/pkg/frame"
	"github.com/vitalvas/gounwrap/pkg/unwrap"
)

func TestObserverInterface(t *testing.T) {
	var _ unwrap.Observer = New(prometheus.NewRegistry())
}

func TestReasonsPreinitialized(t *testing.T) {
	m := New(prometheus.NewRegistry())

	for _, kind := range unwrap.Kinds() {
		assert.Equal(t, float64(0), testutil.ToFloat64(m.RejectionsTotal.WithLabelValues(kind.String())))
	}
}

func TestMetricsWithAuthenticator(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	a, err := unwrap.New(crypto.ZeroKey(16),
		unwrap.WithPayloadLength(4),
		unwrap.WithAllowedSenders(0),
		unwrap.WithObserver(m),
	)
	require.NoError(t, err)

	raw, err := a.Seal(frame.Header{SenderID: 0, Counter: 9}, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = a.Authenticate(raw)
	require.NoError(t, err)
	_, err = a.Authenticate(raw)
	require.Error(t, err)
	_, err = a.Authenticate(raw[:1])
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesTotal.WithLabelValues("accepted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesTotal.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("ReplayDetected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("Malformed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AcceptedTotal.WithLabelValues("0")))
	assert.Equal(t, float64(9), testutil.ToFloat64(m.LastCounter.WithLabelValues("0")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.PayloadBytes))

	count, err := testutil.GatherAndCount(reg, "unwrap_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
