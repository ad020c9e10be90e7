package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vitalvas/gounwrap/pkg/unwrap"
)

// Metrics holds the Prometheus collectors for frame authentication.
// It implements unwrap.Observer.
type Metrics struct {
	FramesTotal     *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	AcceptedTotal   *prometheus.CounterVec
	LastCounter     *prometheus.GaugeVec
	PayloadBytes    prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "unwrap_frames_total",
			Help: "Total number of frames judged, by result",
		}, []string{"result"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "unwrap_rejections_total",
			Help: "Total number of rejected frames, by reason",
		}, []string{"reason"}),
		AcceptedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "unwrap_accepted_frames_total",
			Help: "Total number of accepted frames, by sender",
		}, []string{"sender"}),
		LastCounter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "unwrap_last_counter",
			Help: "Last accepted counter value, by sender",
		}, []string{"sender"}),
		PayloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "unwrap_payload_bytes_total",
			Help: "Total number of payload bytes accepted",
		}),
	}

	// one series per reason, present before the first rejection
	for _, kind := range unwrap.Kinds() {
		m.RejectionsTotal.WithLabelValues(kind.String())
	}

	return m
}

// Accepted implements unwrap.Observer
func (m *Metrics) Accepted(res unwrap.Result) {
	sender := strconv.Itoa(int(res.SenderID))

	m.FramesTotal.WithLabelValues("accepted").Inc()
	m.AcceptedTotal.WithLabelValues(sender).Inc()
	m.LastCounter.WithLabelValues(sender).Set(float64(res.Counter))
	m.PayloadBytes.Add(float64(len(res.Payload)))
}

// Rejected implements unwrap.Observer
func (m *Metrics) Rejected(rej *unwrap.Rejection) {
	m.FramesTotal.WithLabelValues("rejected").Inc()
	m.RejectionsTotal.WithLabelValues(rej.Kind.String()).Inc()
}
