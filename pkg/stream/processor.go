package stream

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/vitalvas/gounwrap/pkg/log"
	"github.com/vitalvas/gounwrap/pkg/transport"
	"github.com/vitalvas/gounwrap/pkg/unwrap"
)

// Authenticator is the part of *unwrap.Authenticator the processor needs
type Authenticator interface {
	Authenticate(raw []byte) (unwrap.Result, error)
}

// Stats counts judgments made by a Processor
type Stats struct {
	Frames   uint64
	Accepted uint64
	Rejected map[unwrap.Kind]uint64
}

// Processor feeds frames from a transport through an authenticator and
// renders every result. A rejected frame never stops the stream.
type Processor struct {
	auth   Authenticator
	out    io.Writer
	logger log.Logger

	mu    sync.Mutex
	stats Stats
}

// NewProcessor creates a processor writing rendered results to out
func NewProcessor(auth Authenticator, out io.Writer, logger log.Logger) *Processor {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}
	return &Processor{
		auth:   auth,
		out:    out,
		logger: logger,
		stats: Stats{
			Rejected: make(map[unwrap.Kind]uint64),
		},
	}
}

// Run serves tr until it is exhausted or ctx is cancelled
func (p *Processor) Run(ctx context.Context, tr transport.Transport) error {
	p.logger.Infof("reading frames from %s", tr)

	if err := tr.Serve(ctx, p.Handle); err != nil {
		return fmt.Errorf("transport %s: %w", tr, err)
	}
	return nil
}

// Handle judges and renders one frame
func (p *Processor) Handle(data []byte) {
	res, err := p.auth.Authenticate(data)
	if err != nil {
		p.reject(err)
		return
	}

	p.mu.Lock()
	p.stats.Frames++
	p.stats.Accepted++
	p.mu.Unlock()

	p.logger.WithFields(log.Fields{"sender": res.SenderID, "counter": res.Counter}).Debugf("frame accepted")
	p.writef("From %d, received packet: %s\n", res.SenderID, hex.EncodeToString(res.Payload))
}

func (p *Processor) reject(err error) {
	rej, ok := unwrap.AsRejection(err)
	if !ok {
		p.logger.Errorf("unexpected authentication error: %v", err)
		return
	}

	p.mu.Lock()
	p.stats.Frames++
	p.stats.Rejected[rej.Kind]++
	p.mu.Unlock()

	fields := log.Fields{"kind": rej.Kind.String()}
	if rej.HasHeader {
		fields["sender"] = rej.SenderID
		fields["counter"] = rej.Counter
	}
	p.logger.WithFields(fields).Warnf("frame rejected: %s", rej.Reason)
	p.writef("Invalid packet error: %s\n", rej.Reason)
}

func (p *Processor) writef(format string, args ...interface{}) {
	if p.out == nil {
		return
	}
	if _, err := fmt.Fprintf(p.out, format, args...); err != nil {
		p.logger.Errorf("failed to write result: %v", err)
	}
}

// Stats returns a snapshot of the counters
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := Stats{
		Frames:   p.stats.Frames,
		Accepted: p.stats.Accepted,
		Rejected: make(map[unwrap.Kind]uint64, len(p.stats.Rejected)),
	}
	for k, v := range p.stats.Rejected {
		snapshot.Rejected[k] = v
	}
	return snapshot
}
