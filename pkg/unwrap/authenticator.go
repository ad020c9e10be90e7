package unwrap

import (
	"fmt"
	"sync"

	"github.com/vitalvas/gounwrap/pkg/crypto"
	"github.com/vitalvas/gounwrap/pkg/frame"
	"github.com/vitalvas/gounwrap/pkg/log"
	"github.com/vitalvas/gounwrap/pkg/policy"
	"github.com/vitalvas/gounwrap/pkg/replay"
)

// Result is an accepted frame
type Result struct {
	SenderID uint8
	Counter  uint32
	Payload  []byte
}

// Observer is notified after every judgment
type Observer interface {
	Accepted(res Result)
	Rejected(rej *Rejection)
}

// Authenticator judges raw frames: well-formed, authentic, from an allowed
// sender and not replayed. Authenticate is safe for concurrent use; calls
// are serialized so each one commits its counter before the next begins.
type Authenticator struct {
	mu       sync.Mutex
	layout   frame.Layout
	mac      *crypto.MAC
	authOn   bool
	policy   policy.SenderPolicy
	guard    *replay.Guard
	logger   log.Logger
	observer Observer
}

// New creates an authenticator for key. The key is copied.
func New(key crypto.Key, opts ...Option) (*Authenticator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	layout := frame.Layout{PayloadLength: o.payloadLength, TagLength: o.tagLength}
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	mac, err := crypto.New(o.algorithm, key, o.tagLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create MAC: %w", err)
	}

	if o.policy == nil {
		return nil, fmt.Errorf("sender policy is required")
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	guard := replay.NewGuard()
	if o.noReplay {
		guard = replay.Disabled()
		logger.Warn("replay protection disabled: repeated counters will be accepted")
	}
	if o.noAuth {
		logger.Warn("authentication disabled: tags are not verified")
	}

	logger.Debugf("authenticator ready: %s, %s, %s", layout, o.algorithm, key)

	return &Authenticator{
		layout:   layout,
		mac:      mac,
		authOn:   !o.noAuth,
		policy:   o.policy,
		guard:    guard,
		logger:   logger,
		observer: o.observer,
	}, nil
}

// Authenticate judges one raw frame. Rejections are returned as *Rejection
// and never change replay state.
func (a *Authenticator) Authenticate(raw []byte) (Result, error) {
	a.mu.Lock()
	res, rej := a.judge(raw)
	a.mu.Unlock()

	if rej != nil {
		a.logger.Debugf("frame rejected: %v", rej)
		if a.observer != nil {
			a.observer.Rejected(rej)
		}
		return Result{}, rej
	}

	if a.observer != nil {
		a.observer.Accepted(res)
	}
	return res, nil
}

// judge runs the checks in fixed precedence; the caller holds a.mu
func (a *Authenticator) judge(raw []byte) (Result, *Rejection) {
	f, err := a.layout.Decode(raw)
	if err != nil {
		return Result{}, &Rejection{
			Kind:   KindMalformed,
			Reason: err.Error(),
			Err:    err,
		}
	}

	h := f.Header

	if a.authOn && !a.mac.Verify(h, f.Payload, f.Tag) {
		return Result{}, headerRejection(KindTagMismatch, h,
			fmt.Sprintf("tag does not match for sender %d, counter %d", h.SenderID, h.Counter))
	}

	if !a.policy.Allowed(h.SenderID) {
		return Result{}, headerRejection(KindSenderNotAllowed, h,
			fmt.Sprintf("sender %d is not allowed", h.SenderID))
	}

	if !a.guard.Accept(h.SenderID, h.Counter) {
		last, _ := a.guard.Last(h.SenderID)
		return Result{}, headerRejection(KindReplayDetected, h,
			fmt.Sprintf("counter %d from sender %d is not greater than %d", h.Counter, h.SenderID, last))
	}

	a.guard.Commit(h.SenderID, h.Counter)

	return Result{
		SenderID: h.SenderID,
		Counter:  h.Counter,
		Payload:  append([]byte(nil), f.Payload...),
	}, nil
}

func headerRejection(kind Kind, h frame.Header, reason string) *Rejection {
	return &Rejection{
		Kind:      kind,
		Reason:    reason,
		HasHeader: true,
		SenderID:  h.SenderID,
		Counter:   h.Counter,
	}
}

// Seal builds a frame carrying a valid tag for h and payload
func (a *Authenticator) Seal(h frame.Header, payload []byte) ([]byte, error) {
	return a.layout.Encode(h, payload, a.mac.ComputeTag(h, payload))
}

// Layout returns the frame geometry
func (a *Authenticator) Layout() frame.Layout {
	return a.layout
}

// FrameSize returns the exact length every frame must have
func (a *Authenticator) FrameSize() int {
	return a.layout.Size()
}

// Algorithm returns the MAC algorithm
func (a *Authenticator) Algorithm() crypto.Algorithm {
	return a.mac.Algorithm()
}

// Authenticating reports whether tags are verified
func (a *Authenticator) Authenticating() bool {
	return a.authOn
}

// ReplayProtected reports whether counters are checked
func (a *Authenticator) ReplayProtected() bool {
	return a.guard.Enabled()
}

// LastCounter returns the last accepted counter for sender
func (a *Authenticator) LastCounter(sender uint8) (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.guard.Last(sender)
}
