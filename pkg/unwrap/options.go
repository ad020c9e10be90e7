package unwrap

import (
	"github.com/vitalvas/gounwrap/pkg/crypto"
	"github.com/vitalvas/gounwrap/pkg/frame"
	"github.com/vitalvas/gounwrap/pkg/log"
	"github.com/vitalvas/gounwrap/pkg/policy"
)

// DefaultPayloadLength is 20 vector samples × 10 vectors × 2 bytes
var DefaultPayloadLength = frame.PayloadLength(20, 10, frame.BytesPerSample)

// DefaultAllowedSenders is the allow-list used when none is configured
var DefaultAllowedSenders = []uint8{0}

// Option configures an Authenticator.
type Option func(*options)

type options struct {
	algorithm     crypto.Algorithm
	tagLength     int
	payloadLength int
	policy        policy.SenderPolicy
	noAuth        bool
	noReplay      bool
	logger        log.Logger
	observer      Observer
}

func defaultOptions() options {
	return options{
		algorithm:     crypto.DefaultAlgorithm,
		tagLength:     frame.DefaultTagLength,
		payloadLength: DefaultPayloadLength,
		policy:        policy.NewAllowList(DefaultAllowedSenders...),
	}
}

// WithAlgorithm sets the MAC algorithm.
func WithAlgorithm(alg crypto.Algorithm) Option {
	return func(o *options) {
		o.algorithm = alg
	}
}

// WithTagLength sets the fixed tag length in bytes.
func WithTagLength(n int) Option {
	return func(o *options) {
		o.tagLength = n
	}
}

// WithPayloadLength sets the fixed payload length in bytes.
func WithPayloadLength(n int) Option {
	return func(o *options) {
		o.payloadLength = n
	}
}

// WithAllowedSenders sets the sender allow-list.
func WithAllowedSenders(ids ...uint8) Option {
	return func(o *options) {
		o.policy = policy.NewAllowList(ids...)
	}
}

// WithPolicy sets a custom sender policy.
func WithPolicy(p policy.SenderPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithoutAuthentication skips tag verification. For test and bench use only.
func WithoutAuthentication() Option {
	return func(o *options) {
		o.noAuth = true
	}
}

// WithoutReplayProtection accepts any counter, exposing the stream to replays.
func WithoutReplayProtection() Option {
	return func(o *options) {
		o.noReplay = true
	}
}

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers an observer notified of every judgment.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
