package unwrap

import (
	"errors"
	"fmt"
)

// Kind classifies why a frame was rejected. Kinds are ordered by the
// precedence in which they are detected.
type Kind int

const (
	// KindMalformed means the buffer length does not match the frame size
	KindMalformed Kind = iota + 1
	// KindTagMismatch means the tag does not match the recomputed value
	KindTagMismatch
	// KindSenderNotAllowed means the sender is not in the allow-list
	KindSenderNotAllowed
	// KindReplayDetected means the counter did not increase for the sender
	KindReplayDetected
)

// Kinds lists every rejection kind in precedence order
func Kinds() []Kind {
	return []Kind{KindMalformed, KindTagMismatch, KindSenderNotAllowed, KindReplayDetected}
}

var kindNames = map[Kind]string{
	KindMalformed:        "Malformed",
	KindTagMismatch:      "TagMismatch",
	KindSenderNotAllowed: "SenderNotAllowed",
	KindReplayDetected:   "ReplayDetected",
}

// String returns the name of the rejection kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	// ErrMalformed matches rejections of KindMalformed
	ErrMalformed = errors.New("malformed frame")
	// ErrTagMismatch matches rejections of KindTagMismatch
	ErrTagMismatch = errors.New("authentication tag mismatch")
	// ErrSenderNotAllowed matches rejections of KindSenderNotAllowed
	ErrSenderNotAllowed = errors.New("sender not allowed")
	// ErrReplayDetected matches rejections of KindReplayDetected
	ErrReplayDetected = errors.New("replay detected")
)

var kindErrors = map[Kind]error{
	KindMalformed:        ErrMalformed,
	KindTagMismatch:      ErrTagMismatch,
	KindSenderNotAllowed: ErrSenderNotAllowed,
	KindReplayDetected:   ErrReplayDetected,
}

// Rejection is returned by Authenticate for every frame it refuses.
// SenderID and Counter are only meaningful when HasHeader is true.
type Rejection struct {
	Kind      Kind
	Reason    string
	HasHeader bool
	SenderID  uint8
	Counter   uint32
	Err       error
}

// Error implements error
func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

// Unwrap returns the underlying cause, if any
func (r *Rejection) Unwrap() error {
	return r.Err
}

// Is matches the sentinel error of the rejection kind
func (r *Rejection) Is(target error) bool {
	return kindErrors[r.Kind] == target
}

// AsRejection extracts a *Rejection from err
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
