package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame structure constants
const (
	// SenderIDLength is the length of the sender identifier field
	SenderIDLength = 1
	// CounterLength is the length of the big-endian counter field
	CounterLength = 4
	// HeaderLength is the length of the frame header (SenderID + Counter)
	HeaderLength = SenderIDLength + CounterLength
	// DefaultTagLength is the tag length used when none is configured
	DefaultTagLength = 16
	// BytesPerSample is the size of one encoded vector sample
	BytesPerSample = 2
)

var (
	// ErrBadLength indicates the buffer length does not match the configured frame size
	ErrBadLength = errors.New("bad frame length")
	// ErrBadPayloadLength indicates a payload of the wrong size was given to Encode
	ErrBadPayloadLength = errors.New("bad payload length")
	// ErrBadTagLength indicates a tag of the wrong size was given to Encode
	ErrBadTagLength = errors.New("bad tag length")
	// ErrInvalidLayout indicates a layout that cannot describe any frame
	ErrInvalidLayout = errors.New("invalid frame layout")
)

// Header is the fixed-size prefix of every frame
type Header struct {
	SenderID uint8
	Counter  uint32
}

// AppendBinary appends the wire form of the header to b
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, h.SenderID)
	return binary.BigEndian.AppendUint32(b, h.Counter), nil
}

// MarshalBinary returns the wire form of the header
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderLength))
}

// String returns a string representation of the header
func (h Header) String() string {
	return fmt.Sprintf("Sender=%d, Counter=%d", h.SenderID, h.Counter)
}

// Frame is a decoded frame. Payload, Tag and Signed alias the decoded buffer.
type Frame struct {
	Header  Header
	Payload []byte
	Tag     []byte
	// Signed is header ‖ payload, the bytes covered by the tag
	Signed []byte
}

// Layout describes the fixed frame geometry of one deployment
type Layout struct {
	PayloadLength int
	TagLength     int
}

// PayloadLength derives the payload size from the vector geometry
func PayloadLength(vectorLength, vectorsPerPacket, bytesPerSample int) int {
	return vectorLength * vectorsPerPacket * bytesPerSample
}

// Size returns the total frame length
func (l Layout) Size() int {
	return HeaderLength + l.PayloadLength + l.TagLength
}

// Validate checks that the layout can describe a frame
func (l Layout) Validate() error {
	if l.PayloadLength < 0 {
		return fmt.Errorf("%w: negative payload length %d", ErrInvalidLayout, l.PayloadLength)
	}
	if l.TagLength <= 0 {
		return fmt.Errorf("%w: tag length must be positive, got %d", ErrInvalidLayout, l.TagLength)
	}
	return nil
}

// Decode splits raw into its fields. No partial decode is attempted.
func (l Layout) Decode(raw []byte) (*Frame, error) {
	if len(raw) != l.Size() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadLength, len(raw), l.Size())
	}

	signedEnd := HeaderLength + l.PayloadLength

	return &Frame{
		Header: Header{
			SenderID: raw[0],
			Counter:  binary.BigEndian.Uint32(raw[SenderIDLength:HeaderLength]),
		},
		Payload: raw[HeaderLength:signedEnd:signedEnd],
		Tag:     raw[signedEnd:],
		Signed:  raw[:signedEnd:signedEnd],
	}, nil
}

// Encode builds the wire form of a frame, the inverse of Decode
func (l Layout) Encode(h Header, payload, tag []byte) ([]byte, error) {
	if len(payload) != l.PayloadLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadPayloadLength, len(payload), l.PayloadLength)
	}
	if len(tag) != l.TagLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadTagLength, len(tag), l.TagLength)
	}

	data, _ := h.AppendBinary(make([]byte, 0, l.Size()))
	data = append(data, payload...)
	data = append(data, tag...)

	return data, nil
}

// String returns a string representation of the layout
func (l Layout) String() string {
	return fmt.Sprintf("Header=%d, Payload=%d, Tag=%d, Size=%d", HeaderLength, l.PayloadLength, l.TagLength, l.Size())
}
