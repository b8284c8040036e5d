package mux

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lukeburns/channeler/internal/domain"
)

const (
	Magic          uint32 = 0x43484e4c // "CHNL"
	Version        uint16 = 1
	FixedHeaderLen        = 48
)

// FrameType identifies what a frame does to its session.
type FrameType uint16

const (
	FrameOpen FrameType = iota + 1
	FrameReject
	FrameClose
	FrameMessage
)

func (t FrameType) String() string {
	switch t {
	case FrameOpen:
		return "open"
	case FrameReject:
		return "reject"
	case FrameClose:
		return "close"
	case FrameMessage:
		return "message"
	default:
		return fmt.Sprintf("frame(%d)", uint16(t))
	}
}

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
)

// Header is the fixed wire header.
type Header struct {
	Magic        uint32
	Version      uint16
	Type         FrameType
	DiscoveryKey domain.DiscoveryKey
	PayloadLen   uint64
}

// Frame is one complete wire message addressed to the session for
// DiscoveryKey.
type Frame struct {
	Header  Header
	Payload []byte
}

func newFrame(t FrameType, dk domain.DiscoveryKey, payload []byte) Frame {
	return Frame{
		Header:  Header{Magic: Magic, Version: Version, Type: t, DiscoveryKey: dk},
		Payload: payload,
	}
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

// ReadFrame reads one frame. A clean end of stream before any header byte
// returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrBadMagic
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame writes f with a single Write call so concurrent readers of the
// other end never see a torn frame.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.PayloadLen = payloadLen

	buf := make([]byte, 0, FixedHeaderLen+len(f.Payload))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	copy(buf[8:40], h.DiscoveryKey[:])
	binary.BigEndian.PutUint64(buf[40:48], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       FrameType(binary.BigEndian.Uint16(b[6:8])),
		PayloadLen: binary.BigEndian.Uint64(b[40:48]),
	}
	copy(h.DiscoveryKey[:], b[8:40])
	return h, nil
}
