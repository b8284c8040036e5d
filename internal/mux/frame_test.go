package mux

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/lukeburns/channeler/internal/domain"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	dk := domain.DiscoveryKey{1, 2, 3}
	in := newFrame(FrameMessage, dk, []byte("sync"))

	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != FixedHeaderLen+4 {
		t.Fatalf("encoded length = %d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Type != FrameMessage || out.Header.DiscoveryKey != dk || out.Header.PayloadLen != 4 {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if string(out.Payload) != "sync" {
		t.Fatalf("payload mismatch: %q", out.Payload)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameBadMagic(t *testing.T) {
	buf := EncodeHeader(Header{Magic: 0xEDCE1001, Version: Version, Type: FrameOpen})
	_, err := ReadFrame(bytes.NewReader(buf), DefaultLimits())
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestReadFrameVersion(t *testing.T) {
	buf := EncodeHeader(Header{Magic: Magic, Version: 9, Type: FrameOpen})
	_, err := ReadFrame(bytes.NewReader(buf), DefaultLimits())
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestPayloadLimits(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 2}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, newFrame(FrameMessage, domain.DiscoveryKey{}, []byte("abc")), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on write, got %v", err)
	}

	hdr := EncodeHeader(Header{Magic: Magic, Version: Version, Type: FrameMessage, PayloadLen: 3})
	if _, err := ReadFrame(bytes.NewReader(hdr), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}
