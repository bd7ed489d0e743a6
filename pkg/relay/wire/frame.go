// Package wire defines the binary stream framing spoken by the QUIC
// transport. Every stream opens with a fixed 8-byte header followed by JSON
// metadata; HTTP bodies travel as length-prefixed chunks ending in a
// zero-length terminator.
//
// The relay speaks the same framing. Any change here must land on both sides
// of the tunnel in the same release.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Version is the framing protocol version.
const Version uint8 = 1

// Size caps. Metadata is a single JSON document and stays small; body chunks
// are bounded so a corrupt length prefix cannot trigger a huge allocation.
const (
	MaxMetadataSize = 64 * 1024
	MaxChunkSize    = 4 * 1024 * 1024
)

// Framing errors.
var (
	ErrVersionMismatch  = errors.New("wire: protocol version mismatch")
	ErrMetadataTooLarge = errors.New("wire: metadata too large")
	ErrChunkTooLarge    = errors.New("wire: body chunk too large")
)

// StreamType identifies what a stream carries.
type StreamType uint8

const (
	// StreamTypeControl carries the auth handshake, keepalives, and goaway.
	StreamTypeControl StreamType = 0
	// StreamTypeHTTP carries one relayed request and its response,
	// half-duplex: metadata + body chunks in, metadata + body chunks out.
	StreamTypeHTTP StreamType = 1
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeControl:
		return "control"
	case StreamTypeHTTP:
		return "http"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Header flags. The flags byte is reserved for protocol evolution; no flag is
// currently assigned.
const FlagNone uint8 = 0

// StreamHeader opens every stream.
// Binary format:
//   - Version: 1 byte
//   - Type: 1 byte
//   - Flags: 1 byte
//   - Reserved: 1 byte
//   - MetadataLen: 4 bytes (big-endian)
//   - Metadata: variable (JSON)
type StreamHeader struct {
	Version  uint8
	Type     StreamType
	Flags    uint8
	Metadata []byte
}

// EncodeHeader writes a stream header to w.
func EncodeHeader(w io.Writer, h *StreamHeader) error {
	if len(h.Metadata) > MaxMetadataSize {
		return fmt.Errorf("%w: %d bytes", ErrMetadataTooLarge, len(h.Metadata))
	}

	buf := make([]byte, 8)
	buf[0] = h.Version
	buf[1] = byte(h.Type)
	buf[2] = h.Flags
	buf[3] = 0 // reserved
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(h.Metadata)))

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(h.Metadata) > 0 {
		if _, err := w.Write(h.Metadata); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
	}
	return nil
}

// DecodeHeader reads a stream header from r, rejecting unknown protocol
// versions and oversized metadata before allocating for them.
func DecodeHeader(r io.Reader) (*StreamHeader, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if buf[0] != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, buf[0], Version)
	}

	h := &StreamHeader{
		Version: buf[0],
		Type:    StreamType(buf[1]),
		Flags:   buf[2],
	}

	metadataLen := binary.BigEndian.Uint32(buf[4:8])
	if metadataLen > MaxMetadataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMetadataTooLarge, metadataLen)
	}
	if metadataLen > 0 {
		h.Metadata = make([]byte, metadataLen)
		if _, err := io.ReadFull(r, h.Metadata); err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
	}
	return h, nil
}

// WriteBodyChunk writes one length-prefixed body chunk to w. A nil or empty
// data slice writes the end-of-body terminator (length 0).
func WriteBodyChunk(w io.Writer, data []byte) error {
	if len(data) > MaxChunkSize {
		return fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, len(data))
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(data)))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write chunk length: %w", err)
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write chunk data: %w", err)
		}
	}
	return nil
}

// ReadBodyChunk reads one length-prefixed body chunk from r. Returns
// (nil, nil) when the end-of-body terminator is read.
func ReadBodyChunk(r io.Reader) ([]byte, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read chunk length: %w", err)
	}
	n := binary.BigEndian.Uint32(buf[:])
	if n == 0 {
		return nil, nil // end-of-body terminator
	}
	if n > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read chunk data: %w", err)
	}
	return data, nil
}

// WriteBody streams a fully buffered body as chunks followed by the
// terminator. An empty body writes only the terminator.
func WriteBody(w io.Writer, body []byte) error {
	for len(body) > 0 {
		n := len(body)
		if n > MaxChunkSize {
			n = MaxChunkSize
		}
		if err := WriteBodyChunk(w, body[:n]); err != nil {
			return err
		}
		body = body[n:]
	}
	return WriteBodyChunk(w, nil)
}

// ReadBody accumulates chunks until the terminator and returns the assembled
// body. Returns nil for an empty body.
func ReadBody(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := ReadBodyChunk(r)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		buf.Write(chunk)
	}
	if buf.Len() == 0 {
		return nil, nil
	}
	return buf.Bytes(), nil
}
