// Package wire implements the fixed-width binary protocol spoken between
// the client and the server. Request frames are 25 bytes and response
// frames are 57 bytes; byte 0 carries the variant tag and all numeric
// fields are little-endian at fixed offsets. There is no length prefix.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RequestLen is the exact size of a request frame on the wire.
const RequestLen = 25

// Request tags.
const (
	tagLog   = 1
	tagRSA   = 2
	tagPrime = 3
	tagQuit  = 4
)

// ErrUnknownTag signals a frame whose tag byte matches no known variant.
// It is a hard framing error: the connection carrying it cannot be
// resynchronized.
type ErrUnknownTag struct {
	Tag byte
}

func (e *ErrUnknownTag) Error() string {
	return fmt.Sprintf("unknown frame tag %#02x", e.Tag)
}

// A Request is one client-to-server frame.
type Request interface {
	encode(buf *[RequestLen]byte)
}

// LogRequest asks the server to solve g^e = h (mod p) for e.
type LogRequest struct {
	G uint64
	H uint64
	P uint64
}

// RSARequest asks the server to factor the modulus n. The exponent is
// carried for wire compatibility and ignored by the server.
type RSARequest struct {
	N uint64
	E uint64
}

// PrimeRequest asks the server to test p for primality.
type PrimeRequest struct {
	P uint64
}

// QuitRequest announces that the client is disconnecting.
type QuitRequest struct{}

func (r LogRequest) encode(buf *[RequestLen]byte) {
	buf[0] = tagLog
	binary.LittleEndian.PutUint64(buf[1:9], r.G)
	binary.LittleEndian.PutUint64(buf[9:17], r.H)
	binary.LittleEndian.PutUint64(buf[17:25], r.P)
}

func (r RSARequest) encode(buf *[RequestLen]byte) {
	buf[0] = tagRSA
	binary.LittleEndian.PutUint64(buf[1:9], r.N)
	binary.LittleEndian.PutUint64(buf[9:17], r.E)
}

func (r PrimeRequest) encode(buf *[RequestLen]byte) {
	buf[0] = tagPrime
	binary.LittleEndian.PutUint64(buf[1:9], r.P)
}

func (r QuitRequest) encode(buf *[RequestLen]byte) {
	buf[0] = tagQuit
}

// EncodeRequest serializes a request into a fixed 25-byte frame. Unused
// payload bytes are zero.
func EncodeRequest(r Request) [RequestLen]byte {
	var buf [RequestLen]byte
	r.encode(&buf)
	return buf
}

// DecodeRequest deserializes a 25-byte frame.
func DecodeRequest(buf [RequestLen]byte) (Request, error) {
	switch buf[0] {
	case tagLog:
		return LogRequest{
			G: binary.LittleEndian.Uint64(buf[1:9]),
			H: binary.LittleEndian.Uint64(buf[9:17]),
			P: binary.LittleEndian.Uint64(buf[17:25]),
		}, nil
	case tagRSA:
		return RSARequest{
			N: binary.LittleEndian.Uint64(buf[1:9]),
			E: binary.LittleEndian.Uint64(buf[9:17]),
		}, nil
	case tagPrime:
		return PrimeRequest{P: binary.LittleEndian.Uint64(buf[1:9])}, nil
	case tagQuit:
		return QuitRequest{}, nil
	default:
		return nil, &ErrUnknownTag{Tag: buf[0]}
	}
}

// ReadRequest consumes exactly one request frame from r.
func ReadRequest(r io.Reader) (Request, error) {
	var buf [RequestLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	return DecodeRequest(buf)
}

// WriteRequest writes one request frame to w.
func WriteRequest(w io.Writer, req Request) error {
	buf := EncodeRequest(req)
	_, err := w.Write(buf[:])
	return err
}
