package wire

import (
	"encoding/binary"
	"io"
	"math"
)

// ResponseLen is the exact size of a response frame on the wire. It is
// sized by LogItem, whose seven fields fill the payload entirely; all
// other variants zero-pad.
const ResponseLen = 57

// Response tags.
const (
	tagConnectionOk    = 1
	tagNotPrime        = 2
	tagPrimeResp       = 3
	tagLogItem         = 4
	tagSuccessfulLog   = 5
	tagUnsuccessfulLog = 6
	tagRSAItem         = 7
	tagSuccessfulRSA   = 8
	tagUnsuccessfulRSA = 9
)

// A Response is one server-to-client frame.
type Response interface {
	encode(buf *[ResponseLen]byte)
}

// ConnectionOk acknowledges a new connection.
type ConnectionOk struct{}

// NotPrime reports that p was proven composite.
type NotPrime struct {
	P uint64
}

// Prime reports that p survived every witness round, with the resulting
// confidence.
type Prime struct {
	P    uint64
	Prob float32
}

// LogItem is one streamed step of the discrete-log walk.
type LogItem struct {
	I uint64
	X uint64
	A uint64
	B uint64
	Y uint64
	C uint64
	D uint64
}

// SuccessfulLog carries the recovered logarithm and the step-to-sqrt(p)
// ratio of the walk that produced it.
type SuccessfulLog struct {
	Log   uint64
	G     uint64
	H     uint64
	P     uint64
	Ratio float64
}

// UnsuccessfulLog reports that the collision relation had no solution.
type UnsuccessfulLog struct {
	G uint64
	H uint64
	P uint64
}

// RSAItem is one streamed step of the factoring walk.
type RSAItem struct {
	I uint64
	X uint64
	Y uint64
	G uint64
	N uint64
}

// SuccessfulRSA carries the two recovered factors and the step-to-sqrt(n)
// ratio of the walk that produced them.
type SuccessfulRSA struct {
	P     uint64
	Q     uint64
	Ratio float64
}

// UnsuccessfulRSA reports that the walk terminated without a non-trivial
// factor.
type UnsuccessfulRSA struct {
	N uint64
}

func (ConnectionOk) encode(buf *[ResponseLen]byte) {
	buf[0] = tagConnectionOk
}

func (r NotPrime) encode(buf *[ResponseLen]byte) {
	buf[0] = tagNotPrime
	binary.LittleEndian.PutUint64(buf[1:9], r.P)
}

func (r Prime) encode(buf *[ResponseLen]byte) {
	buf[0] = tagPrimeResp
	binary.LittleEndian.PutUint64(buf[1:9], r.P)
	binary.LittleEndian.PutUint32(buf[9:13], math.Float32bits(r.Prob))
}

func (r LogItem) encode(buf *[ResponseLen]byte) {
	buf[0] = tagLogItem
	for i, v := range []uint64{r.I, r.X, r.A, r.B, r.Y, r.C, r.D} {
		binary.LittleEndian.PutUint64(buf[1+8*i:9+8*i], v)
	}
}

func (r SuccessfulLog) encode(buf *[ResponseLen]byte) {
	buf[0] = tagSuccessfulLog
	binary.LittleEndian.PutUint64(buf[1:9], r.Log)
	binary.LittleEndian.PutUint64(buf[9:17], r.G)
	binary.LittleEndian.PutUint64(buf[17:25], r.H)
	binary.LittleEndian.PutUint64(buf[25:33], r.P)
	binary.LittleEndian.PutUint64(buf[33:41], math.Float64bits(r.Ratio))
}

func (r UnsuccessfulLog) encode(buf *[ResponseLen]byte) {
	buf[0] = tagUnsuccessfulLog
	binary.LittleEndian.PutUint64(buf[1:9], r.G)
	binary.LittleEndian.PutUint64(buf[9:17], r.H)
	binary.LittleEndian.PutUint64(buf[17:25], r.P)
}

func (r RSAItem) encode(buf *[ResponseLen]byte) {
	buf[0] = tagRSAItem
	for i, v := range []uint64{r.I, r.X, r.Y, r.G, r.N} {
		binary.LittleEndian.PutUint64(buf[1+8*i:9+8*i], v)
	}
}

func (r SuccessfulRSA) encode(buf *[ResponseLen]byte) {
	buf[0] = tagSuccessfulRSA
	binary.LittleEndian.PutUint64(buf[1:9], r.P)
	binary.LittleEndian.PutUint64(buf[9:17], r.Q)
	binary.LittleEndian.PutUint64(buf[17:25], math.Float64bits(r.Ratio))
}

func (r UnsuccessfulRSA) encode(buf *[ResponseLen]byte) {
	buf[0] = tagUnsuccessfulRSA
	binary.LittleEndian.PutUint64(buf[1:9], r.N)
}

// EncodeResponse serializes a response into a fixed 57-byte frame. Unused
// payload bytes are zero.
func EncodeResponse(r Response) [ResponseLen]byte {
	var buf [ResponseLen]byte
	r.encode(&buf)
	return buf
}

// DecodeResponse deserializes a 57-byte frame.
func DecodeResponse(buf [ResponseLen]byte) (Response, error) {
	u64 := func(off int) uint64 { return binary.LittleEndian.Uint64(buf[off : off+8]) }
	switch buf[0] {
	case tagConnectionOk:
		return ConnectionOk{}, nil
	case tagNotPrime:
		return NotPrime{P: u64(1)}, nil
	case tagPrimeResp:
		return Prime{
			P:    u64(1),
			Prob: math.Float32frombits(binary.LittleEndian.Uint32(buf[9:13])),
		}, nil
	case tagLogItem:
		return LogItem{
			I: u64(1), X: u64(9), A: u64(17), B: u64(25),
			Y: u64(33), C: u64(41), D: u64(49),
		}, nil
	case tagSuccessfulLog:
		return SuccessfulLog{
			Log:   u64(1),
			G:     u64(9),
			H:     u64(17),
			P:     u64(25),
			Ratio: math.Float64frombits(u64(33)),
		}, nil
	case tagUnsuccessfulLog:
		return UnsuccessfulLog{G: u64(1), H: u64(9), P: u64(17)}, nil
	case tagRSAItem:
		return RSAItem{I: u64(1), X: u64(9), Y: u64(17), G: u64(25), N: u64(33)}, nil
	case tagSuccessfulRSA:
		return SuccessfulRSA{P: u64(1), Q: u64(9), Ratio: math.Float64frombits(u64(17))}, nil
	case tagUnsuccessfulRSA:
		return UnsuccessfulRSA{N: u64(1)}, nil
	default:
		return nil, &ErrUnknownTag{Tag: buf[0]}
	}
}

// ReadResponse consumes exactly one response frame from r.
func ReadResponse(r io.Reader) (Response, error) {
	var buf [ResponseLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	return DecodeResponse(buf)
}

// WriteResponse writes one response frame to w.
func WriteResponse(w io.Writer, resp Response) error {
	buf := EncodeResponse(resp)
	_, err := w.Write(buf[:])
	return err
}
