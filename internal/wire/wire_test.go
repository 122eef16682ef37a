package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"go.akshayshah.org/attest"
)

func TestLogRequestLayout(t *testing.T) {
	got := EncodeRequest(LogRequest{G: 3, H: 2, P: 7})

	want := [RequestLen]byte{}
	want[0] = 1 // Log tag
	want[1] = 3
	want[9] = 2
	want[17] = 7
	attest.Equal(t, got, want)
}

func TestRequestRoundTrip(t *testing.T) {
	for _, req := range []Request{
		LogRequest{G: 3, H: 2, P: 7},
		RSARequest{N: 9409613, E: 65537},
		PrimeRequest{P: 15239131},
		QuitRequest{},
	} {
		var buf bytes.Buffer
		attest.Ok(t, WriteRequest(&buf, req))
		attest.Equal(t, buf.Len(), RequestLen)

		got, err := ReadRequest(&buf)
		attest.Ok(t, err)
		attest.Equal(t, got, req)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for _, resp := range []Response{
		ConnectionOk{},
		NotPrime{P: 561},
		Prime{P: 15239131, Prob: 0.9999999999990905},
		LogItem{I: 96, X: 919, A: 2516, B: 1402, Y: 919, C: 511, D: 4336},
		SuccessfulLog{Log: 3351, G: 2, H: 2495, P: 5011, Ratio: 1.356},
		UnsuccessfulLog{G: 6, H: 10, P: 17959},
		RSAItem{I: 34, X: 1083570, Y: 211621, G: 541, N: 9409613},
		SuccessfulRSA{P: 541, Q: 17393, Ratio: 0.011},
		UnsuccessfulRSA{N: 101},
	} {
		var buf bytes.Buffer
		attest.Ok(t, WriteResponse(&buf, resp))
		attest.Equal(t, buf.Len(), ResponseLen)

		got, err := ReadResponse(&buf)
		attest.Ok(t, err)
		attest.Equal(t, got, resp)
	}
}

func TestUnknownTag(t *testing.T) {
	var reqBuf [RequestLen]byte
	reqBuf[0] = 9
	_, err := DecodeRequest(reqBuf)
	var tagErr *ErrUnknownTag
	attest.True(t, errors.As(err, &tagErr))
	attest.Equal(t, tagErr.Tag, 9)

	var respBuf [ResponseLen]byte
	respBuf[0] = 0xff
	_, err = DecodeResponse(respBuf)
	attest.True(t, errors.As(err, &tagErr))
	attest.Equal(t, tagErr.Tag, 0xff)
}

func TestShortFrame(t *testing.T) {
	// A reader consumes exactly one frame; anything less is a transport
	// error, not a decode attempt.
	_, err := ReadRequest(strings.NewReader("\x01\x02\x03"))
	attest.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadResponse(strings.NewReader(""))
	attest.ErrorIs(t, err, io.EOF)
}
