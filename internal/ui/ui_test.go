package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"go.akshayshah.org/attest"

	"github.com/pollardlab/rhoserve/internal/wire"
)

func TestHomeMenu(t *testing.T) {
	keys := strings.NewReader("bogus\r15239131\r\rq\r")
	var out bytes.Buffer
	s := New(&out, keys)
	attest.Equal(t, s.State(), StateInit)

	attest.Ok(t, s.HandleResponse(wire.ConnectionOk{}))
	attest.Equal(t, s.State(), StateHome)
	attest.True(t, strings.Contains(out.String(), "connection successful"))

	// "bogus" draws an inline warning and keeps prompting; the numeric
	// line becomes a primality request.
	req, err := s.NextRequest()
	attest.Ok(t, err)
	attest.Equal(t, req, wire.Request(wire.PrimeRequest{P: 15239131}))
	attest.Equal(t, s.State(), StatePrime)
	attest.True(t, s.Awaiting())
	attest.True(t, strings.Contains(out.String(), "enter q, l, r"))

	attest.Ok(t, s.HandleResponse(wire.Prime{P: 15239131, Prob: 0.99999}))
	attest.Equal(t, s.State(), StateReturnHome)
	attest.True(t, !s.Awaiting())

	// Enter returns home, then q quits.
	req, err = s.NextRequest()
	attest.Ok(t, err)
	attest.Equal(t, req, wire.Request(wire.QuitRequest{}))
	attest.Equal(t, s.State(), StateQuit)
}

func TestLogScreen(t *testing.T) {
	keys := strings.NewReader("l\rabc\r2\r2495\r5011\r")
	var out bytes.Buffer
	s := New(&out, keys)
	attest.Ok(t, s.HandleResponse(wire.ConnectionOk{}))

	// The non-numeric operand re-prompts before the request is built.
	req, err := s.NextRequest()
	attest.Ok(t, err)
	attest.Equal(t, req, wire.Request(wire.LogRequest{G: 2, H: 2495, P: 5011}))
	attest.Equal(t, s.State(), StateLog)
	attest.True(t, strings.Contains(out.String(), "expected an unsigned integer"))
	attest.True(t, strings.Contains(out.String(), "?1049h"), attest.Sprint("alternate screen"))

	attest.Ok(t, s.HandleResponse(wire.LogItem{I: 1, X: 2, A: 1, B: 0, Y: 4, C: 2, D: 0}))
	attest.Equal(t, s.State(), StateLog)

	// The collision row is highlighted.
	attest.Ok(t, s.HandleResponse(wire.LogItem{I: 96, X: 919, A: 2516, B: 1402, Y: 919, C: 511, D: 4336}))
	attest.True(t, strings.Contains(out.String(), "\x1b[1m\x1b[33m"))

	attest.Ok(t, s.HandleResponse(wire.SuccessfulLog{Log: 3351, G: 2, H: 2495, P: 5011, Ratio: 1.35}))
	attest.Equal(t, s.State(), StateReturnHome)
	attest.True(t, strings.Contains(out.String(), "3351"))
}

func TestRSAScreen(t *testing.T) {
	keys := strings.NewReader("r\r9409613\r65537\r\r")
	var out bytes.Buffer
	s := New(&out, keys)
	attest.Ok(t, s.HandleResponse(wire.ConnectionOk{}))

	req, err := s.NextRequest()
	attest.Ok(t, err)
	attest.Equal(t, req, wire.Request(wire.RSARequest{N: 9409613, E: 65537}))
	attest.Equal(t, s.State(), StateRSA)

	attest.Ok(t, s.HandleResponse(wire.RSAItem{I: 1, X: 2, Y: 5, G: 1, N: 9409613}))
	attest.Ok(t, s.HandleResponse(wire.SuccessfulRSA{P: 541, Q: 17393, Ratio: 0.01}))
	attest.Equal(t, s.State(), StateReturnHome)
	attest.True(t, strings.Contains(out.String(), "541"))

	// Returning home leaves the alternate screen.
	keys2 := strings.NewReader("\rq\r")
	s.keys = keys2
	_, err = s.NextRequest()
	attest.Ok(t, err)
	attest.True(t, strings.Contains(out.String(), "?1049l"))
}

func TestBackspace(t *testing.T) {
	keys := strings.NewReader("12\x7f3\r")
	var out bytes.Buffer
	s := New(&out, keys)
	attest.Ok(t, s.HandleResponse(wire.ConnectionOk{}))

	req, err := s.NextRequest()
	attest.Ok(t, err)
	attest.Equal(t, req, wire.Request(wire.PrimeRequest{P: 13}))
}

func TestIllegalResponse(t *testing.T) {
	keys := strings.NewReader("7\r")
	var out bytes.Buffer
	s := New(&out, keys)
	attest.Ok(t, s.HandleResponse(wire.ConnectionOk{}))
	_, err := s.NextRequest()
	attest.Ok(t, err)

	err = s.HandleResponse(wire.RSAItem{I: 1})
	attest.True(t, errors.Is(err, ErrIllegalResponse))
}
