// Package ui implements the client's terminal interface as a state
// machine over two injected collaborators: a writer the screens are
// rendered to and a reader supplying raw keystrokes. The caller owns the
// actual terminal (raw mode, restore on exit) and the connection; the
// session only translates keystrokes into request frames and responses
// into screen updates.
package ui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pollardlab/rhoserve/internal/wire"
)

// State identifies the screen the session is on.
type State int

// Session states.
const (
	StateInit State = iota
	StateHome
	StatePrime
	StateLog
	StateRSA
	StateReturnHome
	StateQuit
)

// ErrIllegalResponse signals a server response that does not fit the
// session's current state.
var ErrIllegalResponse = errors.New("illegal response for interface state")

// A Session tracks the interface state machine for one connection.
type Session struct {
	state State
	out   io.Writer
	keys  io.Reader

	alt bool // alternate screen active
}

// New constructs a Session in the Init state.
func New(out io.Writer, keys io.Reader) *Session {
	return &Session{state: StateInit, out: out, keys: keys}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Awaiting reports whether the session expects more server responses
// before the user gets the prompt back.
func (s *Session) Awaiting() bool {
	switch s.state {
	case StatePrime, StateLog, StateRSA:
		return true
	}
	return false
}

// HandleResponse renders a server response and advances the state machine.
func (s *Session) HandleResponse(resp wire.Response) error {
	switch s.state {
	case StateInit:
		if _, ok := resp.(wire.ConnectionOk); !ok {
			return fmt.Errorf("%w: %T in Init", ErrIllegalResponse, resp)
		}
		s.renderHome("connection successful")
		s.state = StateHome
	case StateHome:
		s.renderHome("")
	case StatePrime:
		switch r := resp.(type) {
		case wire.Prime:
			fmt.Fprintf(s.out, "%s%d is prime with probability %.20f%s\r\n", fgGreen, r.P, r.Prob, reset)
		case wire.NotPrime:
			fmt.Fprintf(s.out, "%s%d is not prime%s\r\n", fgRed, r.P, reset)
		default:
			return fmt.Errorf("%w: %T in Prime", ErrIllegalResponse, resp)
		}
		s.promptReturn()
	case StateLog:
		switch r := resp.(type) {
		case wire.LogItem:
			hl := ""
			if r.X == r.Y {
				hl = bold + fgYellow
			}
			fmt.Fprintf(s.out, "%s%10d %12d %12d %12d %12d %12d %12d%s\r\n",
				hl, r.I, r.X, r.A, r.B, r.Y, r.C, r.D, reset)
		case wire.SuccessfulLog:
			fmt.Fprintf(s.out, "\r\n%slog_%d(%d) = %d (mod %d)%s\r\n", fgGreen, r.G, r.H, r.Log, r.P, reset)
			fmt.Fprintf(s.out, "steps to √p ratio: %.10f\r\n", r.Ratio)
			s.promptReturn()
		case wire.UnsuccessfulLog:
			fmt.Fprintf(s.out, "\r\n%sno logarithm of %d base %d found mod %d%s\r\n", fgRed, r.H, r.G, r.P, reset)
			s.promptReturn()
		default:
			return fmt.Errorf("%w: %T in Log", ErrIllegalResponse, resp)
		}
	case StateRSA:
		switch r := resp.(type) {
		case wire.RSAItem:
			hl := ""
			if r.G != 1 {
				hl = bold + fgYellow
			}
			fmt.Fprintf(s.out, "%s%10d %14d %14d %14d%s\r\n", hl, r.I, r.X, r.Y, r.G, reset)
		case wire.SuccessfulRSA:
			fmt.Fprintf(s.out, "\r\n%s%d * %d = %d%s\r\n", fgGreen, r.P, r.Q, r.P*r.Q, reset)
			fmt.Fprintf(s.out, "steps to √n ratio: %.10f\r\n", r.Ratio)
			s.promptReturn()
		case wire.UnsuccessfulRSA:
			fmt.Fprintf(s.out, "\r\n%sno non-trivial factor of %d found%s\r\n", fgRed, r.N, reset)
			s.promptReturn()
		default:
			return fmt.Errorf("%w: %T in RSA", ErrIllegalResponse, resp)
		}
	default:
		return fmt.Errorf("%w: %T in state %d", ErrIllegalResponse, resp, s.state)
	}
	return nil
}

// NextRequest reads keystrokes until the user has composed a complete
// request. In Home it parses menu input, prompting for the operands of the
// chosen operation; in ReturnHome it waits for Enter first. Unrecognized
// menu input shows an inline warning and keeps prompting.
func (s *Session) NextRequest() (wire.Request, error) {
	if s.state == StateReturnHome {
		if err := s.waitEnter(); err != nil {
			return nil, err
		}
		if s.alt {
			fmt.Fprint(s.out, mainScreen)
			s.alt = false
		}
		s.renderHome("")
		s.state = StateHome
	}
	for {
		fmt.Fprint(s.out, "> ")
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}
		switch {
		case line == "q":
			s.state = StateQuit
			fmt.Fprint(s.out, "goodbye\r\n")
			return wire.QuitRequest{}, nil
		case line == "l":
			g, err := s.promptUint("base g: ")
			if err != nil {
				return nil, err
			}
			h, err := s.promptUint("target h: ")
			if err != nil {
				return nil, err
			}
			p, err := s.promptUint("prime p: ")
			if err != nil {
				return nil, err
			}
			s.enterWalkScreen(fmt.Sprintf("solving %d^e = %d (mod %d)", g, h, p),
				fmt.Sprintf("%10s %12s %12s %12s %12s %12s %12s", "i", "x", "a", "b", "y", "c", "d"))
			s.state = StateLog
			return wire.LogRequest{G: g, H: h, P: p}, nil
		case line == "r":
			n, err := s.promptUint("modulus n: ")
			if err != nil {
				return nil, err
			}
			e, err := s.promptUint("exponent e: ")
			if err != nil {
				return nil, err
			}
			s.enterWalkScreen(fmt.Sprintf("factoring n = %d", n),
				fmt.Sprintf("%10s %14s %14s %14s", "i", "x", "y", "gcd"))
			s.state = StateRSA
			return wire.RSARequest{N: n, E: e}, nil
		case isUnsignedDecimal(line):
			p, perr := strconv.ParseUint(line, 10, 64)
			if perr != nil {
				s.warn("number too large for 64 bits")
				continue
			}
			s.state = StatePrime
			return wire.PrimeRequest{P: p}, nil
		default:
			s.warn("enter q, l, r, or an unsigned integer")
		}
	}
}

func (s *Session) promptUint(prompt string) (uint64, error) {
	for {
		fmt.Fprint(s.out, prompt)
		line, err := s.readLine()
		if err != nil {
			return 0, err
		}
		if !isUnsignedDecimal(line) {
			s.warn("expected an unsigned integer")
			continue
		}
		v, perr := strconv.ParseUint(line, 10, 64)
		if perr != nil {
			s.warn("number too large for 64 bits")
			continue
		}
		return v, nil
	}
}

// readLine assembles one line from raw keystrokes: printable bytes echo,
// backspace erases, Enter submits. Reading per keystroke matters because
// the terminal is in raw mode; a read-to-EOF would never return.
func (s *Session) readLine() (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(s.keys, buf); err != nil {
			return "", err
		}
		switch b := buf[0]; {
		case b == '\r' || b == '\n':
			fmt.Fprint(s.out, "\r\n")
			return sb.String(), nil
		case b == 0x7f || b == '\b':
			if sb.Len() > 0 {
				str := sb.String()
				sb.Reset()
				sb.WriteString(str[:len(str)-1])
				fmt.Fprint(s.out, "\b \b")
			}
		case b >= 0x20 && b < 0x7f:
			sb.WriteByte(b)
			fmt.Fprintf(s.out, "%c", b)
		}
	}
}

func (s *Session) waitEnter() error {
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(s.keys, buf); err != nil {
			return err
		}
		if buf[0] == '\r' || buf[0] == '\n' {
			return nil
		}
	}
}

func isUnsignedDecimal(line string) bool {
	if line == "" {
		return false
	}
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
