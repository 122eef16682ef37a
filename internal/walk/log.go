// Package walk implements the Pollard rho state machines: the three-subset
// pseudo-random walk for discrete logarithms and the x^2+1 walk for
// factoring. Both are lazy sequences; each Next call advances one step, so
// a consumer can stream intermediate states as they are produced.
package walk

import (
	"errors"

	"github.com/pollardlab/rhoserve/internal/numtheory"
)

// ErrModulusTooLarge signals that (m-1)^2 overflows 64-bit arithmetic for
// the requested modulus.
var ErrModulusTooLarge = errors.New("modulus too large for 64-bit arithmetic")

// ErrModulusTooSmall signals a modulus below 2, for which the walks'
// residue arithmetic is undefined.
var ErrModulusTooSmall = errors.New("modulus too small")

// ErrNotConverged signals that Solve was called before the tortoise and
// hare collided.
var ErrNotConverged = errors.New("walk has not converged")

// ErrUnsolvable signals that no exponent satisfying g^e = h (mod p) was
// found among the candidate residues.
var ErrUnsolvable = errors.New("discrete logarithm unsolvable")

// maxModulus is the largest m whose (m-1)^2 fits in 64 bits.
const maxModulus = 1 << 32

// A LogStep is one step of the discrete-log walk: the step counter, the
// tortoise triple (x, a, b) and the hare triple (y, c, d).
type LogStep struct {
	I uint64
	X uint64
	A uint64
	B uint64
	Y uint64
	C uint64
	D uint64
}

// A LogWalk is the Pollard rho walk for the discrete logarithm of H base G
// modulo the odd prime P. The tortoise triple maintains x = g^a * h^b
// (mod p); the hare moves at double speed and the walk finishes when the
// two collide.
type LogWalk struct {
	P uint64
	G uint64
	H uint64

	i        uint64
	x, a, b  uint64
	y, c, d  uint64
	finished bool
}

// NewLog constructs a discrete-log walk. The modulus must satisfy
// (p-1)^2 < 2^64.
func NewLog(p, g, h uint64) (*LogWalk, error) {
	if p < 2 {
		return nil, ErrModulusTooSmall
	}
	if p > maxModulus {
		return nil, ErrModulusTooLarge
	}
	return &LogWalk{P: p, G: g, H: h, x: 1, y: 1}, nil
}

// mix applies the partitioned step map: the interval [0, p/3) multiplies by
// g, [p/3, 2p/3) squares, and [2p/3, p) multiplies by h, with the exponents
// tracked mod p-1.
func (w *LogWalk) mix(x, a, b uint64) (uint64, uint64, uint64) {
	switch {
	case x < w.P/3:
		return numtheory.MulMod(w.G, x, w.P), (a + 1) % (w.P - 1), b
	case x < (2*w.P)/3:
		return numtheory.MulMod(x, x, w.P), (2 * a) % (w.P - 1), (2 * b) % (w.P - 1)
	default:
		return numtheory.MulMod(w.H, x, w.P), a, (b + 1) % (w.P - 1)
	}
}

// Next advances the walk one step and returns the resulting state. It
// reports false once the walk has finished.
func (w *LogWalk) Next() (LogStep, bool) {
	if w.finished {
		return LogStep{}, false
	}
	w.x, w.a, w.b = w.mix(w.x, w.a, w.b)
	y, c, d := w.mix(w.y, w.c, w.d)
	w.y, w.c, w.d = w.mix(y, c, d)
	w.i++
	if w.x == w.y {
		w.finished = true
	}
	return LogStep{I: w.i, X: w.x, A: w.a, B: w.b, Y: w.y, C: w.c, D: w.d}, true
}

// Finished reports whether the tortoise and hare have collided.
func (w *LogWalk) Finished() bool {
	return w.finished
}

// Solve recovers the discrete logarithm from the collision relation
// g^a * h^b = g^c * h^d (mod p). It combines like terms into u = a - c and
// v = d - b mod p-1, inverts v modulo p-1 (scaled by d = gcd(v, p-1)), and
// sweeps the d candidate residues. Calling Solve before the walk finishes
// returns ErrNotConverged; if no candidate satisfies g^e = h (mod p), Solve
// returns ErrUnsolvable.
func (w *LogWalk) Solve() (uint64, error) {
	if !w.finished || w.x != w.y {
		return 0, ErrNotConverged
	}
	order := w.P - 1
	u := subMod(w.a, w.c, order)
	v := subMod(w.d, w.b, order)
	if v == 0 {
		// The hare and tortoise carry identical h-exponents, so the
		// collision relation gives no information about the logarithm.
		return 0, ErrUnsolvable
	}
	d, err := numtheory.GCD(v, order)
	if err != nil {
		return 0, err
	}
	s, t, err := numtheory.ExtGCDCoeffs(v, order)
	if err != nil {
		return 0, err
	}
	vInv, err := numtheory.ModInverse(order, v, d, s, t)
	if err != nil {
		return 0, err
	}
	r := numtheory.MulMod(u, vInv, order) / d
	for k := uint64(0); k < d; k++ {
		e := (order/d)*k + r
		if numtheory.ModPow(w.G, e, w.P) == w.H {
			return e, nil
		}
	}
	return 0, ErrUnsolvable
}

// Ratio returns i/sqrt(p), the number of steps taken relative to the
// birthday bound.
func (w *LogWalk) Ratio() float64 {
	return ratio(w.i, w.P)
}

// subMod returns a-b mod m using subtraction with borrow.
func subMod(a, b, m uint64) uint64 {
	if a >= b {
		return (a - b) % m
	}
	return (a + m - b) % m
}
