package walk

import "math"

// A FactorStep is one step of the factoring walk: the step counter, the
// tortoise x, the hare y, and the gcd of their distance with the modulus.
type FactorStep struct {
	I uint64
	X uint64
	Y uint64
	G uint64
	N uint64
}

// A FactorWalk is the Pollard rho factoring walk over the composite
// modulus N, stepping with f(v) = v^2 + 1 mod n. After step i the tortoise
// holds f^i(1) and the hare f^2i(1); the walk finishes on the first step
// whose gcd(|x-y|, n) is a non-trivial divisor of n.
type FactorWalk struct {
	N uint64

	i        uint64
	x, y     uint64
	factor   uint64
	finished bool
}

// NewFactor constructs a factoring walk. The modulus must satisfy
// (n-1)^2 < 2^64.
func NewFactor(n uint64) (*FactorWalk, error) {
	if n < 2 {
		return nil, ErrModulusTooSmall
	}
	if n > maxModulus {
		return nil, ErrModulusTooLarge
	}
	return &FactorWalk{N: n, x: 1, y: 1}, nil
}

func (w *FactorWalk) mix(v uint64) uint64 {
	return (v*v%w.N + 1) % w.N
}

// Next advances the tortoise one hop and the hare two, then takes the gcd
// of their distance with the modulus. It reports false once the walk has
// finished.
func (w *FactorWalk) Next() (FactorStep, bool) {
	if w.finished {
		return FactorStep{}, false
	}
	w.i++
	w.x = w.mix(w.x)
	w.y = w.mix(w.mix(w.y))
	var g uint64
	if w.x == w.y {
		// The rho cycle closed without exposing a factor; every later
		// step would repeat this state, so give up.
		g = w.N
		w.finished = true
	} else {
		g = gcdAbs(w.x, w.y, w.N)
		if g != 1 && g != w.N && w.N%g == 0 {
			w.factor = g
			w.finished = true
		}
	}
	return FactorStep{I: w.i, X: w.x, Y: w.y, G: g, N: w.N}, true
}

// Finished reports whether the walk has terminated.
func (w *FactorWalk) Finished() bool {
	return w.finished
}

// Factor returns the non-trivial divisor surfaced by the walk. It reports
// false if the walk has not terminated or the cycle closed without finding
// one; the paired factor is N divided by the returned value.
func (w *FactorWalk) Factor() (uint64, bool) {
	if w.factor == 0 {
		return 0, false
	}
	return w.factor, true
}

// Ratio returns i/sqrt(n), the number of steps taken relative to the
// birthday bound.
func (w *FactorWalk) Ratio() float64 {
	return ratio(w.i, w.N)
}

func gcdAbs(x, y, n uint64) uint64 {
	a := x - y
	if y > x {
		a = y - x
	}
	for n != 0 {
		a, n = n, a%n
	}
	return a
}

func ratio(i, m uint64) float64 {
	return float64(i) / math.Sqrt(float64(m))
}
