// Package numtheory provides the modular arithmetic that underpins the
// Pollard walks and the Miller-Rabin primality test.
//
// All quantities are non-negative 64-bit integers. MulMod and ModPow
// multiply through a 128-bit intermediate, so they are exact for any uint64
// operands and a non-zero modulus. ModInverse compares plain 64-bit
// products, which is exact while m*s and v*t fit in 64 bits.
package numtheory

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"
)

// ErrZeroOperand signals that GCD was called with a zero operand; the
// Euclidean algorithm is only defined for positive integers.
var ErrZeroOperand = errors.New("gcd of zero")

// ErrNoInverse signals that none of the sign combinations produced by
// ExtGCDCoeffs yields a scaled modular inverse.
var ErrNoInverse = errors.New("no scaled inverse found")

// MulMod returns a*b mod n without overflow.
func MulMod(a, b, n uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi%n, lo, n)
	return rem
}

// GCD returns the greatest common divisor of a and b. Both operands must be
// positive.
func GCD(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, ErrZeroOperand
	}
	return gcd(a, b), nil
}

func gcd(a, b uint64) uint64 {
	r := a % b
	for r > 0 {
		a = b
		b = r
		r = a % b
	}
	return b
}

// ModPow returns g^e mod n by right-to-left binary exponentiation.
func ModPow(g, e, n uint64) uint64 {
	r := uint64(1) % n
	g %= n
	for e > 0 {
		if e%2 == 1 {
			r = MulMod(r, g, n)
		}
		g = MulMod(g, g, n)
		e /= 2
	}
	return r
}

// ExtGCDCoeffs returns non-negative coefficients (s, t) from the
// continued-fraction convergents of a/b such that one of as-bt, at-bs,
// bs-at, or bt-as equals gcd(a, b). The sign ambiguity is resolved by
// ModInverse. Both operands must be positive.
func ExtGCDCoeffs(a, b uint64) (uint64, uint64, error) {
	if a == 0 || b == 0 {
		return 0, 0, ErrZeroOperand
	}
	ps := []uint64{1}
	qs := []uint64{0, 1}
	q := a / b
	ps = append(ps, q)
	r := a % b
	for r > 0 {
		a = b
		b = r
		q = a / b
		p1, p2 := ps[len(ps)-1], ps[len(ps)-2]
		q1, q2 := qs[len(qs)-1], qs[len(qs)-2]
		ps = append(ps, p1*q+p2)
		qs = append(qs, q1*q+q2)
		r = a % b
	}
	return ps[len(ps)-2], qs[len(qs)-2], nil
}

// ModInverse returns w such that v*w mod m = d, where d = gcd(v, m) and
// (s, t) are the coefficients from ExtGCDCoeffs(v, m). It probes the four
// sign combinations of the gcd equation; whichever holds selects w. The
// identity v*w mod m = d is re-checked before returning, so a wrong branch
// surfaces as ErrNoInverse rather than a silently unscaled result.
func ModInverse(m, v, d, s, t uint64) (uint64, error) {
	var w uint64
	switch {
	case m*s > v*t && m*s-v*t == d:
		k := m
		for k < t {
			k += k
		}
		w = (k - t) % m
	case m*t > v*s && m*t-v*s == d:
		k := m
		for k < s {
			k += k
		}
		w = (k - s) % m
	case v*t > m*s && v*t-m*s == d:
		w = t % m
	default:
		w = s % m
	}
	if MulMod(v, w, m) != d {
		return 0, fmt.Errorf("%w: m=%d v=%d d=%d", ErrNoInverse, m, v, d)
	}
	return w, nil
}

// MillerRabinWitness reports whether a proves n composite. Even n and bases
// sharing a non-trivial factor with n are composite immediately; otherwise
// n-1 is written as 2^k * q with q odd and the squaring sequence of a^q is
// examined.
func MillerRabinWitness(n, a uint64) bool {
	if n < 2 || n%2 == 0 {
		return true
	}
	if d := gcd(a, n); 1 < d && d < n {
		return true
	}
	q := n - 1
	k := 0
	for q%2 == 0 {
		q /= 2
		k++
	}
	a = ModPow(a, q, n)
	if a == 1 {
		return false
	}
	for i := 0; i < k; i++ {
		if a == n-1 {
			return false
		}
		a = MulMod(a, a, n)
	}
	return true
}

// ProbablyPrime runs up to the given number of independent Miller-Rabin
// witnesses sampled uniformly from [2, p). It reports whether p survived
// every round, along with the confidence 1 - 0.25^rounds of a "prime"
// verdict. Witnesses must be positive.
func ProbablyPrime(r *rand.Rand, p uint64, witnesses int) (bool, float64) {
	if p < 2 {
		return false, 1
	}
	if p == 2 || p == 3 {
		// The witness interval [2, p) is degenerate; both are prime.
		return true, 1
	}
	if p%2 == 0 {
		return false, 1
	}
	for k := 0; k < witnesses; k++ {
		a := 2 + r.Uint64N(p-2)
		if MillerRabinWitness(p, a) {
			return false, 1
		}
	}
	return true, confidence(witnesses)
}

func confidence(rounds int) float64 {
	prob := 1.0
	for i := 0; i < rounds; i++ {
		prob *= 0.25
	}
	return 1 - prob
}
