package numtheory

import (
	"math/rand/v2"
	"testing"

	"go.akshayshah.org/attest"
)

func TestGCD(t *testing.T) {
	for _, tt := range []struct{ a, b, want uint64 }{
		{100, 80, 20},
		{9409612, 666, 2},
		{2200, 124, 4},
		{1782886218, 34478, 2},
		{7, 7, 7},
	} {
		got, err := GCD(tt.a, tt.b)
		attest.Ok(t, err)
		attest.Equal(t, got, tt.want)
	}

	_, err := GCD(0, 80)
	attest.ErrorIs(t, err, ErrZeroOperand)
	_, err = GCD(80, 0)
	attest.ErrorIs(t, err, ErrZeroOperand)
}

func TestModPow(t *testing.T) {
	attest.Equal(t, ModPow(2, 10, 1000), 24)
	attest.Equal(t, ModPow(3, 4, 7), 4)
	attest.Equal(t, ModPow(5, 0, 11), 1)
	attest.Equal(t, ModPow(29, 2528453, 15239131), 5953042)
}

func TestMulMod(t *testing.T) {
	// Operands near 2^63 overflow a naive product; the 128-bit
	// intermediate keeps the result exact.
	const big = uint64(1) << 62
	attest.Equal(t, MulMod(big, 4, 1<<63), 0)
	attest.Equal(t, MulMod(1782886218, 34478, 9409613), 1782886218*34478%9409613)
}

// The sign ambiguity in ExtGCDCoeffs is resolved by ModInverse; what
// matters is the scaled-inverse identity v * w = d (mod m).
func TestModInverse(t *testing.T) {
	for _, tt := range []struct{ m, v uint64 }{
		{100, 80},
		{9409612, 666},
		{2200, 124},
		{1782886218, 34478},
	} {
		d, err := GCD(tt.v, tt.m)
		attest.Ok(t, err)
		s, tc, err := ExtGCDCoeffs(tt.v, tt.m)
		attest.Ok(t, err)
		w, err := ModInverse(tt.m, tt.v, d, s, tc)
		attest.Ok(t, err)
		attest.Equal(t, MulMod(tt.v, w, tt.m), d)
	}
}

func TestMillerRabinWitness(t *testing.T) {
	// 561 is a Carmichael number; 2 still proves it composite through the
	// squaring sequence.
	attest.True(t, MillerRabinWitness(561, 2))

	// 172947529 = 307 * 613 * 919. Base 17 is a strong liar for it, base
	// 23 is not.
	attest.True(t, !MillerRabinWitness(172947529, 17))
	attest.True(t, MillerRabinWitness(172947529, 23))
	attest.True(t, MillerRabinWitness(172947529, 2))

	// Even numbers are composite immediately.
	attest.True(t, MillerRabinWitness(100, 3))
}

func TestProbablyPrime(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	prime, prob := ProbablyPrime(r, 15239131, 20)
	attest.True(t, prime)
	attest.Equal(t, prob, confidence(20))
	attest.True(t, prob > 0.999999)

	prime, _ = ProbablyPrime(r, 561, 20)
	attest.True(t, !prime)
	prime, _ = ProbablyPrime(r, 172947529, 20)
	attest.True(t, !prime)

	// Degenerate witness intervals.
	prime, _ = ProbablyPrime(r, 2, 20)
	attest.True(t, prime)
	prime, _ = ProbablyPrime(r, 3, 20)
	attest.True(t, prime)
	prime, _ = ProbablyPrime(r, 1, 20)
	attest.True(t, !prime)
	prime, _ = ProbablyPrime(r, 0, 20)
	attest.True(t, !prime)
}
