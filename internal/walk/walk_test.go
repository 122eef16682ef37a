package walk

import (
	"testing"

	"go.akshayshah.org/attest"

	"github.com/pollardlab/rhoserve/internal/numtheory"
)

func TestLogWalkInvariant(t *testing.T) {
	const p, g, h = 48611, 19, 24717
	w, err := NewLog(p, g, h)
	attest.Ok(t, err)

	// At every step the tortoise satisfies x = g^a * h^b (mod p) and the
	// hare satisfies y = g^c * h^d (mod p).
	for {
		step, ok := w.Next()
		if !ok {
			break
		}
		x := numtheory.MulMod(numtheory.ModPow(g, step.A, p), numtheory.ModPow(h, step.B, p), p)
		attest.Equal(t, step.X, x)
		y := numtheory.MulMod(numtheory.ModPow(g, step.C, p), numtheory.ModPow(h, step.D, p), p)
		attest.Equal(t, step.Y, y)
	}
	attest.True(t, w.Finished())

	e, err := w.Solve()
	attest.Ok(t, err)
	attest.Equal(t, e, 37869)
	attest.Equal(t, numtheory.ModPow(g, e, p), h)
}

func TestLogWalkSolve(t *testing.T) {
	for _, tt := range []struct {
		p, g, h uint64
		log     uint64
		steps   uint64
	}{
		{p: 5011, g: 2, h: 2495, log: 3351, steps: 96},
		{p: 17959, g: 17, h: 14226, log: 14557, steps: 47},
		{p: 15239131, g: 29, h: 5953042, log: 2528453, steps: 7368},
	} {
		w, err := NewLog(tt.p, tt.g, tt.h)
		attest.Ok(t, err)

		var last LogStep
		for {
			step, ok := w.Next()
			if !ok {
				break
			}
			last = step
		}
		attest.Equal(t, last.I, tt.steps)
		attest.Equal(t, last.X, last.Y)

		e, err := w.Solve()
		attest.Ok(t, err)
		attest.Equal(t, e, tt.log)
		attest.Equal(t, numtheory.ModPow(tt.g, e, tt.p), tt.h)
		attest.True(t, w.Ratio() > 0)
	}
}

func TestLogWalkNotConverged(t *testing.T) {
	w, err := NewLog(5011, 2, 2495)
	attest.Ok(t, err)
	_, err = w.Solve()
	attest.ErrorIs(t, err, ErrNotConverged)
}

func TestLogWalkModulusTooLarge(t *testing.T) {
	_, err := NewLog(uint64(1)<<32+1, 2, 5)
	attest.ErrorIs(t, err, ErrModulusTooLarge)

	_, err = NewLog(uint64(1)<<32, 2, 5)
	attest.Ok(t, err)
}

func TestFactorWalk(t *testing.T) {
	for _, tt := range []struct {
		n      uint64
		factor uint64
		steps  uint64
	}{
		{n: 2201, factor: 31, steps: 3},
		{n: 9409613, factor: 541, steps: 34},
		{n: 1782886219, factor: 7933, steps: 126},
	} {
		w, err := NewFactor(tt.n)
		attest.Ok(t, err)

		// After step i the tortoise holds f^i(1) and the hare f^2i(1).
		x, y := uint64(1), uint64(1)
		f := func(v uint64) uint64 { return (v*v%tt.n + 1) % tt.n }
		var last FactorStep
		for {
			step, ok := w.Next()
			if !ok {
				break
			}
			x = f(x)
			y = f(f(y))
			attest.Equal(t, step.X, x)
			attest.Equal(t, step.Y, y)
			last = step
		}
		attest.Equal(t, last.I, tt.steps)

		factor, ok := w.Factor()
		attest.True(t, ok)
		attest.Equal(t, factor, tt.factor)
		attest.True(t, 1 < factor && factor < tt.n)
		attest.Equal(t, tt.n%factor, 0)
		attest.Equal(t, factor*(tt.n/factor), tt.n)
		attest.True(t, w.Ratio() > 0)

		// The sequence is fused: stepping past the end keeps reporting
		// completion.
		_, ok = w.Next()
		attest.True(t, !ok)
	}
}

func TestFactorWalkCycleClosure(t *testing.T) {
	// On a prime modulus the walk's collision is an exact cycle closure:
	// no non-trivial factor exists, and the walk gives up rather than
	// looping forever.
	w, err := NewFactor(101)
	attest.Ok(t, err)
	var last FactorStep
	for {
		step, ok := w.Next()
		if !ok {
			break
		}
		last = step
	}
	attest.Equal(t, last.I, 9)
	attest.Equal(t, last.X, last.Y)
	attest.Equal(t, last.G, 101)

	_, ok := w.Factor()
	attest.True(t, !ok)
}

func TestFactorWalkModulusTooLarge(t *testing.T) {
	_, err := NewFactor(uint64(1)<<32 + 1)
	attest.ErrorIs(t, err, ErrModulusTooLarge)
}

func TestModulusTooSmall(t *testing.T) {
	_, err := NewFactor(0)
	attest.ErrorIs(t, err, ErrModulusTooSmall)
	_, err = NewLog(1, 2, 5)
	attest.ErrorIs(t, err, ErrModulusTooSmall)
}
