// Package proptest provides utilities for writing property-based tests
// for rhoserve servers.
package proptest

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/anishathalye/porcupine"
	"github.com/antithesishq/antithesis-sdk-go/assert"

	"github.com/pollardlab/rhoserve/internal/client"
	"github.com/pollardlab/rhoserve/internal/numtheory"
	"github.com/pollardlab/rhoserve/internal/wire"
)

// Error is sometimes returned from CheckWorkloads, indicating that
// verification timed out or that the observed behavior violates the
// server's correctness model.
//
// If the Error indicates a violation, Visualization will be an
// interactive, self-contained HTML document demonstrating it.
type Error struct {
	ClientID      int
	TimedOut      bool
	Visualization *bytes.Buffer
}

// Error implements error.
func (e *Error) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("client %d: model timed out", e.ClientID)
	}
	return fmt.Sprintf("client %d: history violates the response model", e.ClientID)
}

// Operation names used in workloads.
const (
	opPrime = "prime"
	opLog   = "log"
	opRSA   = "rsa"
)

// Arguments for calling a client; used in the porcupine model below.
type args struct {
	Op string
	G  uint64
	H  uint64
	P  uint64
	N  uint64
}

// Results from calling a client; used in the porcupine model below.
type rets struct {
	Err      error
	Prime    bool
	Log      uint64
	Solved   bool
	Factor   uint64
	Factored bool
	Ordered  bool
}

// Odd primes small enough that the walks stay in the thousands of steps,
// plus a few deliberate composites for the primality op.
var (
	primePool     = []uint64{2003, 5011, 17959, 48611, 104729, 15239131}
	generatorPool = []uint64{2, 3, 5, 6, 7, 17, 19, 29}
	semiprimePool = []uint64{2201, 9409613, 1782886219}
	primeTestPool = []uint64{2, 561, 5011, 15239131, 104729, 172947529, 1000000, 17959}
)

// GenWorkloads generates a workload for a variable number of clients.
// Each workload is a short series of prime, log, and rsa requests drawn
// from pools of moduli whose walks terminate quickly.
func GenWorkloads(r *rand.Rand) [][]porcupine.Operation {
	numClients := r.IntN(3) + 2 // 2-4 clients
	opsPerClient := r.IntN(5) + 4
	workloads := make([][]porcupine.Operation, numClients)
	for clientID := range workloads {
		workload := make([]porcupine.Operation, opsPerClient)
		for i := range workload {
			workload[i] = porcupine.Operation{
				ClientId: clientID,
				Input:    genArgs(r),
				Output:   &rets{},
			}
		}
		workloads[clientID] = workload
	}
	return workloads
}

func genArgs(r *rand.Rand) *args {
	switch r.IntN(3) {
	case 0:
		return &args{Op: opPrime, P: primeTestPool[r.IntN(len(primeTestPool))]}
	case 1:
		p := primePool[r.IntN(len(primePool))]
		return &args{
			Op: opLog,
			G:  generatorPool[r.IntN(len(generatorPool))],
			H:  2 + r.Uint64N(p-2),
			P:  p,
		}
	default:
		return &args{Op: opRSA, N: semiprimePool[r.IntN(len(semiprimePool))]}
	}
}

// RunWorkload runs a workload on a client.
func RunWorkload(logger *slog.Logger, c *client.Client, workload []porcupine.Operation) {
	for i := range workload {
		in := workload[i].Input.(*args)
		out := workload[i].Output.(*rets)
		logger.Debug("running workload", "op", in.Op, "ops_complete", i, "ops_left", len(workload)-i)
		workload[i].Call = time.Now().UnixNano()
		switch in.Op {
		case opPrime:
			resp, err := c.Prime(in.P)
			out.Err = err
			if _, ok := resp.(wire.Prime); ok {
				out.Prime = true
			}
		case opLog:
			items, terminal, err := c.Log(in.G, in.H, in.P)
			out.Err = err
			out.Ordered = logItemsOrdered(items, terminal)
			if r, ok := terminal.(wire.SuccessfulLog); ok {
				out.Solved = true
				out.Log = r.Log
			}
		case opRSA:
			items, terminal, err := c.RSA(in.N, 65537)
			out.Err = err
			out.Ordered = rsaItemsOrdered(items)
			if r, ok := terminal.(wire.SuccessfulRSA); ok {
				out.Factored = true
				out.Factor = r.P
			}
		default:
			assert.Unreachable("Unexpected operation in workload run", map[string]any{"op": in.Op})
		}
		workload[i].Return = time.Now().UnixNano()
	}
}

// logItemsOrdered checks invariant stream properties: indices are
// contiguous from one, and only the final item may carry the collision.
func logItemsOrdered(items []wire.LogItem, terminal wire.Response) bool {
	if terminal == nil {
		return false
	}
	for i, item := range items {
		if item.I != uint64(i)+1 {
			return false
		}
		if item.X == item.Y && i != len(items)-1 {
			return false
		}
	}
	return true
}

func rsaItemsOrdered(items []wire.RSAItem) bool {
	for i, item := range items {
		if item.I != uint64(i)+1 {
			return false
		}
	}
	return true
}

// CheckWorkloads verifies that the real-world behavior of the server, as
// seen by RunWorkload, satisfies the response model: responses arrive in
// request order, streams are contiguous, and every "successful" terminal
// record states a true number-theoretic fact. When no violations are
// found, CheckWorkloads also returns the fraction of operations that
// succeeded (as a measure of liveness).
//
// Verification may time out; if it fails or times out, the returned error
// is an *Error.
func CheckWorkloads(deadline time.Duration, workloads [][]porcupine.Operation) (float64, error) {
	// Requests on one connection are independent, so we partition the
	// history per client and check each connection's serial history on its
	// own. (Porcupine supports partitioning via Model.Partition, but doing
	// it ourselves lets us restrict the visualization to a single client.)
	var successes, total float64
	for _, history := range workloads {
		for _, op := range history {
			total++
			if op.Output.(*rets).Err == nil {
				successes++
			}
		}
	}
	progress := successes / total

	for clientID, history := range workloads {
		model := newModel()
		cr, info := porcupine.CheckOperationsVerbose(model, history, deadline)
		if cr == porcupine.Ok {
			continue
		}
		if cr == porcupine.Unknown {
			return 0, &Error{ClientID: clientID, TimedOut: true}
		}
		var buf bytes.Buffer
		if err := porcupine.Visualize(model, info, &buf); err != nil {
			return 0, err
		}
		return 0, &Error{ClientID: clientID, Visualization: &buf}
	}
	return progress, nil
}

// newModel builds the porcupine model. The server is stateless across
// requests, so the model carries no state; each step checks that the
// response is a correct answer for its request.
func newModel() porcupine.Model {
	return porcupine.Model{
		Init: func() any { return struct{}{} },
		Step: func(state, input, output any) (bool, any) {
			in := input.(*args)
			out := output.(*rets)
			if out.Err != nil {
				// Transport failures carry no verdict to check.
				return true, state
			}
			switch in.Op {
			case opPrime:
				return checkPrime(in, out), state
			case opLog:
				if !out.Ordered {
					return false, state
				}
				if out.Solved {
					return numtheory.ModPow(in.G, out.Log, in.P) == in.H%in.P, state
				}
				return true, state
			case opRSA:
				if !out.Ordered {
					return false, state
				}
				if out.Factored {
					return 1 < out.Factor && out.Factor < in.N && in.N%out.Factor == 0, state
				}
				return true, state
			default:
				assert.Unreachable("Unexpected step operation", map[string]any{"op": in.Op})
				return true, state
			}
		},
		DescribeOperation: func(input, output any) string {
			return describe(input.(*args), output.(*rets))
		},
	}
}

// checkPrime re-tests the input locally. Both sides are probabilistic,
// but twenty witness rounds each make disagreement on a true verdict
// vanishingly unlikely.
func checkPrime(in *args, out *rets) bool {
	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	prime, _ := numtheory.ProbablyPrime(r, in.P, 20)
	return prime == out.Prime
}

func describe(in *args, out *rets) string {
	if out.Err != nil {
		return fmt.Sprintf("%s = ERR %v", in.Op, out.Err)
	}
	switch in.Op {
	case opPrime:
		return fmt.Sprintf("PRIME %d = %t", in.P, out.Prime)
	case opLog:
		if out.Solved {
			return fmt.Sprintf("LOG g=%d h=%d p=%d = %d", in.G, in.H, in.P, out.Log)
		}
		return fmt.Sprintf("LOG g=%d h=%d p=%d = unsolvable", in.G, in.H, in.P)
	case opRSA:
		if out.Factored {
			return fmt.Sprintf("RSA n=%d = %d", in.N, out.Factor)
		}
		return fmt.Sprintf("RSA n=%d = no factor", in.N)
	default:
		return fmt.Sprintf("UNKNOWN %v", in.Op)
	}
}
