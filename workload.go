package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/antithesishq/antithesis-sdk-go/assert"
	"github.com/antithesishq/antithesis-sdk-go/lifecycle"
	"github.com/spf13/cobra"

	"github.com/pollardlab/rhoserve/internal/client"
	"github.com/pollardlab/rhoserve/internal/proptest"
)

func init() {
	rootCmd.AddCommand(workloadCmd)

	workloadCmd.Flags().String("addr", "localhost:8080", "rhoserve server address")
	workloadCmd.Flags().Duration("check-timeout", time.Hour, "model checking timeout")
	workloadCmd.Flags().String("artifacts", ".", "directory for storing debugging artifacts")
}

var workloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Start a continuous workload exercising a rhoserve server",
	Run: func(cmd *cobra.Command, args []string) {
		// The entry point for the Antithesis workload, which runs
		// indefinitely. Because we're optimizing for brevity, we simply
		// crash when flags are invalid.
		logger := orFatal(newLogger(cmd.Flags()))
		addr := orFatal(cmd.Flags().GetString("addr"))
		checkTimeout := orFatal(cmd.Flags().GetDuration("check-timeout"))
		artifactDir := orFatal(cmd.Flags().GetString("artifacts"))

		// Before injecting faults, the platform lets us verify that the
		// system is up and running. Dialing completes the connection
		// handshake, so a successful dial means the broker is answering.
		probe := dial(logger, addr)
		probe.CloseAndLog(logger)
		logger.Info("setup complete", "server_addr", addr)
		lifecycle.SetupComplete(map[string]any{"server_addr": addr})

		// Until the workload gets a signal to stop, exercise the server.
		// Each iteration generates a random, concurrent workload, records
		// the results, and verifies them against the response model.
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		for {
			select {
			case <-sig:
				os.Exit(0)
			default:
				exerciseAndVerify(logger, addr, checkTimeout, artifactDir)
			}
		}
	},
}

func exerciseAndVerify(logger *slog.Logger, addr string, timeout time.Duration, artifactDir string) {
	seeds := []uint64{rand.Uint64(), rand.Uint64()}
	logger = logger.With("pcg_seeds", seeds, "server_addr", addr)

	// Generate a concurrent, randomized workload: a set of instructions
	// telling each client to issue a series of prime, log, and rsa
	// requests.
	logger.Debug("generating new workload")
	r := rand.New(rand.NewPCG(seeds[0], seeds[1]))
	workloads := proptest.GenWorkloads(r)

	// Run the workload, recording the timing and result of each
	// operation. To maximize concurrent work, block each client until all
	// the clients are ready to begin.
	logger.Debug("running workload")
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, workload := range workloads {
		wg.Go(func() {
			logger := logger.With("client_id", i)
			c := dial(logger, addr)
			defer c.CloseAndLog(logger)
			<-start
			proptest.RunWorkload(logger, c, workload)
		})
	}
	close(start)
	wg.Wait()
	logger.Debug("workload complete")

	// Verify the recorded histories: per-connection ordering, contiguous
	// streams, and the number-theoretic correctness of every successful
	// terminal record.
	progress, err := proptest.CheckWorkloads(timeout, workloads)
	if err != nil {
		// Reports may include debugging artifacts; surface the
		// interactive visualization of the violated history.
		var perr *proptest.Error
		if errors.As(err, &perr) && perr.Visualization != nil {
			fname := fmt.Sprintf("model-failure-client-%d.html", perr.ClientID)
			fpath := filepath.Join(artifactDir, fname)
			if err := os.WriteFile(fpath, perr.Visualization.Bytes(), 0644); err != nil {
				logger.Error("write model visualization failed", "err", err, "client_id", perr.ClientID)
			}
		}
		assert.Unreachable(
			"Server responses satisfy the correctness model", // appears as-is in reports
			map[string]any{"error": err.Error()},
		)
		logger.Error("response model violated", "err", err)
	} else {
		percent := strconv.FormatFloat(100*progress, 'f', 1 /* precision */, 64 /* bitsize */)
		logger.Info("response model verified", "percent_success", percent)
	}
}

func dial(logger *slog.Logger, addr string) *client.Client {
	for {
		c, err := client.Dial(addr)
		if err != nil {
			logger.Debug("dial failed", "retry_after", time.Second, "err", err)
			time.Sleep(time.Second)
			continue
		}
		return c
	}
}
