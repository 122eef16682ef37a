package main

import (
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pollardlab/rhoserve/internal/ui"
	"github.com/pollardlab/rhoserve/internal/wire"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Start the interactive terminal client",
	Long:  "Connect to a rhoserve server and drive it from the terminal.",
	Run: func(cmd *cobra.Command, args []string) {
		// Logs go to stderr so they never land inside the rendered UI.
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		if code := runClient(cmd, logger); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)

	clientCmd.Flags().String("addr", "localhost:8080", "server address to connect to")
}

// runClient drives the interface state machine against a live connection.
// It returns a process exit code instead of exiting so that the deferred
// terminal restore always runs.
func runClient(cmd *cobra.Command, logger *slog.Logger) int {
	addr := orFatal(cmd.Flags().GetString("addr"))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		logger.Error("dial failed", "addr", addr, "err", err)
		return 1
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		logger.Error("raw mode failed", "err", err)
		return 1
	}
	defer func() {
		if err := term.Restore(fd, oldState); err != nil {
			logger.Error("terminal restore failed", "err", err)
		}
	}()

	session := ui.New(os.Stdout, os.Stdin)

	// The server speaks first.
	resp, err := wire.ReadResponse(conn)
	if err != nil {
		logger.Error("handshake failed", "err", err)
		return 1
	}
	if err := session.HandleResponse(resp); err != nil {
		logger.Error("handshake failed", "err", err)
		return 1
	}

	for {
		req, err := session.NextRequest()
		if err != nil {
			logger.Error("input failed", "err", err)
			return 1
		}
		if err := wire.WriteRequest(conn, req); err != nil {
			logger.Error("send request failed", "err", err)
			return 1
		}
		if session.State() == ui.StateQuit {
			return 0
		}
		for session.Awaiting() {
			resp, err := wire.ReadResponse(conn)
			if err != nil {
				logger.Error("read response failed", "err", err)
				return 1
			}
			if err := session.HandleResponse(resp); err != nil {
				logger.Error("protocol violation", "err", err)
				return 1
			}
		}
	}
}
