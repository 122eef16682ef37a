package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pollardlab/rhoserve/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rhoserve server",
	Long:  "Start the rhoserve server.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := orFatal(newLogger(cmd.Flags()))

		srv := server.New(server.Config{
			EventBuffer: orFatal(cmd.Flags().GetInt("event-buffer")),
			QueueSize:   orFatal(cmd.Flags().GetInt("queue-size")),
			Witnesses:   orFatal(cmd.Flags().GetInt("witnesses")),
		}, logger)

		addr := orFatal(cmd.Flags().GetString("addr"))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("listen failed", "addr", addr, "err", err)
			os.Exit(1)
		}

		if maddr := orFatal(cmd.Flags().GetString("metrics-addr")); maddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				logger.Info("serving metrics", "addr", maddr)
				if err := http.ListenAndServe(maddr, mux); err != nil {
					logger.Error("metrics listener failed", "err", err)
				}
			}()
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", addr)
			serveErr <- srv.ServeTCP(ln)
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			if err := srv.Close(); err != nil {
				logger.Error("close failed", "err", err)
				os.Exit(1)
			}
			if err := <-serveErr; err != nil {
				logger.Error("serve failed", "err", err)
				os.Exit(1)
			}
		case err := <-serveErr:
			if err != nil {
				logger.Error("serve failed", "err", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "localhost:8080", "address to listen on")
	serveCmd.Flags().Int("event-buffer", 64, "reader-to-broker event channel capacity")
	serveCmd.Flags().Int("queue-size", 32, "per-client outbound queue capacity")
	serveCmd.Flags().Int("witnesses", 20, "Miller-Rabin rounds per primality request")
	serveCmd.Flags().String("metrics-addr", "", "optional address for the Prometheus /metrics listener")
}
