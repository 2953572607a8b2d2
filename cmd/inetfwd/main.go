// Command inetfwd runs a standalone TCP/IP forwarding/echo relay. It is a
// thin wrapper around pkg/forwardserver intended for manual testing, e.g.
// pointing a client at a relay in front of a real service, or at an echo
// relay with no remote at all.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sammck-go/logger"
	"github.com/spf13/cobra"

	"github.com/vitaly-krugl/inetpy/pkg/forwardserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath    string
		listenNetwork string
		listenAddr    string
		remoteNetwork string
		remoteAddr    string
		pairFamily    string
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:           "inetfwd",
		Short:         "TCP/IP forwarding/echo relay for testing",
		Long:          "inetfwd listens on a local address and relays each client connection\nto a remote address, or echoes the client's bytes back when no remote\nis given.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &forwardserver.Config{}
			if configPath != "" {
				loaded, err := forwardserver.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			if listenNetwork != "" {
				cfg.ListenNetwork = listenNetwork
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			if remoteNetwork != "" {
				cfg.RemoteNetwork = remoteNetwork
			}
			if remoteAddr != "" {
				cfg.RemoteAddr = remoteAddr
			}
			if pairFamily != "" {
				cfg.PairFamily = pairFamily
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			cfg.ApplyDefaults()

			level, err := forwardserver.ParseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			lg, err := logger.New(
				logger.WithWriter(os.Stderr),
				logger.WithLogLevel(level),
				logger.WithPrefix("inetfwd"),
			)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			server, err := forwardserver.New(lg, *cfg)
			if err != nil {
				return err
			}
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", server.Addr())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			sig := <-sigCh
			lg.ILogf("received %s, stopping", sig)
			return server.Stop()
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&listenNetwork, "listen-network", "", `listening network: "tcp", "tcp4", "tcp6" or "unix"`)
	flags.StringVarP(&listenAddr, "listen", "l", "", "listen address (port 0 picks an ephemeral port)")
	flags.StringVar(&remoteNetwork, "remote-network", "", `remote network: "tcp", "tcp4", "tcp6" or "unix"`)
	flags.StringVarP(&remoteAddr, "remote", "r", "", "remote address to forward to (omit for echo mode)")
	flags.StringVar(&pairFamily, "pair-family", "", "loopback pair family for echo mode")
	flags.StringVar(&logLevel, "log-level", "", "log level: error, warning, info, debug or trace")
	return cmd
}
