package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingctan/sharedpainter/internal/config"
	"github.com/kingctan/sharedpainter/pkg/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func relayCmd(configPath *string) *cobra.Command {
	var (
		listen     string
		tcpPort    int
		maxMembers int
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a relay server",
		Long: `Run a relay server painters join through.

The relay accepts WebSocket sessions on /ws and, when a TCP port is
set, plain TCP sessions. It keeps one roster per channel, elects the
super-peer and routes sync requests. Metrics are served on /metrics.

Examples:
  sharedpaint relay
  sharedpaint relay --listen=:9000 --tcp-port=4000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrNew(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.RelayServer.Listen = listen
			}
			if cmd.Flags().Changed("tcp-port") {
				cfg.RelayServer.TCPPort = tcpPort
			}
			if cmd.Flags().Changed("max-members") {
				cfg.RelayServer.MaxMembers = maxMembers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRelay(cfg)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (default from config)")
	cmd.Flags().IntVar(&tcpPort, "tcp-port", 0, "Plain TCP port, 0 disables")
	cmd.Flags().IntVar(&maxMembers, "max-members", 0, "Members per channel, 0 means no limit")

	return cmd
}

func runRelay(cfg *config.Config) error {
	logger := newLogger(cfg.Log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := relay.New(relay.Config{
		Addr:           cfg.RelayServer.Listen,
		TCPPort:        cfg.RelayServer.TCPPort,
		AllowedOrigins: cfg.RelayServer.AllowedOrigins,
		MaxMembers:     cfg.RelayServer.MaxMembers,
		KeepAlive:      cfg.RelayKeepAlive(),
		AppVersion:     version,
		Registry:       registry,
		Logger:         logger,
	})

	printBanner()
	success("Relay listening on %s", cfg.RelayServer.Listen)
	if cfg.RelayServer.TCPPort > 0 {
		info("TCP sessions on port %d", cfg.RelayServer.TCPPort)
	}
	info("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}
