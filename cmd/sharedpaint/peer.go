package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingctan/sharedpainter/internal/config"
	"github.com/kingctan/sharedpainter/pkg/discovery"
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/paintmgr"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/session"
	"github.com/kingctan/sharedpainter/pkg/snapshot"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

func peerCmd(configPath *string) *cobra.Command {
	var (
		relayURL string
		channel  string
		nick     string
		connect  string
		server   bool
		discover bool
		restore  string
	)

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Join a channel and paint",
		Long: `Join a paint channel as a painter.

The peer joins through a relay, connects directly to another painter,
or finds a server on the LAN. Lines typed on stdin are chat messages;
type /help for drawing commands. The drawing is autosaved to the
configured snapshot store.

Examples:
  sharedpaint peer --relay=ws://relay.local:8080/ws --channel=team
  sharedpaint peer --server --discover
  sharedpaint peer --connect=192.168.1.20:4001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrNew(*configPath)
			if err != nil {
				return err
			}
			if relayURL != "" {
				cfg.Relay.URL = relayURL
			}
			if channel != "" {
				cfg.Channel = channel
			}
			if nick != "" {
				cfg.NickName = nick
			}
			if server {
				cfg.Server.Enabled = true
			}
			if discover {
				cfg.Discovery.Enabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.UserID == "" {
				// Persist the generated identity so reconnects keep it.
				if err := cfg.SaveTo(*configPath); err != nil {
					return err
				}
			}
			return runPeer(cfg, connect, restore)
		},
	}

	cmd.Flags().StringVarP(&relayURL, "relay", "r", "", "Relay URL (ws://, wss:// or host:port)")
	cmd.Flags().StringVar(&channel, "channel", "", "Channel to join (default from config)")
	cmd.Flags().StringVarP(&nick, "nick", "n", "", "Nick name")
	cmd.Flags().StringVar(&connect, "connect", "", "Connect directly to a painter at host:port")
	cmd.Flags().BoolVarP(&server, "server", "s", false, "Accept peers so this painter can be super-peer")
	cmd.Flags().BoolVarP(&discover, "discover", "d", false, "Find servers on the LAN")
	cmd.Flags().StringVar(&restore, "restore", "", "Load a saved snapshot before joining")

	return cmd
}

func runPeer(cfg *config.Config, connect, restore string) error {
	logger := newLogger(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcfg := paintmgr.Config{
		AppVersion:      version,
		UserID:          cfg.UserID,
		NickName:        cfg.NickName,
		Channel:         cfg.Channel,
		ServerHost:      cfg.Server.Host,
		ServerPort:      cfg.Server.Port,
		ServerPortTries: cfg.Server.PortTries,
		StreamPort:      cfg.Discovery.StreamPort,
		SyncTimeout:     cfg.SyncTimeout(),
		AutoConnect:     cfg.Discovery.AutoConnect,
		Reconnect:       cfg.Relay.Reconnect,
		MaxReconnect:    cfg.MaxReconnect(),
		Debug:           cfg.Debug,
		Tracer:          otel.Tracer("github.com/kingctan/sharedpainter"),
		Logger:          logger,
	}
	if cfg.Discovery.Enabled {
		mcfg.Discovery = &discovery.Config{
			Host:            cfg.Server.Host,
			BroadcastAddr:   cfg.Discovery.BroadcastAddr,
			ProbePort:       cfg.Discovery.ProbePort,
			TextPort:        cfg.Discovery.TextPort,
			ControlBasePort: cfg.Discovery.ControlPort,
		}
	}

	mgr := paintmgr.New(mcfg, &consoleObserver{logger: logger})
	defer mgr.Close()

	store, err := snapshot.Open(ctx, cfg.Snapshot.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	if restore != "" {
		blob, err := store.Load(ctx, restore)
		if err != nil {
			return fmt.Errorf("restore %s: %w", restore, err)
		}
		if err := mgr.DeserializeState(ctx, blob); err != nil {
			return err
		}
		success("Restored %q (%d tasks)", restore, mgr.Log().Len())
	}

	printBanner()
	info("Painter %s on channel %q", mgr.SelfID(), cfg.Channel)

	if cfg.Server.Enabled {
		port, err := mgr.StartServer(ctx, cfg.Server.Port)
		if err != nil {
			return err
		}
		success("Accepting peers on port %d", port)
		if cfg.Server.Advertise && cfg.Discovery.Enabled {
			if err := mgr.Advertise(); err != nil {
				warn("mDNS advertise failed: %v", err)
			}
		}
	}

	if cfg.Discovery.Enabled {
		if err := mgr.StartDiscovery(ctx); err != nil {
			return err
		}
		if cfg.Discovery.MDNS {
			go func() {
				if err := mgr.Browse(ctx); err != nil {
					logger.Warn("mdns browse stopped", "error", err)
				}
			}()
		}
	}

	switch {
	case cfg.Relay.URL != "":
		if err := mgr.Join(ctx, cfg.Relay.URL, cfg.Channel); err != nil {
			return err
		}
		success("Joining through %s", cfg.Relay.URL)
	case connect != "":
		if err := mgr.ConnectToPeer(ctx, connect); err != nil {
			return err
		}
		success("Connecting to %s", connect)
	case cfg.Discovery.Enabled:
		found, err := mgr.FindServer(ctx)
		if err != nil {
			warn("Server probe failed: %v", err)
		} else if !found {
			info("No server found on the LAN")
		}
	}

	if interval := cfg.AutosaveInterval(); interval > 0 {
		saver := snapshot.NewAutosaver(store, cfg.Snapshot.Name, mgr.SerializeState,
			snapshot.WithInterval(interval),
			snapshot.WithAutosaveLogger(logger))
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = saver.Run(ctx)
		}()
		// Wait for the final save before closing the manager.
		defer func() {
			stop()
			<-done
		}()
	}

	c := &console{
		p:      mgr,
		out:    os.Stdout,
		nextID: lastOwnItemID(mgr.Log().Scene().Items(), mgr.SelfID()),
		users:  mgr.Users().Users,
		find:   mgr.Log().Scene().Find,
	}
	info("Type /help for commands, Ctrl+C to leave")

	inputDone := make(chan error, 1)
	go func() { inputDone <- c.run(ctx, os.Stdin) }()

	select {
	case <-ctx.Done():
	case err := <-inputDone:
		if err != nil {
			logger.Warn("console stopped", "error", err)
		}
	}
	fmt.Println("\n  Leaving...")
	return nil
}

func lastOwnItemID(items []*paint.Item, owner string) int64 {
	var last int64
	for _, it := range items {
		if it.Key.Owner == owner && it.Key.ID > last {
			last = it.Key.ID
		}
	}
	return last
}

// consoleObserver prints what other painters do.
type consoleObserver struct {
	paintmgr.BaseObserver
	logger *slog.Logger
}

func (o *consoleObserver) OnConnected(role session.Role, remote string) {
	o.logger.Info("connected", "role", role.String(), "remote", remote)
}

func (o *consoleObserver) OnDisconnected(role session.Role, remote string, err error) {
	o.logger.Info("disconnected", "role", role.String(), "remote", remote, "error", err)
}

func (o *consoleObserver) OnSyncStarted(fromID string) {
	info("Receiving drawing from %s...", fromID)
}

func (o *consoleObserver) OnSyncCompleted() {
	success("Drawing synchronized")
}

func (o *consoleObserver) OnRosterChanged(count int) {
	info("%d painters in the channel", count)
}

func (o *consoleObserver) OnNickNameChanged(_, prev, next string) {
	info("%s is now %s", prev, next)
}

func (o *consoleObserver) OnChatMessage(_, nickName, message string) {
	fmt.Printf("<%s> %s\n", nickName, message)
}

func (o *consoleObserver) OnBroadcastText(_, _, nickName, message string) {
	fmt.Printf("[lan] <%s> %s\n", nickName, message)
}

func (o *consoleObserver) OnTaskExecuted(index int, t *paint.Task) {
	o.logger.Debug("task executed", "index", index, "kind", t.Kind.String())
}

func (o *consoleObserver) OnServerFound(s *protocol.ServerInfo) {
	info("Server found at %s:%d", s.Addr, s.Port)
}

func (o *consoleObserver) OnError(err error) {
	warn("%v", err)
}
