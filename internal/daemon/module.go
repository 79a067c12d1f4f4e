// Package daemon composes the portd process: store, relay transport,
// receive pipeline, outbox, permission gate, and the control server,
// wired through fx with lifecycle hooks.
package daemon

import (
	"context"
	"time"

	"github.com/port-messenger/portd/internal/bus"
	"github.com/port-messenger/portd/internal/config"
	"github.com/port-messenger/portd/internal/lock"
	"github.com/port-messenger/portd/internal/logging"
	"github.com/port-messenger/portd/internal/metrics"
	"github.com/port-messenger/portd/internal/notify"
	"github.com/port-messenger/portd/internal/outbox"
	"github.com/port-messenger/portd/internal/permission"
	"github.com/port-messenger/portd/internal/port"
	"github.com/port-messenger/portd/internal/receive"
	"github.com/port-messenger/portd/internal/rpc"
	"github.com/port-messenger/portd/internal/session"
	"github.com/port-messenger/portd/internal/status"
	"github.com/port-messenger/portd/internal/store"
	"github.com/port-messenger/portd/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			provideRelay,
			provideNotifier,
			provideDispatcher,
			provideSender,
			provideGate,
			providePortManager,
			provideHandlers,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig() *config.Config {
	return config.LoadOrDefault(session.ConfigPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideRelay(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *transport.Relay {
	reconnect := time.Duration(cfg.Relay.ReconnectSeconds) * time.Second
	return transport.NewRelay(cfg.Relay.URL, reconnect, db, b, logger)
}

func provideNotifier(b *bus.Bus) notify.Notifier {
	return notify.NewBusNotifier(b)
}

func provideDispatcher(db *store.DB, notifier notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *receive.Dispatcher {
	return receive.NewDispatcher(db, notifier, b, m, logger)
}

func provideSender(db *store.DB, relay *transport.Relay, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, relay, b, m, logger)
}

func provideGate(db *store.DB, relay *transport.Relay, logger *zap.Logger) *permission.Gate {
	return permission.NewGate(db, permission.NewRelayRemote(db, relay), logger)
}

func providePortManager(cfg *config.Config, db *store.DB, logger *zap.Logger) *port.Manager {
	return port.NewManager(db, cfg.Relay.URL, logger)
}

func provideHandlers(p Params, machine *status.Machine, db *store.DB, gate *permission.Gate, sender *outbox.Sender, ports *port.Manager) *rpc.Handlers {
	return rpc.NewHandlers(p.SessionName, machine, db, gate, sender, ports)
}

func provideServer(p Params, h *rpc.Handlers, logger *zap.Logger) (*rpc.Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}
	return rpc.NewServer(socketPath, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *rpc.Server, lk *lock.Lock, cfg *config.Config, relay *transport.Relay, dispatcher *receive.Dispatcher, sender *outbox.Sender, machine *status.Machine, m *metrics.Metrics, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			relay.SetHandler(dispatcher.HandleEnvelope)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			if cfg.Metrics.Addr != "" {
				go func() {
					if err := m.Serve(cfg.Metrics.Addr); err != nil {
						logger.Error("metrics listener error", zap.Error(err))
					}
				}()
			}

			sender.Start(context.Background())

			_ = machine.Transition(status.Connecting)
			relay.Start(context.Background())

			// Ready/Reconnecting tracking follows relay connectivity.
			go watchRelayState(b, machine)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			relay.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// watchRelayState mirrors relay connectivity into the state machine.
func watchRelayState(b *bus.Bus, machine *status.Machine) {
	ch, unsub := b.Subscribe("relay.", 8)
	defer unsub()

	for evt := range ch {
		switch evt.Kind {
		case bus.KindRelayConnected:
			_ = machine.Transition(status.Ready)
		case bus.KindRelayDropped:
			_ = machine.Transition(status.Reconnecting)
		}
	}
}
