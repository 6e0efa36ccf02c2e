// Package main runs one world channel: packet acceptors, the cross-channel
// relay, the idle watchdog and the bazaar refresher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/nosgate/internal/config"
	"github.com/cory-johannsen/nosgate/internal/frontend/handlers"
	"github.com/cory-johannsen/nosgate/internal/frontend/telnet"
	"github.com/cory-johannsen/nosgate/internal/frontend/websocket"
	"github.com/cory-johannsen/nosgate/internal/game/bazaar"
	"github.com/cory-johannsen/nosgate/internal/game/gate"
	"github.com/cory-johannsen/nosgate/internal/game/group"
	"github.com/cory-johannsen/nosgate/internal/game/message"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/game/world"
	"github.com/cory-johannsen/nosgate/internal/gameserver"
	"github.com/cory-johannsen/nosgate/internal/observability"
	"github.com/cory-johannsen/nosgate/internal/relay"
	"github.com/cory-johannsen/nosgate/internal/scripting"
	"github.com/cory-johannsen/nosgate/internal/server"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.Int("channel", cfg.Server.ChannelID))

	logger.Info("starting world server",
		zap.String("world", cfg.Server.WorldName),
		zap.String("telnet_addr", cfg.Telnet.Addr()),
	)

	mapDefs, err := world.LoadMapsFromFile(cfg.Content.MapsFile)
	if err != nil {
		logger.Fatal("loading maps", zap.Error(err))
	}
	maps, err := world.NewManager(mapDefs)
	if err != nil {
		logger.Fatal("creating map manager", zap.Error(err))
	}
	if _, ok := maps.Map(cfg.World.StartMap); !ok {
		logger.Fatal("start map is not defined", zap.String("start_map", cfg.World.StartMap))
	}

	messages, err := message.LoadFile(cfg.Content.MessagesFile)
	if err != nil {
		logger.Fatal("loading message catalog", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("maps", maps.Count()),
		zap.Int("messages", messages.Len()),
	)

	var scripts *scripting.Manager
	if cfg.Content.ScriptDir != "" {
		scripts = scripting.NewManager(logger)
		if err := scripts.LoadTree(cfg.Content.ScriptDir, cfg.Content.ScriptInstructionLimit); err != nil {
			logger.Fatal("loading chat scripts", zap.Error(err))
		}
		defer scripts.Close()
		logger.Info("chat scripts loaded", zap.Strings("scopes", scripts.Scopes()))
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database,
		postgres.WithApplicationName(fmt.Sprintf("nosgate-%s-ch%d", cfg.Server.WorldName, cfg.Server.ChannelID)))
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	repos := pool.Repositories()
	listings := repos.Bazaar

	market := bazaar.NewStore(gate.New(), cfg.World.GateWaitTimeout)
	if err := market.Refresh(ctx, listings); err != nil {
		logger.Warn("initial bazaar refresh failed", zap.Error(err))
	}

	deps := gameserver.Deps{
		Config:     cfg.World,
		Sessions:   session.NewManager(),
		Groups:     group.NewRegistry(cfg.World.GroupCapacity),
		Maps:       maps,
		Messages:   messages,
		Bazaar:     market,
		Scripts:    scripts,
		Characters: repos.Characters,
		Relations:  repos.Relations,
		Logs:       repos.Logs,
		Logger:     logger,
	}

	var relayClient *relay.Client
	if cfg.Relay.Enabled && len(cfg.Relay.Peers) > 0 {
		relayClient, err = relay.NewClient(cfg.Relay.Peers, cfg.Relay.Timeout, logger)
		if err != nil {
			logger.Fatal("creating relay client", zap.Error(err))
		}
		defer relayClient.Close()
		// deps.Relay stays a nil interface when the relay is off.
		deps.Relay = relayClient
	}

	w := gameserver.NewWorld(deps)
	gateway := handlers.NewGateway(repos.Accounts, repos.Characters, repos.Relations, w, w.Router(), logger)

	lc := server.NewLifecycle(logger)

	acceptor := telnet.NewAcceptor(cfg.Telnet, telnet.HandlerFunc(func(ctx context.Context, conn *telnet.Conn) error {
		return gateway.Serve(ctx, conn)
	}), logger)
	lc.Add("telnet", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	if cfg.WebSocket.Enabled {
		wsServer := websocket.NewServer(cfg.WebSocket, func(ctx context.Context, conn *websocket.Conn) error {
			return gateway.Serve(ctx, conn)
		}, logger)
		lc.Add("websocket", &server.FuncService{
			StartFn: wsServer.ListenAndServe,
			StopFn:  wsServer.Stop,
		})
	}

	if cfg.Relay.Enabled {
		grpcServer := grpc.NewServer()
		relay.NewServer(w, logger).Register(grpcServer)
		lc.Add("relay", &server.FuncService{
			StartFn: func() error {
				lis, err := net.Listen("tcp", cfg.Relay.Addr())
				if err != nil {
					return err
				}
				logger.Info("relay listening", zap.String("addr", lis.Addr().String()))
				return grpcServer.Serve(lis)
			},
			StopFn: grpcServer.GracefulStop,
		})
	}

	lc.Add("watchdog", server.NewContextService(w.Watchdog().Run))

	bazaarTicks := gameserver.NewTickManager(cfg.World.BazaarRefresh, logger)
	bazaarTicks.Register("bazaar_refresh", func(ctx context.Context) {
		if err := market.Refresh(ctx, listings); err != nil {
			logger.Warn("bazaar refresh failed", zap.Error(err))
			return
		}
		logger.Debug("bazaar refreshed", zap.Int("listings", market.Len()))
	})
	lc.Add("bazaar", server.NewContextService(bazaarTicks.Run))

	logger.Info("world server initialized", zap.Duration("startup", time.Since(start)))

	lc.OnShutdown("disconnect_sessions", func(context.Context) {
		for _, s := range w.Sessions().All() {
			s.Disconnect()
		}
	})

	if err := lc.Run(ctx); err != nil {
		logger.Error("world server stopped on error", zap.Error(err))
	}
}
