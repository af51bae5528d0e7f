package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/sudokuarena/broadcast"
	"github.com/wfunc/sudokuarena/config"
	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/membership"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/persistence"
	"github.com/wfunc/sudokuarena/presence"
	"github.com/wfunc/sudokuarena/puzzle"
	"github.com/wfunc/sudokuarena/room"
	"github.com/wfunc/sudokuarena/roomstore"
	"github.com/wfunc/sudokuarena/rpc"
	"github.com/wfunc/sudokuarena/server"
	"github.com/wfunc/sudokuarena/services"
	"github.com/wfunc/sudokuarena/session"
	"github.com/wfunc/sudokuarena/timer"
)

func openDatabase(cfg config.DatabaseConfig) (persistence.Database, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "gorm", "":
		return persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "sql":
		return persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "memory":
		return persistence.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openRoomStore(cfg config.RedisConfig) (roomstore.Store, error) {
	if cfg.URL == "" {
		logger.Log.Warn("redis.url is empty, rooms are kept in process memory")
		return roomstore.NewMemory(), nil
	}
	return roomstore.NewRedis(cfg.URL, cfg.KeyTTL)
}

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infof("Database connection successful (driver %s).", cfg.Database.Driver)

	store, err := openRoomStore(cfg.Redis)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to room store: %v", err)
	}
	defer store.Close()

	mon := monitor.NewMonitor("sudoku")
	mon.StartServer(cfg.Server.MetricsAddress)
	defer mon.Close()
	metrics := mon.Metrics()

	clock := timer.NewTimerManager()
	defer clock.Stop()

	sessions := session.NewManager()
	bc := broadcast.NewRoomBroadcaster(store, sessions, metrics)
	defer bc.Close()

	players := services.NewPlayerService(db, cfg.Game.StartingCoins, cfg.Game.Stake)
	puzzles := puzzle.NewSeededGenerator(time.Now().UnixNano(), cfg.Game.FillProbability)

	rooms := room.NewService(store, db, players, clock,
		room.WithBroadcaster(bc),
		room.WithMetrics(metrics),
		room.WithGameDuration(cfg.Game.Duration),
	)
	members := membership.NewManager(store, db, puzzles,
		membership.WithBaseURL(cfg.Server.BaseURL),
		membership.WithMetrics(metrics),
		membership.WithTotalLives(cfg.Game.TotalLives),
	)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewGameService(players, db))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()
	defer rpcServer.Stop()

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.Heartbeat, server.Deps{
		Membership:  members,
		Rooms:       rooms,
		Presence:    presence.NewCleanup(rooms, store, db, metrics),
		Players:     players,
		Broadcaster: bc,
		Sessions:    sessions,
		Monitor:     mon,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Log.Infof("Received %s, shutting down.", sig)
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Shutdown 会等待所有连接完成离场清理
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Warnf("Game server shutdown: %v", err)
	}
}
