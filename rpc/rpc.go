package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/persistence"
	"github.com/wfunc/sudokuarena/services"
)

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the game service.
func NewServer(addr string, service *GameService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.Register(service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// GameService is the struct that exposes RPC methods.
type GameService struct {
	playerService *services.PlayerService
	db            persistence.Database
}

// NewGameService creates a new GameService.
func NewGameService(ps *services.PlayerService, db persistence.Database) *GameService {
	return &GameService{playerService: ps, db: db}
}

type GetPlayerArgs struct {
	UserID string
}

type GetPlayerReply struct {
	Player models.Player
	Stats  models.PlayerStats
}

// GetPlayerWithStats is an RPC method to get player data.
// It must follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
func (gs *GameService) GetPlayerWithStats(args *GetPlayerArgs, reply *GetPlayerReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	data, err := gs.playerService.GetPlayerWithStats(ctx, args.UserID)
	if err != nil {
		return err
	}
	reply.Player = data.Player
	reply.Stats = data.Stats
	return nil
}

type GetRoomArgs struct {
	RoomCode string
}

type GetRoomReply struct {
	Record models.RoomRecord
}

// GetRoom returns the durable record of a room, including its result once
// the round has ended.
func (gs *GameService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	rec, err := gs.db.GetRoomRecord(ctx, args.RoomCode)
	if err != nil {
		return err
	}
	reply.Record = *rec
	return nil
}
