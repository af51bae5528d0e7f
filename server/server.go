package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/sudokuarena/broadcast"
	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/membership"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/network"
	"github.com/wfunc/sudokuarena/presence"
	"github.com/wfunc/sudokuarena/room"
	"github.com/wfunc/sudokuarena/services"
	"github.com/wfunc/sudokuarena/session"
	"github.com/wfunc/sudokuarena/state"
)

const requestTimeout = 10 * time.Second

// Deps 网关依赖的各个服务
type Deps struct {
	Membership  *membership.Manager
	Rooms       *room.Service
	Presence    *presence.Cleanup
	Players     *services.PlayerService
	Broadcaster *broadcast.RoomBroadcaster
	Sessions    *session.Manager
	Monitor     *monitor.Monitor
}

type GameServer struct {
	addr      string
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	deps      Deps
	metrics   *monitor.Metrics

	mutex        sync.Mutex
	httpServer   *http.Server
	shutdownChan chan struct{}
	closeOnce    sync.Once
	conns        sync.WaitGroup
}

func NewGameServer(addr string, heartbeat time.Duration, deps Deps) *GameServer {
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager()
	}
	s := &GameServer{
		addr:         addr,
		heartbeat:    heartbeat,
		deps:         deps,
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	if deps.Monitor != nil {
		s.metrics = deps.Monitor.Metrics()
	}
	return s
}

// Handler 暴露 /ws 与 /healthz，测试里直接挂到 httptest
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *GameServer) Start() error {
	s.mutex.Lock()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	srv := s.httpServer
	s.mutex.Unlock()

	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes the open ones. Each
// closed connection runs its presence cleanup.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.shutdownChan) })

	s.mutex.Lock()
	srv := s.httpServer
	s.mutex.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, sess := range s.deps.Sessions.All() {
		_ = sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), identityFrom(r))
}

// identityFrom 身份由上游认证代理注入，query 参数优先于 header
func identityFrom(r *http.Request) models.Identity {
	q := r.URL.Query()
	pick := func(param, header string) string {
		if v := q.Get(param); v != "" {
			return v
		}
		return r.Header.Get(header)
	}
	return models.Identity{
		ID:          pick("uid", "X-User-ID"),
		DisplayName: pick("name", "X-User-Name"),
		PhotoURL:    pick("photo", "X-User-Photo"),
	}
}

func (s *GameServer) handleConnection(conn network.Connection, id models.Identity) {
	s.conns.Add(1)
	defer s.conns.Done()

	if id.ID == "" {
		s.sendError(conn, models.ErrAuthRequired)
		conn.Close()
		return
	}
	if s.heartbeat > 0 {
		conn.SetHeartbeat(s.heartbeat)
	}

	sess := session.NewSession(uuid.New().String(), conn, id)
	s.deps.Sessions.Add(sess)
	s.metrics.PlayerOnline()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	if _, err := s.deps.Players.Register(ctx, id); err != nil {
		logger.Log.Warnw("register player failed", "player", id.ID, "error", err)
	}
	cancel()

	logger.Log.Infof("New connection from %s, session ID: %s, player: %s", conn.RemoteAddr(), sess.GetID(), id.ID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.deps.Sessions.Remove(sess.GetID())
		if roomID := sess.RoomID(); roomID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			s.leaveRoom(ctx, sess, roomID)
			cancel()
		}
		s.metrics.PlayerOffline()
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := conn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	sess.Touch()
	if s.deps.Monitor != nil {
		s.deps.Monitor.CountRequest()
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		err = sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeCreateRoom:
		err = s.handleCreateRoom(ctx, sess, packet)
	case network.MsgTypeJoinRoom:
		err = s.handleJoinRoom(ctx, sess, packet)
	case network.MsgTypeLeaveRoom:
		err = s.handleLeaveRoom(ctx, sess)
	case network.MsgTypeStartGame:
		err = s.handleStartGame(ctx, sess)
	case network.MsgTypePlaceDigit:
		err = s.handlePlaceDigit(ctx, sess, packet)
	case network.MsgTypeChat:
		err = s.handleChat(ctx, sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return
	}
	s.metrics.ObserveLatency(network.MsgName(packet.MsgID), time.Since(start))

	if err != nil {
		logger.Log.Debugw("request failed", "session", sess.GetID(), "message", network.MsgName(packet.MsgID), "error", err)
		s.sendError(sess.Conn, err)
	}
}

func (s *GameServer) handleCreateRoom(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	var req network.CreateRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errBadRequest
	}
	rec, err := s.deps.Membership.CreateRoom(ctx, sess.Identity, models.RoomType(req.Type), req.MaxMember)
	if err != nil {
		return err
	}
	return sendJSON(sess, network.MsgTypeCreateRoom, network.CreateRoomReply{
		RoomCode:  rec.RoomCode,
		ShareLink: s.deps.Membership.ShareLink(rec.RoomCode),
	})
}

func (s *GameServer) handleJoinRoom(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	var req network.JoinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.RoomCode == "" {
		return errBadRequest
	}

	prev := sess.RoomID()
	if prev != "" && prev != req.RoomCode {
		s.leaveRoom(ctx, sess, prev)
	}

	r, err := s.deps.Membership.Join(ctx, req.RoomCode, sess.Identity)
	if err != nil {
		return err
	}
	if prev != req.RoomCode {
		if err := s.deps.Broadcaster.Watch(req.RoomCode); err != nil {
			return err
		}
		sess.SetRoomID(req.RoomCode)
	}
	logger.Log.Infof("Session %s joined room %s", sess.GetID(), req.RoomCode)
	return s.deps.Broadcaster.SendSnapshot(sess, *r)
}

func (s *GameServer) handleLeaveRoom(ctx context.Context, sess *session.Session) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return nil
	}
	s.leaveRoom(ctx, sess, roomID)
	return nil
}

// leaveRoom detaches sess from roomID. The player departs only when none of
// their other sessions remain in the room.
func (s *GameServer) leaveRoom(ctx context.Context, sess *session.Session, roomID string) {
	sess.SetRoomID("")
	s.deps.Broadcaster.Unwatch(roomID)

	for _, other := range s.deps.Sessions.GetByPlayerID(sess.PlayerID()) {
		if other.GetID() != sess.GetID() && other.RoomID() == roomID {
			return
		}
	}
	if _, err := s.deps.Presence.Depart(ctx, roomID, sess.PlayerID()); err != nil {
		logger.Log.Warnw("depart failed", "room", roomID, "player", sess.PlayerID(), "error", err)
	}
}

func (s *GameServer) handleStartGame(ctx context.Context, sess *session.Session) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return state.ErrNotMember
	}
	if _, err := s.deps.Rooms.StartGame(ctx, roomID, sess.PlayerID()); err != nil {
		return err
	}
	return sess.Send(network.MsgTypeStartGame, nil)
}

func (s *GameServer) handlePlaceDigit(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return state.ErrNotMember
	}
	var req network.PlaceDigitRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errBadRequest
	}
	_, out, err := s.deps.Rooms.PlaceDigit(ctx, roomID, sess.PlayerID(), req.Row, req.Col, req.Digit)
	if err != nil {
		return err
	}
	return sendJSON(sess, network.MsgTypePlaceDigit, network.PlaceDigitReply{
		Correct:    out.Correct,
		LifeLost:   out.LifeLost,
		Eliminated: out.Eliminated,
		Ended:      out.Ended,
	})
}

func (s *GameServer) handleChat(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return state.ErrNotMember
	}
	var req network.ChatRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errBadRequest
	}
	return s.deps.Rooms.SendChat(ctx, roomID, sess.PlayerID(), req.Message)
}

func (s *GameServer) sendError(conn network.Connection, err error) {
	data, _ := json.Marshal(network.ErrorReply{Code: errorCode(err), Message: err.Error()})
	if sendErr := conn.Send(network.MsgTypeError, data); sendErr != nil {
		logger.Log.Debugf("send error reply failed: %v", sendErr)
	}
}

func sendJSON(sess *session.Session, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sess.Send(msgID, data)
}
