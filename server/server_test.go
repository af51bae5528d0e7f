package server

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/sudokuarena/broadcast"
	"github.com/wfunc/sudokuarena/membership"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/network"
	"github.com/wfunc/sudokuarena/persistence"
	"github.com/wfunc/sudokuarena/presence"
	"github.com/wfunc/sudokuarena/puzzle"
	"github.com/wfunc/sudokuarena/room"
	"github.com/wfunc/sudokuarena/roomstore"
	"github.com/wfunc/sudokuarena/services"
	"github.com/wfunc/sudokuarena/session"
	"github.com/wfunc/sudokuarena/state"
)

type fixture struct {
	db  *persistence.Memory
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := persistence.NewMemory()
	store := roomstore.NewMemory()
	sessions := session.NewManager()
	mon := monitor.NewMonitor("test")
	metrics := mon.Metrics()

	players := services.NewPlayerService(db, 100, 5)
	bc := broadcast.NewRoomBroadcaster(store, sessions, metrics)
	rooms := room.NewService(store, db, players, nil, room.WithBroadcaster(bc), room.WithMetrics(metrics))

	gs := NewGameServer(":0", 0, Deps{
		Membership:  membership.NewManager(store, db, puzzle.NewSeededGenerator(7, 0.5), membership.WithBaseURL("https://sudoku.test"), membership.WithMetrics(metrics)),
		Rooms:       rooms,
		Presence:    presence.NewCleanup(rooms, store, db, metrics),
		Players:     players,
		Broadcaster: bc,
		Sessions:    sessions,
		Monitor:     mon,
	})
	srv := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		srv.Close()
		bc.Close()
		store.Close()
	})
	return &fixture{db: db, srv: srv}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?" + query
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return c
}

func send(t *testing.T, c *websocket.Conn, msgID uint16, v interface{}) {
	t.Helper()
	var data []byte
	if v != nil {
		data, _ = json.Marshal(v)
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteMessage(websocket.BinaryMessage, packet); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readUntil skips packets until one with msgID arrives.
func readUntil(t *testing.T, c *websocket.Conn, msgID uint16) *network.Packet {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		c.SetReadDeadline(deadline)
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("Waiting for %s: %v", network.MsgName(msgID), err)
		}
		p, err := network.DecodePacket(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.MsgID == msgID {
			return p
		}
	}
}

func TestGameServer_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "")
	defer c.Close()

	p := readUntil(t, c, network.MsgTypeError)
	var reply network.ErrorReply
	_ = json.Unmarshal(p.Data, &reply)
	if reply.Code != "auth_required" {
		t.Errorf("Expected auth_required, got %s", reply.Code)
	}
}

func TestGameServer_RoundEndsWhenOpponentDisconnects(t *testing.T) {
	f := newFixture(t)

	a := f.dial(t, "uid=A&name=Alice")
	defer a.Close()
	send(t, a, network.MsgTypeCreateRoom, network.CreateRoomRequest{Type: "private", MaxMember: 2})
	var created network.CreateRoomReply
	_ = json.Unmarshal(readUntil(t, a, network.MsgTypeCreateRoom).Data, &created)
	if created.RoomCode == "" || created.ShareLink != "https://sudoku.test/play/"+created.RoomCode {
		t.Fatalf("Unexpected create reply %+v", created)
	}

	send(t, a, network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomCode: created.RoomCode})
	var snap broadcast.RoomSnapshot
	_ = json.Unmarshal(readUntil(t, a, network.MsgTypeRoomState).Data, &snap)
	if snap.CreatorID != "A" || snap.Phase != state.PhaseLobby {
		t.Fatalf("Unexpected snapshot: creator %s phase %s", snap.CreatorID, snap.Phase)
	}

	b := f.dial(t, "uid=B&name=Bob")
	send(t, b, network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomCode: created.RoomCode})
	readUntil(t, b, network.MsgTypeRoomState)

	// B cannot start the round
	send(t, b, network.MsgTypeStartGame, nil)
	var denied network.ErrorReply
	_ = json.Unmarshal(readUntil(t, b, network.MsgTypeError).Data, &denied)
	if denied.Code != "not_creator" {
		t.Errorf("Expected not_creator, got %s", denied.Code)
	}

	send(t, a, network.MsgTypeStartGame, nil)
	readUntil(t, a, network.MsgTypeStartGame)

	b.Close()

	var res models.GameResult
	_ = json.Unmarshal(readUntil(t, a, network.MsgTypeGameEnd).Data, &res)
	if res.Winner != "A" {
		t.Errorf("Expected A to win, got %q", res.Winner)
	}
	if res.Scores["B"] != -1 {
		t.Errorf("Expected -1 for the departed player, got %d", res.Scores["B"])
	}

	// the durable record is written after the broadcast
	var rec *models.RoomRecord
	for i := 0; i < 50; i++ {
		r, err := f.db.GetRoomRecord(t.Context(), created.RoomCode)
		if err == nil && r.GameResults != nil {
			rec = r
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if rec == nil || rec.IsActive {
		t.Fatalf("Expected the result to be recorded and the room closed, got %+v", rec)
	}
}

func TestGameServer_JoinErrors(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "uid=A")
	defer c.Close()

	send(t, c, network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomCode: "NOPE00"})
	var reply network.ErrorReply
	_ = json.Unmarshal(readUntil(t, c, network.MsgTypeError).Data, &reply)
	if reply.Code != "room_not_found" {
		t.Errorf("Expected room_not_found, got %s", reply.Code)
	}

	send(t, c, network.MsgTypePlaceDigit, network.PlaceDigitRequest{Row: 0, Col: 0, Digit: 1})
	_ = json.Unmarshal(readUntil(t, c, network.MsgTypeError).Data, &reply)
	if reply.Code != "not_member" {
		t.Errorf("Expected not_member outside a room, got %s", reply.Code)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		models.ErrRoomFull:                          "room_full",
		models.Persistence("get", errors.New("io")): "persistence",
		state.ErrGivenCell:                          "given_cell",
		errors.New("boom"):                          "internal",
	}
	for err, want := range cases {
		if got := errorCode(err); got != want {
			t.Errorf("errorCode(%v): expected %s, got %s", err, want, got)
		}
	}
}
