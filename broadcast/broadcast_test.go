package broadcast

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/network"
	"github.com/wfunc/sudokuarena/puzzle"
	"github.com/wfunc/sudokuarena/roomstore"
	"github.com/wfunc/sudokuarena/session"
	"github.com/wfunc/sudokuarena/state"
)

// MockConnection collects sent packets.
type MockConnection struct {
	packets chan network.Packet
}

func NewMockConnection() *MockConnection {
	return &MockConnection{packets: make(chan network.Packet, 64)}
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.packets <- network.Packet{MsgID: msgID, Data: append([]byte(nil), data...)}
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func testRoom() *models.Room {
	p := puzzle.NewSeededGenerator(2, 0).Generate()
	for k := 0; k < 20; k++ {
		p.Grid[k/9][k%9] = 0
	}
	r := models.NewRoom("ROOM01", p, 4, time.Now())
	r.CurrentMembers["A"] = models.Member{MemberID: "A", GameBoard: p.Grid, RemainingLives: 5, TotalLives: 5}
	r.CreatorID = "A"
	return r
}

func TestNewSnapshot_Progress(t *testing.T) {
	r := testRoom()
	a := r.CurrentMembers["A"]
	for k := 0; k < 10; k++ {
		a.GameBoard[k/9][k%9] = r.Solution[k/9][k%9]
	}
	r.CurrentMembers["A"] = a

	snap := NewSnapshot(*r)
	if snap.Progress["A"] != 50 {
		t.Errorf("Expected 50%% progress, got %d", snap.Progress["A"])
	}
	if snap.Phase != state.PhaseLobby {
		t.Errorf("Expected lobby phase, got %s", snap.Phase)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	_ = json.Unmarshal(data, &decoded)
	if decoded["id"] != "ROOM01" || decoded["creatorId"] != "A" {
		t.Errorf("Room fields should be inlined, got %v", decoded["id"])
	}
}

func TestRoomBroadcaster_PushesToRoomSessions(t *testing.T) {
	store := roomstore.NewMemory()
	defer store.Close()
	ctx := context.Background()
	if err := store.Create(ctx, testRoom()); err != nil {
		t.Fatal(err)
	}

	sessions := session.NewManager()
	inRoom := NewMockConnection()
	outside := NewMockConnection()
	s1 := session.NewSession("s1", inRoom, models.Identity{ID: "A"})
	s1.SetRoomID("ROOM01")
	s2 := session.NewSession("s2", outside, models.Identity{ID: "B"})
	sessions.Add(s1)
	sessions.Add(s2)

	b := NewRoomBroadcaster(store, sessions, nil)
	if err := b.Watch("ROOM01"); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := b.Watch("ROOM01"); err != nil {
		t.Fatalf("second Watch failed: %v", err)
	}
	if b.Watching() != 1 {
		t.Errorf("Expected one subscription per room, got %d", b.Watching())
	}

	_ = store.AppendChat(ctx, "ROOM01", models.NewNotification("A joined the room", "A", time.Now()))

	select {
	case p := <-inRoom.packets:
		if p.MsgID != network.MsgTypeRoomState {
			t.Errorf("Expected a room state packet, got %d", p.MsgID)
		}
		var snap RoomSnapshot
		if err := json.Unmarshal(p.Data, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if len(snap.Chat) != 1 {
			t.Errorf("Expected the chat entry in the snapshot, got %d", len(snap.Chat))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a snapshot")
	}
	select {
	case <-outside.packets:
		t.Error("Sessions outside the room must not receive snapshots")
	default:
	}

	b.Unwatch("ROOM01")
	if b.Watching() != 1 {
		t.Error("The subscription should survive while references remain")
	}
	b.Unwatch("ROOM01")
	if b.Watching() != 0 {
		t.Error("The last Unwatch should drop the subscription")
	}
}
