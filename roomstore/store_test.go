package roomstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/puzzle"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T) Store

func newMiniredisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemoryStore(t *testing.T) Store {
	s := NewMemory()
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range map[string]storeFactory{
		"redis":  newMiniredisStore,
		"memory": newMemoryStore,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func testRoom(id string) *models.Room {
	p := puzzle.NewSeededGenerator(7, 0.5).Generate()
	return models.NewRoom(id, p, 4, testNow)
}

func member(id string, p models.Puzzle) models.Member {
	return models.Member{
		MemberID:       id,
		MemberName:     "player " + id,
		GameBoard:      p.Grid,
		RemainingLives: models.TotalLives,
		TotalLives:     models.TotalLives,
		JoinedAt:       testNow.UnixMilli(),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, models.ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}

		r := testRoom("R1")
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := s.Create(ctx, testRoom("R1")); !errors.Is(err, models.ErrRoomExists) {
			t.Errorf("Expected ErrRoomExists, got %v", err)
		}

		got, err := s.Get(ctx, "R1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Board != r.Board || got.Solution != r.Solution || got.CreatedAt != r.CreatedAt {
			t.Error("Stored room does not match the created one")
		}
		if got.CurrentMembers == nil || got.MemberHistory == nil {
			t.Error("Expected member maps to be initialised")
		}
	})
}

func TestStore_UpdateBumpsRevision(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r := testRoom("R2")
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		next, err := s.Update(ctx, "R2", func(room *models.Room) error {
			room.CurrentMembers["A"] = member("A", room.Puzzle())
			room.CreatorID = "A"
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if next.Revision != 1 || next.CreatorID != "A" {
			t.Errorf("Expected revision 1 with creator A, got %d %q", next.Revision, next.CreatorID)
		}

		got, _ := s.Get(ctx, "R2")
		if _, ok := got.CurrentMembers["A"]; !ok || got.Revision != 1 {
			t.Errorf("Expected persisted member A at revision 1, got %+v", got)
		}
	})
}

func TestStore_UpdateErrorLeavesDocument(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Create(ctx, testRoom("R3"))
		boom := errors.New("boom")

		_, err := s.Update(ctx, "R3", func(room *models.Room) error {
			room.CreatorID = "X"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected the mutator error, got %v", err)
		}
		got, _ := s.Get(ctx, "R3")
		if got.CreatorID != "" || got.Revision != 0 {
			t.Errorf("Failed update must not be written, got creator %q rev %d", got.CreatorID, got.Revision)
		}

		if _, err := s.Update(ctx, "nope", func(*models.Room) error { return nil }); !errors.Is(err, models.ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}
	})
}

func TestStore_ConcurrentUpdatesAreNotLost(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Create(ctx, testRoom("R4"))

		const writers = 5
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := s.Update(ctx, "R4", func(room *models.Room) error {
					room.CurrentMembers[id] = member(id, room.Puzzle())
					return nil
				})
				errs <- err
			}(fmt.Sprintf("P%d", i))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}

		got, _ := s.Get(ctx, "R4")
		if len(got.CurrentMembers) != writers || got.Revision != writers {
			t.Errorf("Expected %d members at revision %d, got %d at %d", writers, writers, len(got.CurrentMembers), got.Revision)
		}
	})
}

func TestStore_AppendChatKeepsOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.AppendChat(ctx, "none", models.NewNotification("x", "A", testNow)); !errors.Is(err, models.ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}

		_ = s.Create(ctx, testRoom("R5"))
		for _, text := range []string{"A joined the room", "B joined the room"} {
			if err := s.AppendChat(ctx, "R5", models.NewNotification(text, "A", testNow)); err != nil {
				t.Fatalf("AppendChat failed: %v", err)
			}
		}
		// a document write must not clobber the chat list
		_, _ = s.Update(ctx, "R5", func(room *models.Room) error {
			room.CreatorID = "A"
			return nil
		})

		got, _ := s.Get(ctx, "R5")
		if len(got.Chat) != 2 || got.Chat[0].Message != "A joined the room" || got.Chat[1].Message != "B joined the room" {
			t.Errorf("Unexpected chat: %+v", got.Chat)
		}
		if got.Chat[0].MessageType != models.MessageTypeNotification {
			t.Errorf("Expected notification type, got %q", got.Chat[0].MessageType)
		}
	})
}

func TestStore_SubscribeReceivesSnapshots(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Create(ctx, testRoom("R6"))

		snapshots := make(chan models.Room, 16)
		sub, err := s.Subscribe(ctx, "R6", func(r models.Room) { snapshots <- r })
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		_, _ = s.Update(ctx, "R6", func(room *models.Room) error {
			room.CreatorID = "A"
			return nil
		})

		deadline := time.After(2 * time.Second)
	wait:
		for {
			select {
			case r := <-snapshots:
				if r.CreatorID == "A" {
					break wait
				}
			case <-deadline:
				t.Fatal("Timed out waiting for a snapshot")
			}
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Errorf("Unsubscribe failed: %v", err)
		}
	})
}

func TestRedis_CorruptDocumentIsPersistenceError(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	defer s.Close()

	if err := mr.Set(roomKey("BAD"), `{"id":"BAD","solution":[[0]]}`); err != nil {
		t.Fatal(err)
	}
	_, err := s.Get(context.Background(), "BAD")
	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected a PersistenceError, got %v", err)
	}

	_ = mr.Set(roomKey("JUNK"), "not json")
	if _, err := s.Update(context.Background(), "JUNK", func(*models.Room) error { return nil }); !errors.As(err, &pe) {
		t.Errorf("Expected a PersistenceError from Update, got %v", err)
	}
}

func TestMemory_CorruptDocumentIsPersistenceError(t *testing.T) {
	s := NewMemory()
	s.docs["BAD"] = []byte(`{"id":"BAD"}`)
	_, err := s.Get(context.Background(), "BAD")
	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected a PersistenceError, got %v", err)
	}
}
