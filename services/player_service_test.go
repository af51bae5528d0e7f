package services

import (
	"context"
	"errors"
	"testing"

	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/persistence"
)

func setupPlayers(t *testing.T, coins map[string]int64) (*PlayerService, *persistence.Memory) {
	t.Helper()
	db := persistence.NewMemory()
	for id, c := range coins {
		if _, err := db.EnsurePlayer(context.Background(), models.Player{UserID: id, Coins: c}); err != nil {
			t.Fatal(err)
		}
	}
	return NewPlayerService(db, 0, 0), db
}

func coinsOf(t *testing.T, db *persistence.Memory, id string) int64 {
	t.Helper()
	p, err := db.GetPlayer(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPlayer %s: %v", id, err)
	}
	return p.Coins
}

func TestRegister_StartingCoins(t *testing.T) {
	svc, _ := setupPlayers(t, nil)
	p, err := svc.Register(context.Background(), models.Identity{ID: "A", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if p.Coins != DefaultStartingCoins || p.Name != "Alice" {
		t.Errorf("Unexpected player %+v", p)
	}
	if _, err := svc.Register(context.Background(), models.Identity{}); !errors.Is(err, models.ErrAuthRequired) {
		t.Errorf("Expected ErrAuthRequired, got %v", err)
	}
}

func TestSettleStakes_WinnerCollects(t *testing.T) {
	svc, db := setupPlayers(t, map[string]int64{"A": 100, "B": 100, "C": 100})
	res := models.GameResult{Winner: "A", Scores: map[string]int{"A": 12, "B": 3, "C": -1}}
	if err := svc.SettleStakes(context.Background(), res); err != nil {
		t.Fatalf("SettleStakes failed: %v", err)
	}
	if a, b, c := coinsOf(t, db, "A"), coinsOf(t, db, "B"), coinsOf(t, db, "C"); a != 110 || b != 95 || c != 95 {
		t.Errorf("Expected 110/95/95, got %d/%d/%d", a, b, c)
	}
}

func TestSettleStakes_TieAndNoWinnerMoveNothing(t *testing.T) {
	svc, db := setupPlayers(t, map[string]int64{"A": 100, "B": 100})
	for _, res := range []models.GameResult{
		{Winner: models.Tie, Scores: map[string]int{"A": 3, "B": 3}},
		{Winner: models.NoWinner, Scores: map[string]int{"A": -1, "B": -1}},
	} {
		if err := svc.SettleStakes(context.Background(), res); err != nil {
			t.Fatalf("SettleStakes failed: %v", err)
		}
	}
	if coinsOf(t, db, "A") != 100 || coinsOf(t, db, "B") != 100 {
		t.Error("Ties and no-winner rounds must not move coins")
	}
}

func TestSettleStakes_BrokeLoserPaysNothing(t *testing.T) {
	svc, db := setupPlayers(t, map[string]int64{"A": 100, "B": 2})
	res := models.GameResult{Winner: "A", Scores: map[string]int{"A": 1, "B": 0}}
	if err := svc.SettleStakes(context.Background(), res); err != nil {
		t.Fatalf("SettleStakes failed: %v", err)
	}
	if coinsOf(t, db, "A") != 100 || coinsOf(t, db, "B") != 2 {
		t.Error("Uncollected stake must not be paid out")
	}
}

func TestGetPlayerWithStats(t *testing.T) {
	svc, db := setupPlayers(t, map[string]int64{"A": 100})
	ctx := context.Background()
	_ = db.CreateRoomRecord(ctx, &models.RoomRecord{RoomCode: "AAAAAA", MaxMember: 2, IsActive: true})
	_, _ = db.SaveGameResult(ctx, "AAAAAA", models.GameResult{Winner: "A", Scores: map[string]int{"A": 4, "B": 1}})

	got, err := svc.GetPlayerWithStats(ctx, "A")
	if err != nil {
		t.Fatalf("GetPlayerWithStats failed: %v", err)
	}
	if got.Player.Coins != 100 || got.Stats.Wins != 1 || got.Stats.TotalGames != 1 {
		t.Errorf("Unexpected result %+v", got)
	}
	if _, err := svc.GetPlayerWithStats(ctx, "nobody"); !errors.Is(err, models.ErrPlayerNotFound) {
		t.Errorf("Expected ErrPlayerNotFound, got %v", err)
	}
}
