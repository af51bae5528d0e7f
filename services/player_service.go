// services/player_service.go
package services

import (
	"context"
	"errors"
	"sort"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/persistence"
)

const (
	DefaultStartingCoins int64 = 1000
	DefaultStake         int64 = 5
)

type PlayerService struct {
	db            persistence.Database
	startingCoins int64
	stake         int64
}

func NewPlayerService(db persistence.Database, startingCoins, stake int64) *PlayerService {
	if startingCoins <= 0 {
		startingCoins = DefaultStartingCoins
	}
	if stake <= 0 {
		stake = DefaultStake
	}
	return &PlayerService{db: db, startingCoins: startingCoins, stake: stake}
}

// PlayerWithStats 玩家信息和统计
type PlayerWithStats struct {
	Player models.Player      `json:"player"`
	Stats  models.PlayerStats `json:"stats"`
}

// Register 首次出现的玩家获得初始金币
func (s *PlayerService) Register(ctx context.Context, id models.Identity) (*models.Player, error) {
	if id.ID == "" {
		return nil, models.ErrAuthRequired
	}
	return s.db.EnsurePlayer(ctx, models.Player{
		UserID:   id.ID,
		Name:     id.DisplayName,
		PhotoURL: id.PhotoURL,
		Coins:    s.startingCoins,
	})
}

// GetPlayerWithStats 获取玩家信息和统计
func (s *PlayerService) GetPlayerWithStats(ctx context.Context, userID string) (*PlayerWithStats, error) {
	player, err := s.db.GetPlayer(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.db.GetPlayerStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PlayerWithStats{Player: *player, Stats: *stats}, nil
}

// SettleStakes moves the stake from every other scored player to the
// winner. Ties and rounds without a winner settle nothing. A loser who
// cannot cover the stake pays nothing.
func (s *PlayerService) SettleStakes(ctx context.Context, res models.GameResult) error {
	if res.Winner == models.NoWinner || res.Winner == models.Tie {
		return nil
	}
	if _, ok := res.Scores[res.Winner]; !ok {
		return nil
	}

	losers := make([]string, 0, len(res.Scores))
	for id := range res.Scores {
		if id != res.Winner {
			losers = append(losers, id)
		}
	}
	sort.Strings(losers)

	var pot int64
	for _, id := range losers {
		_, err := s.db.AdjustCoins(ctx, id, -s.stake)
		switch {
		case err == nil:
			pot += s.stake
		case errors.Is(err, models.ErrInsufficientCoins), errors.Is(err, models.ErrPlayerNotFound):
			logger.Log.Warnw("stake not collected", "player", id, "error", err)
		default:
			return err
		}
	}
	if pot == 0 {
		return nil
	}
	if _, err := s.db.AdjustCoins(ctx, res.Winner, pot); err != nil {
		return err
	}
	logger.Log.Infow("stakes settled", "winner", res.Winner, "pot", pot)
	return nil
}
