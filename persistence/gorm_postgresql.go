// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/sudokuarena/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.RoomRecordModel{},
		&models.PlayerModel{},
		&models.GameRecordModel{},
	); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) CreateRoomRecord(ctx context.Context, rec *models.RoomRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := p.db.WithContext(ctx).Create(models.NewRoomRecordModel(rec)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrRoomExists
	}
	return models.Persistence("create room record", err)
}

func (p *GormPostgreSQL) GetRoomRecord(ctx context.Context, code string) (*models.RoomRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m models.RoomRecordModel
	if err := p.db.WithContext(ctx).Where("room_code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrRoomNotFound
		}
		return nil, models.Persistence("get room record", err)
	}
	return m.Record(), nil
}

// JoinRoom 行锁保证容量检查与名单追加的原子性
func (p *GormPostgreSQL) JoinRoom(ctx context.Context, code string, j models.Joiner) (*models.RoomRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rec *models.RoomRecord
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.RoomRecordModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_code = ?", code).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		rec = m.Record()
		before := len(rec.JoinedBy)
		if err := rec.AddJoiner(j); err != nil {
			return err
		}
		if len(rec.JoinedBy) == before {
			return nil
		}
		m.JoinedBy = rec.JoinedBy
		return tx.Save(&m).Error
	})
	if err != nil {
		return nil, models.Persistence("join room", err)
	}
	return rec, nil
}

func (p *GormPostgreSQL) SetMemberCount(ctx context.Context, code string, n int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := p.db.WithContext(ctx).Model(&models.RoomRecordModel{}).
		Where("room_code = ?", code).Update("current_members", n)
	if res.Error != nil {
		return models.Persistence("set member count", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRoomNotFound
	}
	return nil
}

// SaveGameResult 条件写入：只有第一次结算生效，同时写入一条游戏记录
func (p *GormPostgreSQL) SaveGameResult(ctx context.Context, code string, result models.GameResult) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(result)
	if err != nil {
		return false, models.Persistence("encode game result", err)
	}

	saved := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RoomRecordModel{}).
			Where("room_code = ? AND game_results IS NULL", code).
			Updates(map[string]interface{}{
				"game_results": gorm.Expr("?::jsonb", string(raw)),
				"is_active":    false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.RoomRecordModel{}).Where("room_code = ?", code).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return models.ErrRoomNotFound
			}
			return nil
		}

		saved = true
		return tx.Create(&models.GameRecordModel{
			RoomCode: code,
			Winner:   result.Winner,
			Scores:   result.Scores,
		}).Error
	})
	if err != nil {
		return false, models.Persistence("save game result", err)
	}
	return saved, nil
}

func (p *GormPostgreSQL) EnsurePlayer(ctx context.Context, pl models.Player) (*models.Player, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m models.PlayerModel
	err := p.db.WithContext(ctx).
		Where(models.PlayerModel{UserID: pl.UserID}).
		Attrs(models.PlayerModel{Name: pl.Name, PhotoURL: pl.PhotoURL, Coins: pl.Coins}).
		FirstOrCreate(&m).Error
	if err != nil {
		return nil, models.Persistence("ensure player", err)
	}
	return m.Player(), nil
}

func (p *GormPostgreSQL) GetPlayer(ctx context.Context, userID string) (*models.Player, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m models.PlayerModel
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPlayerNotFound
		}
		return nil, models.Persistence("get player", err)
	}
	return m.Player(), nil
}

// AdjustCoins 更新玩家金币数量（原子操作）
func (p *GormPostgreSQL) AdjustCoins(ctx context.Context, userID string, delta int64) (*models.Player, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m models.PlayerModel
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrPlayerNotFound
		}
		if err != nil {
			return err
		}

		// 检查金币是否足够（如果是减少）
		if delta < 0 && m.Coins+delta < 0 {
			return models.ErrInsufficientCoins
		}
		if err := tx.Model(&m).Update("coins", gorm.Expr("coins + ?", delta)).Error; err != nil {
			return err
		}
		m.Coins += delta
		return nil
	})
	if err != nil {
		return nil, models.Persistence("adjust coins", err)
	}
	return m.Player(), nil
}

func (p *GormPostgreSQL) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var records []models.GameRecordModel
	err := p.db.WithContext(ctx).
		Where("jsonb_exists(scores, ?)", userID).
		Order("created_at").
		Find(&records).Error
	if err != nil {
		return nil, models.Persistence("player stats", err)
	}

	stats := &models.PlayerStats{}
	for i := range records {
		stats.Tally(userID, records[i].Result())
	}
	return stats, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
