// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wfunc/sudokuarena/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS rooms (
            id VARCHAR(64) PRIMARY KEY,
            room_code VARCHAR(6) UNIQUE NOT NULL,
            creator_id TEXT NOT NULL,
            type VARCHAR(16) NOT NULL,
            max_member INT NOT NULL,
            current_members INT NOT NULL DEFAULT 0,
            joined_by JSONB NOT NULL DEFAULT '[]',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            game_results JSONB,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS players (
            user_id VARCHAR(128) PRIMARY KEY,
            name VARCHAR(128),
            photo_url TEXT,
            coins BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            room_code VARCHAR(6) NOT NULL,
            winner VARCHAR(128),
            scores JSONB NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_game_records_room_code ON game_records(room_code);
        CREATE INDEX IF NOT EXISTS idx_game_records_created_at ON game_records(created_at);
    `)

	return err
}

const roomColumns = `id, room_code, creator_id, type, max_member, current_members, joined_by, is_active, game_results, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*models.RoomRecord, error) {
	var (
		rec     models.RoomRecord
		typ     string
		joined  []byte
		results []byte
	)
	err := row.Scan(&rec.ID, &rec.RoomCode, &rec.CreatorID, &typ, &rec.MaxMember,
		&rec.CurrentMembers, &joined, &rec.IsActive, &results, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRoomNotFound
		}
		return nil, err
	}
	rec.Type = models.RoomType(typ)
	if err := json.Unmarshal(joined, &rec.JoinedBy); err != nil {
		return nil, &models.PersistenceError{Op: "decode joined_by", Err: err}
	}
	if len(results) > 0 {
		rec.GameResults = &models.GameResult{}
		if err := json.Unmarshal(results, rec.GameResults); err != nil {
			return nil, &models.PersistenceError{Op: "decode game_results", Err: err}
		}
	}
	return &rec, nil
}

func (p *PostgreSQL) CreateRoomRecord(ctx context.Context, rec *models.RoomRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	joined, err := json.Marshal(rec.JoinedBy)
	if err != nil {
		return models.Persistence("encode joined_by", err)
	}
	if rec.JoinedBy == nil {
		joined = []byte("[]")
	}

	query := `
        INSERT INTO rooms (id, room_code, creator_id, type, max_member, current_members, joined_by, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err = p.db.ExecContext(ctx, query, rec.ID, rec.RoomCode, rec.CreatorID, string(rec.Type),
		rec.MaxMember, rec.CurrentMembers, joined, rec.IsActive, rec.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return models.ErrRoomExists
	}
	return models.Persistence("create room record", err)
}

func (p *PostgreSQL) GetRoomRecord(ctx context.Context, code string) (*models.RoomRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := p.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code = $1`, code)
	rec, err := scanRoom(row)
	if err != nil {
		return nil, models.Persistence("get room record", err)
	}
	return rec, nil
}

func (p *PostgreSQL) JoinRoom(ctx context.Context, code string, j models.Joiner) (*models.RoomRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, models.Persistence("join room", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code = $1 FOR UPDATE`, code)
	rec, err := scanRoom(row)
	if err != nil {
		return nil, models.Persistence("join room", err)
	}
	before := len(rec.JoinedBy)
	if err := rec.AddJoiner(j); err != nil {
		return nil, err
	}
	if len(rec.JoinedBy) != before {
		joined, err := json.Marshal(rec.JoinedBy)
		if err != nil {
			return nil, models.Persistence("encode joined_by", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE rooms SET joined_by = $1, updated_at = CURRENT_TIMESTAMP WHERE room_code = $2`,
			joined, code)
		if err != nil {
			return nil, models.Persistence("join room", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, models.Persistence("join room", err)
	}
	return rec, nil
}

func (p *PostgreSQL) SetMemberCount(ctx context.Context, code string, n int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx,
		`UPDATE rooms SET current_members = $1, updated_at = CURRENT_TIMESTAMP WHERE room_code = $2`, n, code)
	if err != nil {
		return models.Persistence("set member count", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return models.ErrRoomNotFound
	}
	return nil
}

func (p *PostgreSQL) SaveGameResult(ctx context.Context, code string, result models.GameResult) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(result)
	if err != nil {
		return false, models.Persistence("encode game result", err)
	}
	scores, err := json.Marshal(result.Scores)
	if err != nil {
		return false, models.Persistence("encode scores", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, models.Persistence("save game result", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE rooms SET game_results = $1, is_active = FALSE, updated_at = CURRENT_TIMESTAMP
        WHERE room_code = $2 AND game_results IS NULL
    `, raw, code)
	if err != nil {
		return false, models.Persistence("save game result", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE room_code = $1)`, code).Scan(&exists); err != nil {
			return false, models.Persistence("save game result", err)
		}
		if !exists {
			return false, models.ErrRoomNotFound
		}
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO game_records (room_code, winner, scores) VALUES ($1, $2, $3)`,
		code, result.Winner, scores)
	if err != nil {
		return false, models.Persistence("insert game record", err)
	}
	if err := tx.Commit(); err != nil {
		return false, models.Persistence("save game result", err)
	}
	return true, nil
}

func (p *PostgreSQL) EnsurePlayer(ctx context.Context, pl models.Player) (*models.Player, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// 使用 UPSERT 操作，已存在时保留原数据
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO players (user_id, name, photo_url, coins)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO NOTHING
    `, pl.UserID, pl.Name, pl.PhotoURL, pl.Coins)
	if err != nil {
		return nil, models.Persistence("ensure player", err)
	}
	return p.GetPlayer(ctx, pl.UserID)
}

func (p *PostgreSQL) GetPlayer(ctx context.Context, userID string) (*models.Player, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var pl models.Player
	var name, photo sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id, name, photo_url, coins, created_at, updated_at FROM players WHERE user_id = $1`, userID).
		Scan(&pl.UserID, &name, &photo, &pl.Coins, &pl.CreatedAt, &pl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPlayerNotFound
	}
	if err != nil {
		return nil, models.Persistence("get player", err)
	}
	pl.Name, pl.PhotoURL = name.String, photo.String
	return &pl, nil
}

func (p *PostgreSQL) AdjustCoins(ctx context.Context, userID string, delta int64) (*models.Player, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// 条件更新避免余额变为负数
	res, err := p.db.ExecContext(ctx, `
        UPDATE players SET coins = coins + $1, updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND coins + $1 >= 0
    `, delta, userID)
	if err != nil {
		return nil, models.Persistence("adjust coins", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := p.GetPlayer(ctx, userID); err != nil {
			return nil, err
		}
		return nil, models.ErrInsufficientCoins
	}
	return p.GetPlayer(ctx, userID)
}

func (p *PostgreSQL) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT winner, scores FROM game_records WHERE jsonb_exists(scores, $1) ORDER BY created_at`, userID)
	if err != nil {
		return nil, models.Persistence("player stats", err)
	}
	defer rows.Close()

	stats := &models.PlayerStats{}
	for rows.Next() {
		var (
			winner sql.NullString
			raw    []byte
			res    models.GameResult
		)
		if err := rows.Scan(&winner, &raw); err != nil {
			return nil, models.Persistence("player stats", err)
		}
		if err := json.Unmarshal(raw, &res.Scores); err != nil {
			return nil, &models.PersistenceError{Op: "decode scores", Err: err}
		}
		res.Winner = winner.String
		stats.Tally(userID, res)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Persistence("player stats", err)
	}
	return stats, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
