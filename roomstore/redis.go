package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
)

func roomKey(id string) string   { return "sudoku:room:" + id }
func chatKey(id string) string   { return "sudoku:room:" + id + ":chat" }
func eventsKey(id string) string { return "sudoku:room:" + id + ":events" }

// Redis stores each room as a JSON document, its chat as a list, and
// announces every write on a per-room pub/sub channel.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to the redis instance at url (redis://...).
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, models.Persistence("ping redis", err)
	}
	logger.Log.Infof("room store connected to redis %s", opts.Addr)
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (s *Redis) Get(ctx context.Context, roomID string) (*models.Room, error) {
	var (
		docCmd  *redis.StringCmd
		chatCmd *redis.StringSliceCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		docCmd = pipe.Get(ctx, roomKey(roomID))
		chatCmd = pipe.LRange(ctx, chatKey(roomID), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, models.Persistence("get room", err)
	}

	raw, err := docCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrRoomNotFound
	}
	if err != nil {
		return nil, models.Persistence("get room", err)
	}
	room, err := decodeRoom(raw)
	if err != nil {
		return nil, err
	}

	for _, entry := range chatCmd.Val() {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, &models.PersistenceError{Op: "decode chat", Err: err}
		}
		room.Chat = append(room.Chat, msg)
	}
	return room, nil
}

func (s *Redis) Create(ctx context.Context, room *models.Room) error {
	raw, err := encodeRoom(room)
	if err != nil {
		return models.Persistence("encode room", err)
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(room.ID), raw, s.ttl).Result()
	if err != nil {
		return models.Persistence("create room", err)
	}
	if !ok {
		return models.ErrRoomExists
	}
	s.publish(ctx, room.ID, room.Revision)
	return nil
}

// Update runs fn under WATCH on the room key. A concurrent write aborts the
// transaction and fn is retried against the fresh document.
func (s *Redis) Update(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	key := roomKey(roomID)
	var (
		result *models.Room
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			fnErr = models.ErrRoomNotFound
			return fnErr
		}
		if err != nil {
			return err
		}
		room, err := decodeRoom(raw)
		if err != nil {
			fnErr = err
			return err
		}
		base := room.Revision
		if err := fn(room); err != nil {
			fnErr = err
			return err
		}
		room.Chat = nil
		room.Revision = base + 1
		enc, err := encodeRoom(room)
		if err != nil {
			fnErr = models.Persistence("encode room", err)
			return fnErr
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, s.ttl)
			pipe.Publish(ctx, eventsKey(roomID), strconv.FormatInt(room.Revision, 10))
			return nil
		})
		if err == nil {
			result = room
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		fnErr = nil
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if fnErr != nil {
			return nil, fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			logger.Log.Debugf("room %s update conflict, attempt %d", roomID, attempt+1)
			continue
		}
		return nil, models.Persistence("update room", err)
	}
	return nil, models.ErrConcurrencyConflict
}

func (s *Redis) AppendChat(ctx context.Context, roomID string, msg models.ChatMessage) error {
	n, err := s.rdb.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return models.Persistence("append chat", err)
	}
	if n == 0 {
		return models.ErrRoomNotFound
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return models.Persistence("encode chat", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, chatKey(roomID), raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, chatKey(roomID), s.ttl)
		}
		pipe.Publish(ctx, eventsKey(roomID), "chat")
		return nil
	})
	if err != nil {
		return models.Persistence("append chat", err)
	}
	return nil
}

func (s *Redis) Subscribe(ctx context.Context, roomID string, handler func(models.Room)) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, eventsKey(roomID))
	// wait for the subscription to be confirmed so no write is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, models.Persistence("subscribe room", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSub{ps: ps, cancel: cancel}
	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				room, err := s.Get(subCtx, roomID)
				if err != nil {
					if subCtx.Err() == nil {
						logger.Log.Warnf("room %s snapshot failed: %v", roomID, err)
					}
					continue
				}
				handler(*room)
			}
		}
	}()
	return sub, nil
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}

func (s *Redis) publish(ctx context.Context, roomID string, rev int64) {
	if err := s.rdb.Publish(ctx, eventsKey(roomID), strconv.FormatInt(rev, 10)).Err(); err != nil {
		logger.Log.Warnf("publish room %s: %v", roomID, err)
	}
}

type redisSub struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
}

func (s *redisSub) Unsubscribe() error {
	s.cancel()
	return s.ps.Close()
}
