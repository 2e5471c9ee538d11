package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"chatrelay/pkg/models"
	"chatrelay/pkg/state/logger"

	"github.com/redis/go-redis/v9"
)

const (
	redisPresencePrefix = "presence:"
	redisPresenceIndex  = "presence_users"
)

// touchScript only writes last_active when the row already exists.
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'last_active', ARGV[1])
  return 1
end
return 0
`)

// expireScript selects and demotes stale rows in one server-side step.
// KEYS[1] index set; ARGV[1] self, ARGV[2] cutoff, ARGV[3] row key prefix.
var expireScript = redis.NewScript(`
local out = {}
local ids = redis.call('SMEMBERS', KEYS[1])
for _, id in ipairs(ids) do
  if id ~= ARGV[1] then
    local k = ARGV[3] .. id
    local vals = redis.call('HMGET', k, 'presence', 'last_active')
    local la = tonumber(vals[2]) or 0
    if vals[1] and vals[1] ~= 'unavailable' and la < tonumber(ARGV[2]) then
      redis.call('HSET', k, 'presence', 'unavailable')
      table.insert(out, id)
    end
  end
end
return out
`)

// DialRedis parses url, selects db and pings the server.
func DialRedis(ctx context.Context, url string, db int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.DB = db
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("redis_connected", "addr", opt.Addr, "db", db)
	return client, nil
}

// RedisPresence keeps one hash per user plus a set indexing every user id.
type RedisPresence struct {
	client *redis.Client
	ns     string
}

// NewRedisPresence stores rows under ns-prefixed keys. ns may be empty.
func NewRedisPresence(client *redis.Client, ns string) *RedisPresence {
	return &RedisPresence{client: client, ns: ns}
}

func (r *RedisPresence) rowKey(userID string) string {
	return r.ns + redisPresencePrefix + userID
}

func (r *RedisPresence) indexKey() string {
	return r.ns + redisPresenceIndex
}

func (r *RedisPresence) Ready() bool { return r.client != nil }

func (r *RedisPresence) Upsert(ctx context.Context, rec models.PresenceRecord) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.rowKey(rec.UserID),
			"user_id", rec.UserID,
			"presence", string(rec.Presence),
			"last_active", rec.LastActive,
		)
		pipe.SAdd(ctx, r.indexKey(), rec.UserID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert presence %s: %w", rec.UserID, err)
	}
	return nil
}

func (r *RedisPresence) List(ctx context.Context, except string) ([]models.PresenceRecord, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.UserID != except {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisPresence) ListConnected(ctx context.Context, except string) ([]string, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rec := range all {
		if rec.UserID != except && rec.Presence.Connected() {
			out = append(out, rec.UserID)
		}
	}
	return out, nil
}

func (r *RedisPresence) Touch(ctx context.Context, userID string, at int64) error {
	n, err := touchScript.Run(ctx, r.client, []string{r.rowKey(userID)}, at).Int()
	if err != nil {
		return fmt.Errorf("touch presence %s: %w", userID, err)
	}
	if n == 0 {
		logger.Debug("presence_touch_missing", "user_id", userID)
	}
	return nil
}

func (r *RedisPresence) Delete(ctx context.Context, userID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.rowKey(userID))
		pipe.SRem(ctx, r.indexKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete presence %s: %w", userID, err)
	}
	return nil
}

func (r *RedisPresence) ExpireInactive(ctx context.Context, self string, cutoff int64) ([]string, error) {
	ids, err := expireScript.Run(ctx, r.client, []string{r.indexKey()}, self, cutoff, r.ns+redisPresencePrefix).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("expire presence: %w", err)
	}
	return ids, nil
}

func (r *RedisPresence) all(ctx context.Context) ([]models.PresenceRecord, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.rowKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read presence rows: %w", err)
	}
	out := make([]models.PresenceRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			logger.Warn("presence_row_unreadable", "user_id", ids[i], "error", err)
			continue
		}
		rec, ok := recordFromHash(fields)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// recordFromHash decodes an HGETALL reply; an empty reply means the row is gone.
func recordFromHash(fields map[string]string) (models.PresenceRecord, bool) {
	id, ok := fields["user_id"]
	if !ok || id == "" {
		return models.PresenceRecord{}, false
	}
	la, _ := strconv.ParseInt(fields["last_active"], 10, 64)
	return models.PresenceRecord{
		UserID:     id,
		Presence:   models.Presence(fields["presence"]),
		LastActive: la,
	}, true
}
