package kv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisPutIfScript replaces a hash only when one of its fields holds the expected value.
// KEYS[1] = hash key
// ARGV[1] = guarded field
// ARGV[2] = expected value
// ARGV[3..] = field/value pairs to store
var redisPutIfScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], ARGV[1])
if current ~= ARGV[2] then
    return 0
end
redis.call("DEL", KEYS[1])
for i = 3, #ARGV, 2 do
    redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// RedisStore implements Store with one Redis hash per record at "<table>:<key>".
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new store backed by Redis.
func NewRedisStore(addr string, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

func redisKey(table, key string) string {
	return table + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, table, key string) (Record, error) {
	vals, err := s.client.HGetAll(ctx, redisKey(table, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s failed: %w", table, key, err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return toRecord(vals), nil
}

func (s *RedisStore) Put(ctx context.Context, table, key string, fields map[string]string) error {
	k := redisKey(table, key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(fields) > 0 {
			pipe.HSet(ctx, k, pairs(fields)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s/%s failed: %w", table, key, err)
	}
	return nil
}

func (s *RedisStore) PutIf(ctx context.Context, table, key string, fields map[string]string, cond Condition) error {
	args := append([]interface{}{cond.Field, cond.Expected}, pairs(fields)...)

	ok, err := redisPutIfScript.Run(ctx, s.client, []string{redisKey(table, key)}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis conditional put %s/%s failed: %w", table, key, err)
	}
	if ok != 1 {
		return ErrConditionFailed
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func pairs(fields map[string]string) []interface{} {
	out := make([]interface{}, 0, 2*len(fields))
	for f, v := range fields {
		out = append(out, f, v)
	}
	return out
}
