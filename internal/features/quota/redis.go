package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"serotonyl.ru/hacker-bot/internal/common"
)

// checkAndRecordScript — то же фиксированное окно, что и Window.Advance,
// выполненное на стороне Redis одним скриптом. Время в миллисекундах.
// Возвращает {allowed, count, window_start, retry_after}.
var checkAndRecordScript = goredis.NewScript(`
local ws = tonumber(redis.call('HGET', KEYS[1], 'ws'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local period = tonumber(ARGV[3])

if (not ws) or (now - ws >= period) then
  redis.call('HSET', KEYS[1], 'ws', now, 'count', 1)
  redis.call('PEXPIRE', KEYS[1], period)
  return {1, 1, now, 0}
end
if count < limit then
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
  return {1, count, ws, 0}
end
return {0, count, ws, ws + period - now}
`)

// releaseScript уменьшает счётчик, только если окно не сменилось.
var releaseScript = goredis.NewScript(`
local ws = tonumber(redis.call('HGET', KEYS[1], 'ws'))
if ws and ws == tonumber(ARGV[1]) then
  local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
  if count and count > 0 then
    return redis.call('HINCRBY', KEYS[1], 'count', -1)
  end
end
return -1
`)

// RedisStore — бэкенд квот на Redis. Ключ живёт ровно period,
// аудит-событий не пишет.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

// NewRedisStore создаёт бэкенд; prefix отделяет ключи бота от чужих.
func NewRedisStore(client *goredis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + "quota:" + k.String()
}

// CheckAndRecord атомарно проверяет и засчитывает вызов.
func (s *RedisStore) CheckAndRecord(ctx context.Context, key Key, limit int, period time.Duration, now time.Time) (Decision, error) {
	res, err := checkAndRecordScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), limit, period.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, classifyRedis(fmt.Errorf("скрипт квоты: %w", err))
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("скрипт квоты вернул %d значений", len(res))
	}

	return Decision{
		Allowed:     res[0] == 1,
		Count:       int(res[1]),
		Limit:       limit,
		WindowStart: time.UnixMilli(res[2]).UTC(),
		RetryAfter:  time.Duration(res[3]) * time.Millisecond,
	}, nil
}

// Release возвращает один вызов в окно.
// Аудит-событий Redis не пишет, now не используется.
func (s *RedisStore) Release(ctx context.Context, key Key, windowStart, _ time.Time) error {
	err := releaseScript.Run(ctx, s.client, []string{s.key(key)}, windowStart.UnixMilli()).Err()
	if err != nil {
		return classifyRedis(fmt.Errorf("скрипт возврата квоты: %w", err))
	}
	return nil
}

// Get читает окно без изменения.
func (s *RedisStore) Get(ctx context.Context, key Key) (Window, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "ws", "count").Result()
	if err != nil {
		return Window{}, false, classifyRedis(fmt.Errorf("чтение окна: %w", err))
	}
	ws, ok1 := parseRedisInt(vals[0])
	count, ok2 := parseRedisInt(vals[1])
	if !ok1 || !ok2 {
		return Window{}, false, nil
	}
	return Window{Start: time.UnixMilli(ws).UTC(), Count: int(count)}, true, nil
}

func parseRedisInt(v any) (int64, bool) {
	str, ok := v.(string)
	if !ok {
		return 0, false
	}
	var n int64
	if _, err := fmt.Sscan(str, &n); err != nil {
		return 0, false
	}
	return n, true
}

// classifyRedis: всё, кроме redis.Nil, — сбой инфраструктуры.
func classifyRedis(err error) error {
	if err == nil || errors.Is(err, goredis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
}
