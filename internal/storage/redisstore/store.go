// Package redisstore — бэкенд persistence adapter в Redis: каждая коллекция хранится
// одним JSON-значением, плюс распределённая аренда аудитов на редактирование.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/infra"
)

type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) LoadTemplates(ctx context.Context) ([]domain.AuditTemplate, error) {
	list := make([]domain.AuditTemplate, 0)
	return list, s.get(ctx, infra.RedisKeyTemplates, &list)
}

func (s *Store) SaveTemplates(ctx context.Context, list []domain.AuditTemplate) error {
	return s.set(ctx, infra.RedisKeyTemplates, list)
}

func (s *Store) LoadSimulations(ctx context.Context) ([]domain.AuditSimulation, error) {
	list := make([]domain.AuditSimulation, 0)
	return list, s.get(ctx, infra.RedisKeySimulations, &list)
}

func (s *Store) SaveSimulations(ctx context.Context, list []domain.AuditSimulation) error {
	return s.set(ctx, infra.RedisKeySimulations, list)
}

// get: отсутствующий ключ — пустая коллекция.
func (s *Store) get(ctx context.Context, key string, dst any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Продление и снятие аренды только своим держателем (compare-and-set атомарно на стороне Redis).
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease — распределённая аренда аудита между репликами консоли.
type Lease struct {
	rdb *redis.Client
}

func NewLease(rdb *redis.Client) *Lease {
	return &Lease{rdb: rdb}
}

func (l *Lease) Acquire(ctx context.Context, sessionID, holder string, ttl time.Duration) error {
	key := infra.GetSessionLeaseKey(sessionID)

	// 1. Свободно — берём (SetNX)
	ok, err := l.rdb.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: lease %s: %w", sessionID, err)
	}
	if ok {
		return nil
	}

	// 2. Занято — продлеваем, если держатель мы
	renewed, err := renewScript.Run(ctx, l.rdb, []string{key}, holder, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis: renew lease %s: %w", sessionID, err)
	}
	if renewed == 1 {
		return nil
	}

	// 3. Аренда могла истечь между шагами 1 и 2
	ok, err = l.rdb.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: lease %s: %w", sessionID, err)
	}
	if ok {
		return nil
	}
	return domain.ErrSessionLocked
}

func (l *Lease) Release(ctx context.Context, sessionID, holder string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{infra.GetSessionLeaseKey(sessionID)}, holder).Err(); err != nil {
		return fmt.Errorf("redis: release lease %s: %w", sessionID, err)
	}
	return nil
}
