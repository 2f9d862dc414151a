package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SetNXer — часть redis-клиента для распределённой блокировки.
type SetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// AcquireOnce — распределенная блокировка (SetNX), чтобы стартовую работу (сидирование каталога)
// выполнил только один инстанс. Без Redis (rdb == nil) инстанс один, и блокировка не нужна.
func AcquireOnce(ctx context.Context, rdb SetNXer, logger *zap.Logger, key string, ttl time.Duration) bool {
	if rdb == nil {
		return true
	}
	ok, err := rdb.SetNX(ctx, key, "processing", ttl).Result()
	if err != nil {
		// Redis недоступен: сидирование идемпотентно относительно пустого каталога, продолжаем
		logger.Warn("startup lock unavailable, proceeding", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}
