// Package app собирает общие ресурсы процессов (пул Postgres, клиент Redis, persistence adapter)
// из конфигурации. Используется API-сервером и templatectl.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/compliance-audit-engine/internal/infra"
	"github.com/xela07ax/compliance-audit-engine/internal/storage"
	"github.com/xela07ax/compliance-audit-engine/internal/storage/file"
	"github.com/xela07ax/compliance-audit-engine/internal/storage/postgres"
	"github.com/xela07ax/compliance-audit-engine/internal/storage/redisstore"
)

type Resources struct {
	Pool  *pgxpool.Pool // nil, если database.url не задан
	Redis *redis.Client // nil, если redis.addr не задан
	Repo  *storage.Chain
}

// Open подключает базу и Redis, применяет миграции и собирает бэкенды хранения в порядке конфигурации.
func Open(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (*Resources, error) {
	res := &Resources{}

	if cfg.Database.URL != "" {
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		res.Pool = pool

		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				res.Close()
				return nil, err
			}
		}
	}

	if cfg.Redis.Addr != "" {
		res.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := res.Redis.Ping(ctx).Err(); err != nil {
			// Для сигналов и аренд Redis вторичен; если он бэкенд хранения, chain переключится на следующий
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	repo, err := buildChain(cfg.Storage, res, logger)
	if err != nil {
		res.Close()
		return nil, err
	}
	res.Repo = repo
	return res, nil
}

func buildChain(cfg infra.StorageConfig, res *Resources, logger *zap.Logger) (*storage.Chain, error) {
	var backends []storage.Backend
	for _, name := range cfg.Backends {
		switch name {
		case "postgres":
			if res.Pool == nil {
				return nil, errors.New("app: postgres backend requires database.url")
			}
			backends = append(backends, storage.Backend{Name: name, Adapter: postgres.NewStore(res.Pool)})
		case "redis":
			if res.Redis == nil {
				return nil, errors.New("app: redis backend requires redis.addr")
			}
			backends = append(backends, storage.Backend{Name: name, Adapter: redisstore.NewStore(res.Redis)})
		case "file":
			fs, err := file.New(cfg.FileDir)
			if err != nil {
				return nil, err
			}
			backends = append(backends, storage.Backend{Name: name, Adapter: fs})
		default:
			return nil, fmt.Errorf("app: unknown storage backend %q", name)
		}
	}
	if len(backends) == 0 {
		return nil, storage.ErrNoBackends
	}
	return storage.NewChain(logger, backends...), nil
}

func (r *Resources) Close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}
