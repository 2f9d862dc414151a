package service

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Signaler — часть redis-клиента для широковещательных сигналов другим репликам.
type Signaler interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// notify отправляет сигнал; Redis вторичен, сбой только логируется. nil Signaler — одиночная реплика.
func notify(ctx context.Context, sig Signaler, logger *zap.Logger, channel, payload string) {
	if sig == nil {
		return
	}
	if err := sig.Publish(ctx, channel, payload).Err(); err != nil {
		logger.Warn("runtime signal delivery failed",
			zap.String("channel", channel),
			zap.Error(err))
	}
}
