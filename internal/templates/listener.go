package templates

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscriber — часть redis-клиента, нужная листенеру.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// ListenRefresh — «живучая» подписка на сигнал публикации шаблона другой репликой.
// При каждом (пере)подключении каталог перечитывается целиком, payload сигнала (ID шаблона) служит только для лога.
func (s *Store) ListenRefresh(ctx context.Context, rdb Subscriber, channel string) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		// Сигналы могли быть потеряны, пока подписки не было
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				s.logger.Debug("template published elsewhere", zap.String("template_id", msg.Payload))
				if err := s.Refresh(ctx); err != nil {
					s.logger.Error("refresh on signal failed", zap.Error(err))
				}
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
