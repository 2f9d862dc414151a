package archive

/*
Файл archiver.go реализует архив подписанных аудитов для истории и трендов.

- Non-blocking: Finalize в сервисе не ждёт записи в архив, запись уходит в буферизованный канал.
- Batching: записи копятся в памяти и пишутся пачкой по таймеру или при достижении BatchSize.
- Drain Pattern: Stop закрывает вход, воркер вычитывает остаток канала и делает финальный flush.
- Архив вторичен: основная копия аудита уже сохранена через persistence adapter,
  поэтому при переполнении буфера запись сбрасывается с ошибкой в лог (Load Shedding).
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются записи архива.
type Storage interface {
	WriteBatch(ctx context.Context, records []Record) error
}

type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	return c
}

type Archiver struct {
	cfg    Config
	ch     chan Record
	repo   Storage
	fill   prometheus.Gauge
	logger *zap.Logger
	wg     sync.WaitGroup

	isClosed int32 // 0 - открыт, 1 - закрыт
	stopOnce sync.Once
}

// NewArchiver; fill — gauge заполненности буфера, может быть nil.
func NewArchiver(repo Storage, cfg Config, fill prometheus.Gauge, logger *zap.Logger) *Archiver {
	cfg = cfg.withDefaults()
	return &Archiver{
		cfg:    cfg,
		ch:     make(chan Record, cfg.BufferSize),
		repo:   repo,
		fill:   fill,
		logger: logger.With(zap.String("mod", "archive")),
	}
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop «запирает» вход и ждёт, пока воркер всё допишет. Повторный вызов безопасен.
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() {
		// 1. Флаг: новые записи больше не принимаются
		atomic.StoreInt32(&a.isClosed, 1)

		// 2. Даем крошечную паузу, чтобы текущие Put успели проскочить
		time.Sleep(10 * time.Millisecond)

		// 3. Закрываем канал и ждём финального flush
		a.logger.Info("stopping archive: closing channel and flushing buffer...")
		close(a.ch)
		a.wg.Wait()
		a.logger.Info("archive stopped gracefully")
	})
}

// Put ставит запись в очередь. Никогда не блокирует вызывающего.
func (a *Archiver) Put(r Record) bool {
	if atomic.LoadInt32(&a.isClosed) == 1 {
		a.logger.Warn("archive record dropped: archive is stopping", zap.String("audit_id", r.AuditID))
		return false
	}

	select {
	case a.ch <- r:
		a.observeFill()
		return true
	default:
		// Буфер переполнен (Backpressure)
		a.logger.Error("archive_buffer_overflow",
			zap.String("audit_id", r.AuditID),
			zap.String("unit_id", r.UnitID),
			zap.Int("final_score", r.FinalScore))
		return false
	}
}

func (a *Archiver) observeFill() {
	if a.fill != nil {
		a.fill.Set(float64(len(a.ch)))
	}
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	batch := make([]Record, 0, a.cfg.BatchSize)
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст при остановке уже может быть закрыт
		if err := a.repo.WriteBatch(context.Background(), batch); err != nil {
			a.logger.Error("archive flush failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = make([]Record, 0, a.cfg.BatchSize)
		a.observeFill()
	}

	for {
		select {
		case r, ok := <-a.ch:
			if !ok {
				// Канал закрыт в Stop(): остаток уже вычитан, финальный сброс
				flush()
				a.logger.Info("archive worker finished")
				return
			}
			batch = append(batch, r)
			if len(batch) >= a.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
