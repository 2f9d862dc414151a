package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/compliance-audit-engine/internal/app"
	"github.com/xela07ax/compliance-audit-engine/internal/archive"
	"github.com/xela07ax/compliance-audit-engine/internal/connectors"
	"github.com/xela07ax/compliance-audit-engine/internal/console/handler"
	"github.com/xela07ax/compliance-audit-engine/internal/console/server"
	"github.com/xela07ax/compliance-audit-engine/internal/console/service"
	"github.com/xela07ax/compliance-audit-engine/internal/engine"
	"github.com/xela07ax/compliance-audit-engine/internal/infra"
	"github.com/xela07ax/compliance-audit-engine/internal/infra/auth"
	"github.com/xela07ax/compliance-audit-engine/internal/ingest"
	"github.com/xela07ax/compliance-audit-engine/internal/remediation"
	"github.com/xela07ax/compliance-audit-engine/internal/scoring"
	"github.com/xela07ax/compliance-audit-engine/internal/storage"
	"github.com/xela07ax/compliance-audit-engine/internal/storage/postgres"
	"github.com/xela07ax/compliance-audit-engine/internal/storage/redisstore"
	"github.com/xela07ax/compliance-audit-engine/internal/templates"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	flag.Parse()

	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 2. Инфраструктура и ресурсы
	res, err := app.Open(appCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer res.Close()
	pool, rdb, repo := res.Pool, res.Redis, res.Repo

	// 3. Каталог шаблонов + сигналы публикации от других реплик
	store := templates.NewStore(repo, logger)
	if err := store.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load templates", zap.Error(err))
	}

	var signals service.Signaler
	if rdb != nil {
		signals = rdb
		go store.ListenRefresh(appCtx, rdb, infra.RedisChanTemplatePublished)
	}

	tplSvc := service.NewTemplateService(store, repo, ingest.NewBuilder(), signals, logger)
	if cfg.Storage.SeedDir != "" {
		var locker app.SetNXer
		if rdb != nil {
			locker = rdb
		}
		// Остальные реплики получат шаблоны через сигнал публикации
		if app.AcquireOnce(appCtx, locker, logger, infra.RedisKeySeedLock, 30*time.Second) {
			seedTemplates(appCtx, tplSvc, cfg.Storage.SeedDir, logger)
		}
	}

	// 4. Core: расчёт и правило remediation
	rule := remediation.NewRule(cfg.Engine.CriticalWeightThreshold, cfg.Engine.RemediationDeadline)
	eng := engine.NewEngine(store, scoring.Calculator{FallbackMax: cfg.Engine.FallbackMaxValue}, rule, metrics, logger)

	// 5. Execution Layer: транспорт заявок + Reliability (Rate Limit, Retries, Circuit Breaker)
	sink, closeSink, err := buildSink(cfg.Maintenance, logger)
	if err != nil {
		logger.Fatal("maintenance transport", zap.Error(err))
	}
	defer closeSink()

	safeSink := connectors.NewReliabilityWrapper(sink, connectors.ReliabilityConfig{
		Name:          "maintenance-" + cfg.Maintenance.Transport,
		RatePerSecond: cfg.Maintenance.RatePerSecond,
		Burst:         cfg.Maintenance.Burst,
		Attempts:      cfg.Maintenance.RetryAttempts,
		RetryDelay:    cfg.Maintenance.RetryDelay,
		CallTimeout:   cfg.Maintenance.CallTimeout,
		CBMaxRequests: cfg.Maintenance.CBMaxRequests,
		CBInterval:    cfg.Maintenance.CBInterval,
		CBTimeout:     cfg.Maintenance.CBTimeout,
		CBMaxFailures: cfg.Maintenance.CBMaxFailures,
		OnStateChange: func(state gobreaker.State) {
			metrics.RemediationBreaker.Set(float64(state))
			logger.Warn("maintenance circuit breaker state changed", zap.String("state", state.String()))
		},
	})

	// 6. Аренда аудита на редактирование: Redis между репликами, иначе в памяти
	var lease storage.Lease = storage.NewMemoryLease()
	if rdb != nil {
		lease = redisstore.NewLease(rdb)
	}

	// 7. Архив подписанных аудитов
	var arch service.Archive
	if cfg.Archive.Enabled {
		var archStorage archive.Storage = archive.NewLogStorage(logger)
		if pool != nil {
			archStorage = postgres.NewArchiveRepo(pool)
		}
		archiver := archive.NewArchiver(archStorage, archive.Config{
			BufferSize:    cfg.Archive.BufferSize,
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, metrics.ArchiveBufferFill, logger)
		archiver.Start()
		defer archiver.Stop()
		arch = archiver
	}

	auditSvc := service.NewAuditService(eng, store, repo, lease, safeSink, arch, signals, metrics,
		service.AuditServiceConfig{
			LeaseTTL:  cfg.Engine.EditLeaseTTL,
			Transport: cfg.Maintenance.Transport,
		}, logger)
	if err := auditSvc.Load(appCtx); err != nil {
		logger.Fatal("failed to load audits", zap.Error(err))
	}
	defer auditSvc.Close()

	// 8. HTTP Server
	var validator auth.TokenValidator
	if cfg.Auth.Enabled {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("invalid IdP public key", zap.Error(err))
		}
		validator = auth.NewBaseValidator(pub, cfg.Auth.Issuer)
	}

	api := server.NewConsoleServer(logger, validator, reg,
		handler.NewTemplateHandler(tplSvc, logger),
		handler.NewAuditHandler(auditSvc, logger))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("audit API started",
			zap.String("addr", srv.Addr),
			zap.Strings("storage", cfg.Storage.Backends),
			zap.String("transport", cfg.Maintenance.Transport),
			zap.Bool("auth", cfg.Auth.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("audit API stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	// Дальше по defer: доставка заявок, drain архива, закрытие транспорта и пулов
}

// buildSink выбирает транспорт до модуля обслуживания.
func buildSink(cfg infra.MaintenanceConfig, logger *zap.Logger) (connectors.WorkOrderSink, func(), error) {
	noop := func() {}
	switch cfg.Transport {
	case "grpc":
		conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, noop, fmt.Errorf("grpc client %s: %w", cfg.GRPCAddr, err)
		}
		return connectors.NewGRPCSink(conn, cfg.GRPCMethod, cfg.CallTimeout), func() { _ = conn.Close() }, nil
	case "kafka":
		sink := connectors.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		return sink, func() { _ = sink.Close() }, nil
	case "rabbitmq":
		sink, err := connectors.NewRabbitSink(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return nil, noop, err
		}
		return sink, func() { _ = sink.Close() }, nil
	case "mock":
		return connectors.NewMockSink(logger), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", connectors.ErrUnknownTransport, cfg.Transport)
	}
}

// seedTemplates публикует шаблоны из каталога при первом старте (каталог пуст).
func seedTemplates(ctx context.Context, svc *service.TemplateService, dir string, logger *zap.Logger) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json", "*.csv"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	candidates := make([]ingest.Candidate, 0, len(paths))
	for _, p := range paths {
		c, err := ingest.LoadFile(p)
		if err != nil {
			logger.Error("seed file skipped", zap.String("path", p), zap.Error(err))
			continue
		}
		candidates = append(candidates, c)
	}

	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := svc.Seed(seedCtx, candidates)
	if err != nil {
		logger.Error("seeding templates failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("templates seeded", zap.Int("count", n), zap.String("dir", dir))
	}
}
