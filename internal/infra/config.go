package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса аудитов.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"` // Применять goose-миграции при старте
}

// RedisConfig описывает подключение к Redis (Pub/Sub, аренды, бэкенд хранения).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — проверка токенов внешнего IdP.
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
	PublicKey     []byte
}

// EngineConfig — параметры расчёта и правила remediation.
type EngineConfig struct {
	CriticalWeightThreshold int           `mapstructure:"critical_weight_threshold"`
	RemediationDeadline     time.Duration `mapstructure:"remediation_deadline"`
	FallbackMaxValue        float64       `mapstructure:"fallback_max_value"`
	EditLeaseTTL            time.Duration `mapstructure:"edit_lease_ttl"`
}

// StorageConfig — бэкенды persistence adapter в порядке приоритета: postgres, redis, file.
type StorageConfig struct {
	Backends []string `mapstructure:"backends"`
	FileDir  string   `mapstructure:"file_dir"`
	SeedDir  string   `mapstructure:"seed_dir"` // YAML/CSV шаблоны для пустого каталога
}

// MaintenanceConfig — доставка заявок в модуль обслуживания.
type MaintenanceConfig struct {
	Transport string `mapstructure:"transport"` // grpc | kafka | rabbitmq | mock

	GRPCAddr    string        `mapstructure:"grpc_addr"`
	GRPCMethod  string        `mapstructure:"grpc_method"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	RabbitURL   string `mapstructure:"rabbitmq_url"`
	RabbitQueue string `mapstructure:"rabbitmq_queue"`

	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`

	// Настройки Circuit Breaker
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures uint32        `mapstructure:"cb_max_failures"`
}

// ArchiveConfig — асинхронный архив подписанных аудитов.
type ArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path — явный путь к файлу (флаг -config), пустой — поиск config.yaml в . и ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")    // имя файла без расширения
		v.SetConfigType("yaml")      // формат
		v.AddConfigPath(".")         // ищем в корне
		v.AddConfigPath("./configs") // и в папке с конфигами
	}

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Публичный ключ IdP из ENV (Docker/K8s) или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает конфигурации, с которыми сервис заведомо не поднимется.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Storage.Backends) == 0 {
		errs = append(errs, errors.New("storage.backends: at least one backend is required"))
	}
	for _, b := range c.Storage.Backends {
		switch b {
		case "postgres":
			if c.Database.URL == "" {
				errs = append(errs, errors.New("database.url is required for the postgres backend"))
			}
		case "redis":
			if c.Redis.Addr == "" {
				errs = append(errs, errors.New("redis.addr is required for the redis backend"))
			}
		case "file":
		default:
			errs = append(errs, fmt.Errorf("storage.backends: unknown backend %q", b))
		}
	}
	switch c.Maintenance.Transport {
	case "grpc", "kafka", "rabbitmq", "mock":
	default:
		errs = append(errs, fmt.Errorf("maintenance.transport: unknown transport %q", c.Maintenance.Transport))
	}
	if c.Engine.CriticalWeightThreshold < 1 {
		errs = append(errs, errors.New("engine.critical_weight_threshold must be >= 1"))
	}
	if c.Auth.Enabled && len(c.Auth.PublicKey) == 0 {
		errs = append(errs, errors.New("auth.enabled requires auth.public_key_path or AUTH_PUBLIC_KEY_DATA"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Пустые значения регистрируют ключи, иначе Unmarshal не увидит их ENV-override
	for _, key := range []string{
		"server.host", "database.url", "redis.addr", "redis.password",
		"auth.public_key_path", "auth.issuer", "storage.seed_dir",
		"maintenance.grpc_addr", "maintenance.grpc_method", "maintenance.rabbitmq_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("maintenance.kafka_brokers", []string{})

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.migrate", true)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("engine.critical_weight_threshold", 4)
	v.SetDefault("engine.remediation_deadline", 48*time.Hour)
	v.SetDefault("engine.fallback_max_value", 10.0)
	v.SetDefault("engine.edit_lease_ttl", 15*time.Minute)
	v.SetDefault("storage.backends", []string{"file"})
	v.SetDefault("storage.file_dir", "./data")
	v.SetDefault("maintenance.transport", "mock")
	v.SetDefault("maintenance.kafka_topic", "maintenance.work-orders.requested")
	v.SetDefault("maintenance.rabbitmq_queue", "maintenance.work_orders")
	v.SetDefault("maintenance.call_timeout", 10*time.Second)
	v.SetDefault("maintenance.rate_per_second", 50.0)
	v.SetDefault("maintenance.burst", 10)
	v.SetDefault("maintenance.retry_attempts", 3)
	v.SetDefault("maintenance.retry_delay", 200*time.Millisecond)
	v.SetDefault("maintenance.cb_max_requests", 3)
	v.SetDefault("maintenance.cb_interval", 5*time.Second)
	v.SetDefault("maintenance.cb_timeout", 30*time.Second)
	v.SetDefault("maintenance.cb_max_failures", 5)
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.buffer_size", 1000)
	v.SetDefault("archive.batch_size", 100)
	v.SetDefault("archive.flush_interval", 1*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource — ключ прямо из ENV, иначе из файла
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
