package config

import (
	"log"
	"os"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string    `yaml:"env" env:"ENV" env-default:"local"`
	Service   string    `yaml:"service" env:"SERVICE_NAME"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Metrics   Metrics   `yaml:"metrics"`
	Postgres  PG        `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Bus       Bus       `yaml:"bus"`
	Outbox    Outbox    `yaml:"outbox"`
	Saga      Saga      `yaml:"saga"`
	Payment   Payment   `yaml:"payment"`
	Inventory Inventory `yaml:"inventory"`
	Basket    Basket    `yaml:"basket"`
	Tracing   Tracing   `yaml:"tracing"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"4s"`
}

type GRPC struct {
	Port string `yaml:"port" env:"GRPC_PORT" env-default:":50051"`
}

type Metrics struct {
	Port string `yaml:"port" env:"METRICS_PORT" env-default:":9091"`
}

type PG struct {
	URL           string `yaml:"url" env:"DB_URL"`
	MigrationsDir string `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"./migrations"`
	MaxConns      int32  `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns      int32  `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
}

type Bus struct {
	MaxAttempts    uint64        `yaml:"max_attempts" env:"BUS_MAX_ATTEMPTS" env-default:"5"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"BUS_INITIAL_BACKOFF" env-default:"200ms"`
	HandlerTimeout time.Duration `yaml:"handler_timeout" env:"BUS_HANDLER_TIMEOUT" env-default:"10s"`
}

type Outbox struct {
	BatchSize   int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	Interval    time.Duration `yaml:"interval" env:"OUTBOX_INTERVAL" env-default:"500ms"`
	MaxAttempts int           `yaml:"max_attempts" env:"OUTBOX_MAX_ATTEMPTS" env-default:"10"`
}

type Saga struct {
	BuyerVerificationTimeout time.Duration `yaml:"buyer_verification_timeout" env:"SAGA_BUYER_TIMEOUT" env-default:"1m"`
	StockValidationTimeout   time.Duration `yaml:"stock_validation_timeout" env:"SAGA_STOCK_TIMEOUT" env-default:"2m"`
	PaymentTimeout           time.Duration `yaml:"payment_timeout" env:"SAGA_PAYMENT_TIMEOUT" env-default:"5m"`
	StockDebitTimeout        time.Duration `yaml:"stock_debit_timeout" env:"SAGA_DEBIT_TIMEOUT" env-default:"2m"`
	MaxDebitReplays          int           `yaml:"max_debit_replays" env:"SAGA_MAX_DEBIT_REPLAYS" env-default:"5"`
	SweepInterval            time.Duration `yaml:"sweep_interval" env:"SAGA_SWEEP_INTERVAL" env-default:"5s"`
}

type Payment struct {
	Succeed bool `yaml:"succeed" env:"PAYMENT_SUCCEEDED" env-default:"true"`
}

type Inventory struct {
	MaxCASRetries uint64 `yaml:"max_cas_retries" env:"INVENTORY_MAX_CAS_RETRIES" env-default:"8"`
}

type Basket struct {
	TTL time.Duration `yaml:"ttl" env:"BASKET_TTL" env-default:"720h"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_ENDPOINT" env-default:"localhost:4318"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_SAMPLE_RATIO" env-default:"1"`
}

// MustLoad reads the YAML file at CONFIG_PATH with env overrides. Without a
// file the configuration comes from the environment alone.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/local.yaml"
	}

	var cfg Config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("config file %s not found, reading environment only", configPath)

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("error reading env config: %v", err)
		}

		return &cfg
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}

func (c *Config) LoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:   c.Log.Level,
		Env:     c.Env,
		Service: c.Service,
	}
}

func (c *Config) TracerOptions() utils.TracerOptions {
	return utils.TracerOptions{
		Service:     c.Service,
		Env:         c.Env,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
