package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Raffle       RaffleConfig
	Cron         CronConfig
	MercadoPago  MercadoPagoConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.SimulationMode {
		// No backing store in simulation mode; skip DSN assembly.
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RIFA_APP_ENV" required:"true"`
	Port         string `envconfig:"RIFA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RIFA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RIFA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RIFA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RIFA_DB_DSN"`
	Driver string `envconfig:"RIFA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RIFA_DB_HOST"`
	LegacyPort     int    `envconfig:"RIFA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RIFA_DB_USER"`
	LegacyPassword string `envconfig:"RIFA_DB_PASSWORD"`
	LegacyName     string `envconfig:"RIFA_DB_NAME"`
	LegacySSLMode  string `envconfig:"RIFA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RIFA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RIFA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RIFA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RIFA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RIFA_REDIS_URL"`
	Address      string        `envconfig:"RIFA_REDIS_ADDR"`
	Password     string        `envconfig:"RIFA_REDIS_PASSWORD"`
	DB           int           `envconfig:"RIFA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RIFA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RIFA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RIFA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RIFA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RIFA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RaffleConfig collects the tunables of the allocation engine.
type RaffleConfig struct {
	HoldTimeout   time.Duration `envconfig:"RIFA_HOLD_TIMEOUT" default:"15m"`
	SweepInterval time.Duration `envconfig:"RIFA_SWEEP_INTERVAL" default:"1m"`
}

type CronConfig struct {
	Secret string `envconfig:"RIFA_CRON_SECRET"`
}

type MercadoPagoConfig struct {
	AccessToken   string        `envconfig:"RIFA_MP_ACCESS_TOKEN"`
	WebhookSecret string        `envconfig:"RIFA_MP_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"RIFA_MP_BASE_URL" default:"https://api.mercadopago.com"`
	BackURLBase   string        `envconfig:"RIFA_MP_BACK_URL_BASE"`
	RedirectBase  string        `envconfig:"RIFA_MP_REDIRECT_BASE"`
	NotifyURL     string        `envconfig:"RIFA_MP_NOTIFY_URL"`
	Timeout       time.Duration `envconfig:"RIFA_MP_TIMEOUT" default:"5s"`
	Currency      string        `envconfig:"RIFA_MP_CURRENCY" default:"ARS"`
}

type FeatureFlagsConfig struct {
	SimulationMode bool `envconfig:"RIFA_SIMULATION_MODE" default:"false"`
	UseSQLite      bool `envconfig:"RIFA_USE_SQLITE" default:"false"`
	AutoMigrate    bool `envconfig:"RIFA_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
