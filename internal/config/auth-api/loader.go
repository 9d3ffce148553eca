package auth_api_config

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// legacyEnv lists the environment names older deployments use, after the canonical one.
var legacyEnv = map[string][]string{
	"app.name":                  {"APP_NAME"},
	"app.version":               {"APP_VERSION"},
	"auth.jwt_secret":           {"JWT_SECRET_KEY"},
	"auth.jwt_algorithm":        {"JWT_ALGORITHM"},
	"auth.access_ttl_minutes":   {"ACCESS_TOKEN_EXPIRE_MINUTES"},
	"auth.refresh_ttl_days":     {"REFRESH_TOKEN_EXPIRE_DAYS"},
	"db.dsn":                    {"DATABASE_URL"},
	"identity.credentials_file": {"FIREBASE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS"},
	"identity.project_id":       {"FIREBASE_PROJECT_ID"},
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ErrConfig("read config: " + err.Error())
		}
	}

	v.SetDefault("app.name", "doggy-auth")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9100")
	v.SetDefault("server.api_prefix", "/api/v1/auth")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")

	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")
	v.SetDefault("sqlite.path", "doggy-auth.db")
	v.SetDefault("sqlite.query_timeout", "2s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "doggy-auth")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_algorithm", "HS256")
	v.SetDefault("auth.access_ttl_minutes", 15)
	v.SetDefault("auth.refresh_ttl_days", 7)
	v.SetDefault("auth.cookie_name", "refresh_token")
	v.SetDefault("auth.cookie_domain", "")
	v.SetDefault("auth.cookie_path", "/")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.cookie_same_site", "lax")
	v.SetDefault("auth.rotate_refresh_on_use", false)
	v.SetDefault("auth.reject_disabled_users", true)

	v.SetDefault("identity.credentials_file", "")
	v.SetDefault("identity.project_id", "")
	v.SetDefault("identity.verify_timeout", "5s")
	v.SetDefault("identity.check_revoked", false)

	v.SetDefault("ratelimit.enable", true)
	v.SetDefault("ratelimit.limit", 10)
	v.SetDefault("ratelimit.window", "10s")
	v.SetDefault("ratelimit.store", CounterStoreMemory)
	v.SetDefault("ratelimit.trust_proxy", false)
	v.SetDefault("ratelimit.sweep_interval", "1m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "auth.events")
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("outbox.enable", false)
	v.SetDefault("outbox.workers", 1)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "1s")
	v.SetDefault("outbox.in_progress_ttl", "30s")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		canonical := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, canonical}, names...)...); err != nil {
			return nil, ErrConfig("bind env " + key + ": " + err.Error())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ErrConfig("decode config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Auth.JWTSecret == "":
		return ErrConfig("auth.jwt_secret is required")
	case c.Auth.AccessTTLMinutes <= 0:
		return ErrConfig("auth.access_ttl_minutes must be positive")
	case c.Auth.RefreshTTLDays <= 0:
		return ErrConfig("auth.refresh_ttl_days must be positive")
	}
	if _, ok := jwt.GetSigningMethod(c.Auth.JWTAlgorithm).(*jwt.SigningMethodHMAC); !ok {
		return ErrConfig("auth.jwt_algorithm must be one of HS256, HS384, HS512")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return ErrConfig("db.dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return ErrConfig("sqlite.path is required for the sqlite driver")
		}
		if c.Outbox.Enable {
			return ErrConfig("outbox requires the postgres driver")
		}
	default:
		return ErrConfig("storage.driver must be postgres or sqlite")
	}

	if c.RateLimit.Enable {
		if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
			return ErrConfig("ratelimit.limit and ratelimit.window must be positive")
		}
		if c.RateLimit.Store != CounterStoreMemory && c.RateLimit.Store != CounterStoreDatabase {
			return ErrConfig("ratelimit.store must be memory or database")
		}
	}

	if c.Outbox.Enable && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return ErrConfig("outbox needs kafka.brokers and kafka.topic")
	}
	return nil
}
