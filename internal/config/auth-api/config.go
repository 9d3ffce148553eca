package auth_api_config

import (
	"net/http"
	"strings"
	"time"

	"github.com/NordCoder/doggy-auth/internal/auth"
	"github.com/NordCoder/doggy-auth/internal/identity/firebase"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"github.com/NordCoder/doggy-auth/internal/ratelimit"
	kafkax "github.com/NordCoder/doggy-auth/internal/repository/kafka"
	pg "github.com/NordCoder/doggy-auth/internal/repository/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	CounterStoreMemory   = "memory"
	CounterStoreDatabase = "database"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Storage struct {
	Driver string `mapstructure:"driver"`
}

type SQLite struct {
	Path         string        `mapstructure:"path"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	JWTSecret           string `mapstructure:"jwt_secret"`
	JWTAlgorithm        string `mapstructure:"jwt_algorithm"`
	AccessTTLMinutes    int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays      int    `mapstructure:"refresh_ttl_days"`
	CookieName          string `mapstructure:"cookie_name"`
	CookieDomain        string `mapstructure:"cookie_domain"`
	CookiePath          string `mapstructure:"cookie_path"`
	CookieSecure        bool   `mapstructure:"cookie_secure"`
	CookieSameSite      string `mapstructure:"cookie_same_site"`
	RotateRefreshOnUse  bool   `mapstructure:"rotate_refresh_on_use"`
	RejectDisabledUsers bool   `mapstructure:"reject_disabled_users"`
}

type Identity struct {
	CredentialsFile string        `mapstructure:"credentials_file"`
	ProjectID       string        `mapstructure:"project_id"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout"`
	CheckRevoked    bool          `mapstructure:"check_revoked"`
}

type RateLimit struct {
	Enable        bool          `mapstructure:"enable"`
	Limit         int64         `mapstructure:"limit"`
	Window        time.Duration `mapstructure:"window"`
	Store         string        `mapstructure:"store"`
	TrustProxy    bool          `mapstructure:"trust_proxy"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Kafka struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

type Outbox struct {
	Enable        bool          `mapstructure:"enable"`
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Config struct {
	App       App       `mapstructure:"app"`
	Server    Server    `mapstructure:"server"`
	Storage   Storage   `mapstructure:"storage"`
	DB        pg.Config `mapstructure:"db"`
	SQLite    SQLite    `mapstructure:"sqlite"`
	OTEL      OTEL      `mapstructure:"otel"`
	Log       Log       `mapstructure:"log"`
	Auth      Auth      `mapstructure:"auth"`
	Identity  Identity  `mapstructure:"identity"`
	RateLimit RateLimit `mapstructure:"ratelimit"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Outbox    Outbox    `mapstructure:"outbox"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

func (c *Config) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		Version:     c.App.Version,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

func (a *Auth) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLMinutes) * time.Minute
}

func (a *Auth) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTTLDays) * 24 * time.Hour
}

func (a *Auth) AsCodecConfig() auth.Config {
	return auth.Config{
		Secret:     []byte(a.JWTSecret),
		Algorithm:  a.JWTAlgorithm,
		AccessTTL:  a.AccessTTL(),
		RefreshTTL: a.RefreshTTL(),
	}
}

func (a *Auth) SameSite() http.SameSite {
	switch strings.ToLower(a.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (i *Identity) AsFirebaseConfig() firebase.Config {
	return firebase.Config{
		CredentialsFile: i.CredentialsFile,
		ProjectID:       i.ProjectID,
		VerifyTimeout:   i.VerifyTimeout,
		CheckRevoked:    i.CheckRevoked,
	}
}

func (r *RateLimit) AsLimiterConfig() ratelimit.Config {
	return ratelimit.Config{Limit: r.Limit, Window: r.Window}
}

func (k *Kafka) AsProducerConfig() kafkax.ProducerConfig {
	return kafkax.ProducerConfig{
		Brokers:           k.Brokers,
		Topic:             k.Topic,
		Partitions:        k.Partitions,
		ReplicationFactor: k.ReplicationFactor,
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
