package config

import (
	"time"

	pkgconfig "github.com/fanstage/live-service/pkg/config"
	"github.com/fanstage/live-service/pkg/pubsub"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       pubsub.RedisConfig
	Cache       CacheConfig
	Kafka       KafkaConfig
	Encoder     EncoderConfig
	Entitlement EntitlementConfig
	Signer      SignerConfig
	WebSocket   WebSocketConfig `mapstructure:"websocket"`
	Session     SessionConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type CacheConfig struct {
	Prefix string
	TTL    time.Duration
}

type KafkaConfig struct {
	Brokers    string
	ChatTopic  string `mapstructure:"chat_topic"`
	Partitions int
}

// EncoderConfig configures the external encoding channel provider.
type EncoderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	IngestURL      string        `mapstructure:"ingest_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
	RetryWait      time.Duration `mapstructure:"retry_wait"`
}

// EntitlementConfig configures the external entitlement/payment service.
type EntitlementConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
	RetryWait      time.Duration `mapstructure:"retry_wait"`
}

// SignerConfig configures the playback locator signer.
type SignerConfig struct {
	Driver        string `mapstructure:"driver"` // jwt, s3
	Secret        string
	Issuer        string
	PlaybackTTL   time.Duration `mapstructure:"playback_ttl"`
	PlaybackBase  string        `mapstructure:"playback_base"`
	S3Endpoint    string        `mapstructure:"s3_endpoint"`
	S3Region      string        `mapstructure:"s3_region"`
	S3Bucket      string        `mapstructure:"s3_bucket"`
	S3AccessKey   string        `mapstructure:"s3_access_key"`
	S3SecretKey   string        `mapstructure:"s3_secret_key"`
	S3UsePathStyle bool         `mapstructure:"s3_use_path_style"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	SendQueueDepth  int           `mapstructure:"send_queue_depth"`
}

type SessionConfig struct {
	MaxActivePerOwner int           `mapstructure:"max_active_per_owner"`
	MaxViewersLimit   int           `mapstructure:"max_viewers_limit"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "live_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/live.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("cache.prefix", "live:session")
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.chat_topic", "live-chat-events")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("encoder.base_url", "http://localhost:8200")
	v.SetDefault("encoder.ingest_url", "rtmp://localhost:1935/live")
	v.SetDefault("encoder.request_timeout", 10*time.Second)
	v.SetDefault("encoder.retry_count", 2)
	v.SetDefault("encoder.retry_wait", 500*time.Millisecond)
	v.SetDefault("entitlement.base_url", "http://localhost:8100")
	v.SetDefault("entitlement.request_timeout", 5*time.Second)
	v.SetDefault("entitlement.retry_count", 2)
	v.SetDefault("entitlement.retry_wait", 200*time.Millisecond)
	v.SetDefault("signer.driver", "jwt")
	v.SetDefault("signer.issuer", "live-service")
	v.SetDefault("signer.playback_ttl", 60*time.Minute)
	v.SetDefault("signer.playback_base", "https://play.fanstage.io")
	v.SetDefault("signer.s3_region", "us-east-1")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.ping_interval", 50*time.Second)
	v.SetDefault("websocket.send_queue_depth", 256)
	v.SetDefault("session.max_active_per_owner", 1)
	v.SetDefault("session.max_viewers_limit", 10000)
	v.SetDefault("session.confirm_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("encoder.base_url", "ENCODER_BASE_URL")
	v.BindEnv("encoder.api_key", "ENCODER_API_KEY")
	v.BindEnv("encoder.ingest_url", "ENCODER_INGEST_URL")
	v.BindEnv("entitlement.base_url", "ENTITLEMENT_BASE_URL")
	v.BindEnv("signer.driver", "SIGNER_DRIVER")
	v.BindEnv("signer.secret", "SIGNER_SECRET")
	v.BindEnv("signer.s3_access_key", "S3_ACCESS_KEY")
	v.BindEnv("signer.s3_secret_key", "S3_SECRET_KEY")
	v.BindEnv("session.max_active_per_owner", "MAX_ACTIVE_SESSIONS_PER_OWNER")
	v.BindEnv("session.confirm_timeout", "SESSION_CONFIRM_TIMEOUT")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
