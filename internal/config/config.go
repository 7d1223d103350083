package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database"`
	Cache     CacheConfig     `json:"cache"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq"`
	Topology  TopologyConfig  `json:"topology"`
	Worker    WorkerConfig    `json:"worker"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Metrics   MetricsConfig   `json:"metrics"`
	Logger    LoggerConfig    `json:"logger"`
}

// ServerConfig is the operational HTTP surface of the fund service
type ServerConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	Environment  string        `json:"environment"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// GatewayConfig is the HTTP and WebSocket surface of the fund client
type GatewayConfig struct {
	Port           int           `json:"port"`
	Host           string        `json:"host"`
	RequestTimeout time.Duration `json:"request_timeout"`
	PingInterval   time.Duration `json:"ping_interval"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// DatabaseConfig represents MongoDB configuration
type DatabaseConfig struct {
	URI            string `json:"uri"`
	Database       string `json:"database"`
	MaxPoolSize    int    `json:"max_pool_size"`
	MinPoolSize    int    `json:"min_pool_size"`
	MaxIdleTime    int    `json:"max_idle_time"`
	ConnectTimeout int    `json:"connect_timeout"`
	SocketTimeout  int    `json:"socket_timeout"`
	ReplicaSet     string `json:"replica_set"`
}

// CacheConfig represents Redis configuration
type CacheConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	MaxRetries         int           `json:"max_retries"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	PoolTimeout        time.Duration `json:"pool_timeout"`
	IdleTimeout        time.Duration `json:"idle_timeout"`

	// Summary storage
	SummaryKey     string        `json:"summary_key"`
	SummaryChannel string        `json:"summary_channel"`
	SummaryTTL     time.Duration `json:"summary_ttl"`
}

// RabbitMQConfig represents RabbitMQ configuration
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	VHost    string `json:"vhost"`

	// Connection settings
	Heartbeat            time.Duration `json:"heartbeat"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `json:"reconnect_delay"`
}

// TopologyConfig names the broker layout
type TopologyConfig struct {
	AppName string `json:"app_name"`
}

// WorkerConfig sizes each listening component's worker pool
type WorkerConfig struct {
	PoolSize       int           `json:"pool_size"`
	QueueSize      int           `json:"queue_size"`
	ProcessTimeout time.Duration `json:"process_timeout"`
}

// SchedulerConfig represents background job scheduling configuration
type SchedulerConfig struct {
	Enabled            bool   `json:"enabled"`
	QueueProbeInterval string `json:"queue_probe_interval"` // Cron expression
	TimeZone           string `json:"timezone"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
	Path      string `json:"path"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	Filename   string `json:"filename"`
	MaxSize    int    `json:"max_size"`
	MaxAge     int    `json:"max_age"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if exists
	godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8085),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},

		Gateway: GatewayConfig{
			Port:           getEnvInt("GATEWAY_PORT", 8090),
			Host:           getEnv("GATEWAY_HOST", "0.0.0.0"),
			RequestTimeout: getEnvDuration("GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvDuration("GATEWAY_WS_PING_INTERVAL", 30*time.Second),
			AllowedOrigins: getEnvList("GATEWAY_ALLOWED_ORIGINS", nil),
		},

		Database: DatabaseConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "fund_manager"),
			MaxPoolSize:    getEnvInt("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:    getEnvInt("MONGODB_MIN_POOL_SIZE", 5),
			MaxIdleTime:    getEnvInt("MONGODB_MAX_IDLE_TIME", 300),
			ConnectTimeout: getEnvInt("MONGODB_CONNECT_TIMEOUT", 10),
			SocketTimeout:  getEnvInt("MONGODB_SOCKET_TIMEOUT", 30),
			ReplicaSet:     getEnv("MONGODB_REPLICA_SET", ""),
		},

		Cache: CacheConfig{
			Host:               getEnv("REDIS_HOST", "localhost"),
			Port:               getEnvInt("REDIS_PORT", 6379),
			Password:           getEnv("REDIS_PASSWORD", ""),
			DB:                 getEnvInt("REDIS_DB", 0),
			MaxRetries:         getEnvInt("REDIS_MAX_RETRIES", 3),
			PoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConnections: getEnvInt("REDIS_MIN_IDLE_CONNECTIONS", 2),
			DialTimeout:        getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:        getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:       getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:        getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:        getEnvDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			SummaryKey:         getEnv("CACHE_SUMMARY_KEY", "fundmanager:summary"),
			SummaryChannel:     getEnv("CACHE_SUMMARY_CHANNEL", "fundmanager:summary:updates"),
			SummaryTTL:         getEnvDuration("CACHE_SUMMARY_TTL", 0),
		},

		RabbitMQ: RabbitMQConfig{
			URL:                  getEnv("RABBITMQ_URL", ""),
			Host:                 getEnv("RABBITMQ_HOST", "localhost"),
			Port:                 getEnvInt("RABBITMQ_PORT", 5672),
			Username:             getEnv("RABBITMQ_USERNAME", "guest"),
			Password:             getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:                getEnv("RABBITMQ_VHOST", "/"),
			Heartbeat:            getEnvDuration("RABBITMQ_HEARTBEAT", 10*time.Second),
			MaxReconnectAttempts: getEnvInt("RABBITMQ_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:       getEnvDuration("RABBITMQ_RECONNECT_DELAY", 2*time.Second),
		},

		Topology: TopologyConfig{
			AppName: getEnv("FUND_MANAGER_APP_NAME", "ubs"),
		},

		Worker: WorkerConfig{
			PoolSize:       getEnvInt("WORKER_POOL_SIZE", 1),
			QueueSize:      getEnvInt("WORKER_QUEUE_SIZE", 1),
			ProcessTimeout: getEnvDuration("WORKER_PROCESS_TIMEOUT", 30*time.Second),
		},

		Scheduler: SchedulerConfig{
			Enabled:            getEnvBool("SCHEDULER_ENABLED", true),
			QueueProbeInterval: getEnv("SCHEDULER_QUEUE_PROBE_INTERVAL", "@every 30s"),
			TimeZone:           getEnv("SCHEDULER_TIMEZONE", "UTC"),
		},

		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnv("METRICS_NAMESPACE", "fundmanager"),
			Path:      getEnv("METRICS_PATH", "/metrics"),
		},

		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			Filename:   getEnv("LOG_FILENAME", ""),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
	}

	return config
}

// AMQPURL returns RABBITMQ_URL when set, otherwise builds one from the parts
func (c RabbitMQConfig) AMQPURL() string {
	if c.URL != "" {
		return c.URL
	}

	vhost := strings.TrimPrefix(c.VHost, "/")
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + vhost,
	}
	return u.String()
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URI == "" {
		return fmt.Errorf("database URI is required")
	}

	if c.RabbitMQ.URL == "" && c.RabbitMQ.Host == "" {
		return fmt.Errorf("RabbitMQ URL or host is required")
	}

	if c.Topology.AppName == "" {
		return fmt.Errorf("topology app name is required")
	}

	if c.Worker.PoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive, got %d", c.Worker.PoolSize)
	}

	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker queue size must not be negative, got %d", c.Worker.QueueSize)
	}

	if c.RabbitMQ.Username == "guest" && c.Server.Environment == "production" {
		logrus.Warn("Using default RabbitMQ credentials, this is not recommended for production")
	}

	return nil
}
