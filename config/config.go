package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Inbox     InboxConfig     `yaml:"inbox"`
	ReturnBox ReturnBoxConfig `yaml:"returnbox"`
	Log       LogConfig       `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"RETURNBOX_STORAGE_DRIVER"` // "file" | "postgres"
	Dir    string `yaml:"dir" env:"RETURNBOX_STORAGE_DIR"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"RETURNBOX_DB_HOST"`
	Port     int    `yaml:"port" env:"RETURNBOX_DB_PORT"`
	Username string `yaml:"username" env:"RETURNBOX_DB_USER"`
	Password string `yaml:"password" env:"RETURNBOX_DB_PASSWORD"`
	DBName   string `yaml:"name" env:"RETURNBOX_DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"RETURNBOX_DB_SSLMODE"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

// Пустой host означает доставку алертов в лог.
type KafkaConfig struct {
	Host            string `yaml:"host" env:"RETURNBOX_KAFKA_HOST"`
	Port            int    `yaml:"port" env:"RETURNBOX_KAFKA_PORT"`
	AlertsTopicName string `yaml:"alerts_topic_name" env:"RETURNBOX_KAFKA_ALERTS_TOPIC"`
	ConsumerGroup   string `yaml:"consumer_group" env:"RETURNBOX_KAFKA_CONSUMER_GROUP"`
}

func (k KafkaConfig) Brokers() []string {
	if k.Host == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

// Empty host: in-memory cache, seen-set kept by the storage driver, no rate limit.
type RedisConfig struct {
	Host       string `yaml:"host" env:"RETURNBOX_REDIS_HOST"`
	Port       int    `yaml:"port" env:"RETURNBOX_REDIS_PORT"`
	SeenSetKey string `yaml:"seen_set_key" env:"RETURNBOX_REDIS_SEEN_KEY"`
	UseForSeen bool   `yaml:"use_for_seen" env:"RETURNBOX_REDIS_USE_FOR_SEEN"`
}

func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type TrackingConfig struct {
	Mode               string `yaml:"mode" env:"RETURNBOX_TRACKING_MODE"` // "http" | "fake"
	BaseURL            string `yaml:"base_url" env:"RETURNBOX_TRACKING_BASE_URL"`
	APIKey             string `yaml:"api_key" env:"RETURNBOX_TRACKING_API_KEY"`
	AuthScheme         string `yaml:"auth_scheme" env:"RETURNBOX_TRACKING_AUTH_SCHEME"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds" env:"RETURNBOX_TRACKING_CACHE_TTL_SECONDS"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" env:"RETURNBOX_TRACKING_TIMEOUT_SECONDS"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" env:"RETURNBOX_TRACKING_RATE_LIMIT_PER_MINUTE"`
	StaleAfterMinutes  int    `yaml:"stale_after_minutes" env:"RETURNBOX_TRACKING_STALE_AFTER_MINUTES"`
	Concurrency        int    `yaml:"concurrency" env:"RETURNBOX_TRACKING_CONCURRENCY"`
}

type InboxConfig struct {
	ClientID         string   `yaml:"client_id" env:"RETURNBOX_INBOX_CLIENT_ID"`
	RedirectURI      string   `yaml:"redirect_uri" env:"RETURNBOX_INBOX_REDIRECT_URI"`
	AuthURL          string   `yaml:"auth_url" env:"RETURNBOX_INBOX_AUTH_URL"`
	TokenURL         string   `yaml:"token_url" env:"RETURNBOX_INBOX_TOKEN_URL"`
	APIBaseURL       string   `yaml:"api_base_url" env:"RETURNBOX_INBOX_API_BASE_URL"`
	Scopes           []string `yaml:"scopes" env:"RETURNBOX_INBOX_SCOPES" env-separator:","`
	Query            string   `yaml:"query" env:"RETURNBOX_INBOX_QUERY"`
	MaxPages         int      `yaml:"max_pages" env:"RETURNBOX_INBOX_MAX_PAGES"`
	FetchConcurrency int      `yaml:"fetch_concurrency" env:"RETURNBOX_INBOX_FETCH_CONCURRENCY"`
	TimeoutSeconds   int      `yaml:"timeout_seconds" env:"RETURNBOX_INBOX_TIMEOUT_SECONDS"`
	KeyringService   string   `yaml:"keyring_service" env:"RETURNBOX_KEYRING_SERVICE"`
}

type ReturnBoxConfig struct {
	JobID               string `yaml:"job_id" env:"RETURNBOX_JOB_ID"`
	HTTPAddr            string `yaml:"http_addr" env:"RETURNBOX_HTTP_ADDR"`
	SwaggerPath         string `yaml:"swagger_path" env:"swaggerPath"`
	GrantWindowSeconds  int    `yaml:"grant_window_seconds" env:"RETURNBOX_GRANT_WINDOW_SECONDS"`
	SafetyMarginSeconds int    `yaml:"safety_margin_seconds" env:"RETURNBOX_SAFETY_MARGIN_SECONDS"`
	HorizonHours        int    `yaml:"horizon_hours" env:"RETURNBOX_HORIZON_HOURS"`

	// Next grant request. If not set: interval 15..20 minutes, backoff 5/15/30/60 minutes.
	IntervalMinSeconds int `yaml:"interval_min_seconds" env:"RETURNBOX_INTERVAL_MIN_SECONDS"`
	IntervalMaxSeconds int `yaml:"interval_max_seconds" env:"RETURNBOX_INTERVAL_MAX_SECONDS"`
	Backoff1Seconds    int `yaml:"backoff_1_seconds"`
	Backoff2Seconds    int `yaml:"backoff_2_seconds"`
	Backoff3Seconds    int `yaml:"backoff_3_seconds"`
	Backoff4Seconds    int `yaml:"backoff_4_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"RETURNBOX_LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"RETURNBOX_LOG_FORMAT"` // text | json
}

// LoadConfig reads the YAML file and then applies RETURNBOX_* environment overrides.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := cleanenv.UpdateEnv(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}
