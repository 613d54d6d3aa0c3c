package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr     string `yaml:"addr"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`

	CollectInterval   time.Duration `yaml:"collect_interval"`
	CollectMaxNodes   int           `yaml:"collect_max_nodes"`
	Workers           int           `yaml:"workers"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	NodePassword      string        `yaml:"node_password"`
	SlowLogMaxCount   int64         `yaml:"slow_log_max_count"`
	SlowLogFetchCount int64         `yaml:"slow_log_fetch_count"`

	TelemetryTag   string   `yaml:"telemetry_tag"`
	TelemetryKeys  []string `yaml:"telemetry_keys"`
	PushgatewayURL string   `yaml:"pushgateway_url"`

	MailHost     string `yaml:"mail_host"`
	MailPort     int    `yaml:"mail_port"`
	MailUser     string `yaml:"mail_user"`
	MailPassword string `yaml:"mail_password"`
	MailFrom     string `yaml:"mail_from"`

	NotifyTimeout time.Duration `yaml:"notify_timeout"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	NoticeEventRetentionDays int `yaml:"notice_event_retention_days"`
}

func Default() Config {
	return Config{
		Addr:              ":8080",
		DBPath:            "./data/relumon.db",
		LogLevel:          "info",
		RedisAddr:         "127.0.0.1:6379",
		KeyPrefix:         "relumon",
		CollectInterval:   time.Minute,
		CollectMaxNodes:   100,
		Workers:           4,
		FetchTimeout:      5 * time.Second,
		SlowLogMaxCount:   1000,
		SlowLogFetchCount: 128,
		TelemetryTag:      "relumon",
		TelemetryKeys: []string{
			"used_memory", "used_memory_rss", "connected_clients", "instantaneous_ops_per_sec",
			"total_commands_processed", "keyspace_hits", "keyspace_misses", "evicted_keys",
		},
		MailPort:                 25,
		NotifyTimeout:            30 * time.Second,
		NoticeEventRetentionDays: 14,
	}
}

// Load reads defaults, then the YAML file named by RELUMON_CONFIG, then
// environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("RELUMON_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("RELUMON_ADDR", cfg.Addr)
	cfg.DBPath = getenv("RELUMON_DB_PATH", cfg.DBPath)
	cfg.LogLevel = getenv("RELUMON_LOG_LEVEL", cfg.LogLevel)
	cfg.RedisAddr = getenv("RELUMON_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenv("RELUMON_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getenvInt("RELUMON_REDIS_DB", cfg.RedisDB)
	cfg.KeyPrefix = getenv("RELUMON_KEY_PREFIX", cfg.KeyPrefix)
	cfg.CollectInterval = getenvDuration("RELUMON_COLLECT_INTERVAL", cfg.CollectInterval)
	cfg.CollectMaxNodes = getenvInt("RELUMON_COLLECT_MAX_NODES", cfg.CollectMaxNodes)
	cfg.Workers = getenvInt("RELUMON_WORKERS", cfg.Workers)
	cfg.FetchTimeout = getenvDuration("RELUMON_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.NodePassword = getenv("RELUMON_NODE_PASSWORD", cfg.NodePassword)
	cfg.SlowLogMaxCount = int64(getenvInt("RELUMON_SLOWLOG_MAX_COUNT", int(cfg.SlowLogMaxCount)))
	cfg.SlowLogFetchCount = int64(getenvInt("RELUMON_SLOWLOG_FETCH_COUNT", int(cfg.SlowLogFetchCount)))
	cfg.TelemetryTag = getenv("RELUMON_TELEMETRY_TAG", cfg.TelemetryTag)
	cfg.TelemetryKeys = getenvList("RELUMON_TELEMETRY_KEYS", cfg.TelemetryKeys)
	cfg.PushgatewayURL = getenv("RELUMON_PUSHGATEWAY_URL", cfg.PushgatewayURL)
	cfg.MailHost = getenv("RELUMON_MAIL_HOST", cfg.MailHost)
	cfg.MailPort = getenvInt("RELUMON_MAIL_PORT", cfg.MailPort)
	cfg.MailUser = getenv("RELUMON_MAIL_USER", cfg.MailUser)
	cfg.MailPassword = getenv("RELUMON_MAIL_PASSWORD", cfg.MailPassword)
	cfg.MailFrom = getenv("RELUMON_MAIL_FROM", cfg.MailFrom)
	cfg.NotifyTimeout = getenvDuration("RELUMON_NOTIFY_TIMEOUT", cfg.NotifyTimeout)
	cfg.TelegramBotToken = getenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.TelegramChatID = getenv("TELEGRAM_CHAT_ID", cfg.TelegramChatID)
	cfg.NoticeEventRetentionDays = getenvInt("RELUMON_NOTICE_EVENT_RETENTION_DAYS", cfg.NoticeEventRetentionDays)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func getenvList(k string, d []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
