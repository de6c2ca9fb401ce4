package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ICEServer STUN/TURN 서버 설정
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	// Server
	ListenAddr string
	Env        string
	LogLevel   string

	// Identity
	UserID string

	// Store
	StoreBackend string
	RedisURL     string
	StorePrefix  string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// Matchmaking
	MaxInterests      int
	MatchTimeout      time.Duration
	MaxMatchAttempts  int
	CandidateLimit    int
	ClaimCleanupDelay time.Duration
	SkipCooldown      time.Duration

	// Peer session
	ConnectionTimeout time.Duration
	ReconnectDelay    time.Duration
	MaxMatchRetries   int
	MediaAttempts     int
	StatsInterval     time.Duration
	BatchDeleteSize   int
	ICEServers        []ICEServer

	// Chat
	MaxMessageLength int
	ChatRateLimit    int
	ChatRateWindow   time.Duration

	// Presence
	PresenceInterval time.Duration
	StaleEntryAge    time.Duration
}

// DefaultICEServers 기본 STUN/TURN 목록
func DefaultICEServers() []ICEServer {
	return []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{URLs: []string{"stun:stun2.l.google.com:19302"}},
		{URLs: []string{"stun:global.stun.twilio.com:3478"}},
		{URLs: []string{"turn:openrelay.metered.ca:80"}, Username: "openrelayproject", Credential: "openrelayproject"},
		{URLs: []string{"turn:openrelay.metered.ca:443"}, Username: "openrelayproject", Credential: "openrelayproject"},
		{URLs: []string{"turn:openrelay.metered.ca:443?transport=tcp"}, Username: "openrelayproject", Credential: "openrelayproject"},
	}
}

// Default 기본값으로 채운 설정
func Default() *Config {
	return &Config{
		ListenAddr:        "127.0.0.1:7420",
		Env:               "development",
		LogLevel:          "info",
		UserID:            uuid.New().String(),
		StoreBackend:      "redis",
		RedisURL:          "redis://localhost:6379",
		StorePrefix:       "hostelhub:",
		JWTSecret:         uuid.New().String(),
		JWTExpiration:     24 * time.Hour,
		MaxInterests:      5,
		MatchTimeout:      60 * time.Second,
		MaxMatchAttempts:  30,
		CandidateLimit:    10,
		ClaimCleanupDelay: 2 * time.Second,
		SkipCooldown:      2 * time.Second,
		ConnectionTimeout: 15 * time.Second,
		ReconnectDelay:    2 * time.Second,
		MaxMatchRetries:   3,
		MediaAttempts:     3,
		StatsInterval:     5 * time.Second,
		BatchDeleteSize:   500,
		ICEServers:        DefaultICEServers(),
		MaxMessageLength:  500,
		ChatRateLimit:     20,
		ChatRateWindow:    10 * time.Second,
		PresenceInterval:  30 * time.Second,
		StaleEntryAge:     2 * time.Minute,
	}
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	d := Default()
	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", d.ListenAddr),
		Env:               getEnv("ENV", d.Env),
		LogLevel:          getEnv("LOG_LEVEL", d.LogLevel),
		UserID:            getEnv("USER_ID", d.UserID),
		StoreBackend:      getEnv("STORE_BACKEND", d.StoreBackend),
		RedisURL:          getEnv("REDIS_URL", d.RedisURL),
		StorePrefix:       getEnv("STORE_PREFIX", d.StorePrefix),
		JWTSecret:         getEnv("JWT_SECRET", d.JWTSecret),
		JWTExpiration:     parseDuration(getEnv("JWT_EXPIRATION", ""), d.JWTExpiration),
		MaxInterests:      parseInt(getEnv("MAX_INTERESTS", ""), d.MaxInterests),
		MatchTimeout:      parseDuration(getEnv("MATCH_TIMEOUT", ""), d.MatchTimeout),
		MaxMatchAttempts:  parseInt(getEnv("MAX_MATCH_ATTEMPTS", ""), d.MaxMatchAttempts),
		CandidateLimit:    parseInt(getEnv("MATCH_CANDIDATE_LIMIT", ""), d.CandidateLimit),
		ClaimCleanupDelay: parseDuration(getEnv("CLAIM_CLEANUP_DELAY", ""), d.ClaimCleanupDelay),
		SkipCooldown:      parseDuration(getEnv("SKIP_COOLDOWN", ""), d.SkipCooldown),
		ConnectionTimeout: parseDuration(getEnv("CONNECTION_TIMEOUT", ""), d.ConnectionTimeout),
		ReconnectDelay:    parseDuration(getEnv("RECONNECT_DELAY", ""), d.ReconnectDelay),
		MaxMatchRetries:   parseInt(getEnv("MAX_MATCH_RETRIES", ""), d.MaxMatchRetries),
		MediaAttempts:     parseInt(getEnv("MEDIA_ATTEMPTS", ""), d.MediaAttempts),
		StatsInterval:     parseDuration(getEnv("STATS_INTERVAL", ""), d.StatsInterval),
		BatchDeleteSize:   parseInt(getEnv("BATCH_DELETE_SIZE", ""), d.BatchDeleteSize),
		ICEServers:        parseICEServers(getEnv("ICE_SERVERS", ""), d.ICEServers),
		MaxMessageLength:  parseInt(getEnv("MAX_MESSAGE_LENGTH", ""), d.MaxMessageLength),
		ChatRateLimit:     parseInt(getEnv("CHAT_RATE_LIMIT", ""), d.ChatRateLimit),
		ChatRateWindow:    parseDuration(getEnv("CHAT_RATE_WINDOW", ""), d.ChatRateWindow),
		PresenceInterval:  parseDuration(getEnv("PRESENCE_INTERVAL", ""), d.PresenceInterval),
		StaleEntryAge:     parseDuration(getEnv("STALE_ENTRY_AGE", ""), d.StaleEntryAge),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig YAML 설정 파일 구조
type fileConfig struct {
	ListenAddr   string `yaml:"listenAddr"`
	Env          string `yaml:"env"`
	LogLevel     string `yaml:"logLevel"`
	UserID       string `yaml:"userId"`
	StoreBackend string `yaml:"storeBackend"`
	RedisURL     string `yaml:"redisUrl"`
	StorePrefix  string `yaml:"storePrefix"`

	Matchmaking struct {
		MaxInterests      int    `yaml:"maxInterests"`
		MatchTimeout      string `yaml:"matchTimeout"`
		MaxAttempts       int    `yaml:"maxAttempts"`
		CandidateLimit    int    `yaml:"candidateLimit"`
		ClaimCleanupDelay string `yaml:"claimCleanupDelay"`
		SkipCooldown      string `yaml:"skipCooldown"`
	} `yaml:"matchmaking"`

	Session struct {
		ConnectionTimeout string `yaml:"connectionTimeout"`
		ReconnectDelay    string `yaml:"reconnectDelay"`
		MaxRetries        int    `yaml:"maxRetries"`
		MediaAttempts     int    `yaml:"mediaAttempts"`
		StatsInterval     string `yaml:"statsInterval"`
		BatchDeleteSize   int    `yaml:"batchDeleteSize"`
	} `yaml:"session"`

	Chat struct {
		MaxMessageLength int    `yaml:"maxMessageLength"`
		RateLimit        int    `yaml:"rateLimit"`
		RateWindow       string `yaml:"rateWindow"`
	} `yaml:"chat"`

	Presence struct {
		Interval      string `yaml:"interval"`
		StaleEntryAge string `yaml:"staleEntryAge"`
	} `yaml:"presence"`

	ICEServers []ICEServer `yaml:"iceServers"`
}

// LoadFile YAML 파일 값으로 덮어쓰기 (비어 있는 값은 유지)
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.Env, f.Env)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.UserID, f.UserID)
	setString(&c.StoreBackend, f.StoreBackend)
	setString(&c.RedisURL, f.RedisURL)
	setString(&c.StorePrefix, f.StorePrefix)

	setInt(&c.MaxInterests, f.Matchmaking.MaxInterests)
	c.MatchTimeout = parseDuration(f.Matchmaking.MatchTimeout, c.MatchTimeout)
	setInt(&c.MaxMatchAttempts, f.Matchmaking.MaxAttempts)
	setInt(&c.CandidateLimit, f.Matchmaking.CandidateLimit)
	c.ClaimCleanupDelay = parseDuration(f.Matchmaking.ClaimCleanupDelay, c.ClaimCleanupDelay)
	c.SkipCooldown = parseDuration(f.Matchmaking.SkipCooldown, c.SkipCooldown)

	c.ConnectionTimeout = parseDuration(f.Session.ConnectionTimeout, c.ConnectionTimeout)
	c.ReconnectDelay = parseDuration(f.Session.ReconnectDelay, c.ReconnectDelay)
	setInt(&c.MaxMatchRetries, f.Session.MaxRetries)
	setInt(&c.MediaAttempts, f.Session.MediaAttempts)
	c.StatsInterval = parseDuration(f.Session.StatsInterval, c.StatsInterval)
	setInt(&c.BatchDeleteSize, f.Session.BatchDeleteSize)

	setInt(&c.MaxMessageLength, f.Chat.MaxMessageLength)
	setInt(&c.ChatRateLimit, f.Chat.RateLimit)
	c.ChatRateWindow = parseDuration(f.Chat.RateWindow, c.ChatRateWindow)

	c.PresenceInterval = parseDuration(f.Presence.Interval, c.PresenceInterval)
	c.StaleEntryAge = parseDuration(f.Presence.StaleEntryAge, c.StaleEntryAge)

	if len(f.ICEServers) > 0 {
		c.ICEServers = f.ICEServers
	}
	return nil
}

// Validate 설정 값 검증
func (c *Config) Validate() error {
	var errs []error
	if c.UserID == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	if c.StoreBackend != "redis" && c.StoreBackend != "memory" {
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.MaxInterests <= 0 {
		errs = append(errs, errors.New("max interests must be positive"))
	}
	if c.MaxMatchAttempts <= 0 || c.CandidateLimit <= 0 {
		errs = append(errs, errors.New("match attempts and candidate limit must be positive"))
	}
	if c.MatchTimeout <= 0 || c.ConnectionTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.MaxMessageLength <= 0 || c.BatchDeleteSize <= 0 {
		errs = append(errs, errors.New("message length and batch size must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// parseICEServers 쉼표로 구분된 URL 목록
func parseICEServers(s string, fallback []ICEServer) []ICEServer {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	var servers []ICEServer
	for _, url := range strings.Split(s, ",") {
		if url = strings.TrimSpace(url); url != "" {
			servers = append(servers, ICEServer{URLs: []string{url}})
		}
	}
	return servers
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
