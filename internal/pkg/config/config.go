package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Backend Backend `koanf:"backend"`
	Channel Channel `koanf:"channel"`
	Poll    Poll    `koanf:"poll"`
	Session Session `koanf:"session"`
	Server  Server  `koanf:"server"`
	Storage Storage `koanf:"storage"`
}

// Backend locates the remote automation backend.
type Backend struct {
	BaseURL string `koanf:"base_url"` // e.g. http://localhost:8000
	WSURL   string `koanf:"ws_url"`   // derived from BaseURL when empty
	APIKey  string `koanf:"api_key"`
}

// Channel tunes the live intervention channel. The numeric values are
// defaults, not contractual.
type Channel struct {
	Path              string        `koanf:"path"`
	AutoReconnect     bool          `koanf:"auto_reconnect"`
	ReconnectInterval time.Duration `koanf:"reconnect_interval"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// Poll tunes the fallback poller.
type Poll struct {
	InterventionInterval time.Duration `koanf:"intervention_interval"`
	SessionInterval      time.Duration `koanf:"session_interval"`
}

// Session tunes session-scoped behavior.
type Session struct {
	ChannelPath    string        `koanf:"channel_path"` // per-session ws path prefix
	MaxRetries     int           `koanf:"max_retries"`
	RetryDelay     time.Duration `koanf:"retry_delay"` // grows linearly per attempt
	ReconcileDelay time.Duration `koanf:"reconcile_delay"`
	DetailCache    int           `koanf:"detail_cache"` // LRU entries
}

// Server configures the local view/command HTTP server.
type Server struct {
	Port int `koanf:"port"`
}

// Storage configures the local snapshot cache.
type Storage struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml when present and overlays SYNC_-prefixed
// environment variables, then applies defaults for absent keys.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("SYNC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SYNC_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Backend.APIKey = substituteEnvVars(cfg.Backend.APIKey)

	if cfg.Backend.WSURL == "" {
		cfg.Backend.WSURL = deriveWSURL(cfg.Backend.BaseURL)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"backend.base_url":           "http://localhost:8000",
		"channel.path":               "/api/applications/v2/ws/interventions",
		"channel.auto_reconnect":     true,
		"channel.reconnect_interval": "5s",
		"channel.heartbeat_interval": "30s",
		"poll.intervention_interval": "10s",
		"poll.session_interval":      "30s",
		"session.channel_path":       "/api/applications/v2/ws",
		"session.max_retries":        3,
		"session.retry_delay":        "2s",
		"session.reconcile_delay":    "2s",
		"session.detail_cache":       64,
		"server.port":                8090,
		"storage.type":               "sqlite",
		"storage.sqlite.path":        "./data/syncbridge.db",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// deriveWSURL swaps the http scheme for ws on the backend base URL.
func deriveWSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
