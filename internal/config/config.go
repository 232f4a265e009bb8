package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type JoinRate struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type TURN struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Client holds the participant CLI settings.
type Client struct {
	ServerURL  string   `mapstructure:"server_url"`
	Name       string   `mapstructure:"name"`
	ICEServers []string `mapstructure:"ice_servers"`
	TURN       TURN     `mapstructure:"turn"`
	LogLevel   string   `mapstructure:"log_level"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Secret       string        `mapstructure:"secret"`
	Backpressure string        `mapstructure:"backpressure"`
	JoinRate     JoinRate      `mapstructure:"join_rate"`
	LogLevel     string        `mapstructure:"log_level"`
	Client       Client        `mapstructure:"client"`
}

// New returns a viper instance with every default and the MESH_ env
// overrides in place. The config file is not read yet.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "mesh-dev-secret")
	v.SetDefault("backpressure", "drop")
	v.SetDefault("join_rate.limit", 5)
	v.SetDefault("join_rate.interval", "10s")
	v.SetDefault("log_level", "info")

	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.name", "")
	v.SetDefault("client.ice_servers", []string{})
	v.SetDefault("client.turn.url", "")
	v.SetDefault("client.turn.username", "")
	v.SetDefault("client.turn.password", "")
	v.SetDefault("client.log_level", "warn")
	return v
}

// FileName is the config file picked by CONFIG_ENV (dev when unset).
func FileName() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

// ReadFile loads fileName into v and reports whether it was found. A missing
// file leaves the defaults.
func ReadFile(v *viper.Viper, fileName string) bool {
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return false
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	return true
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("send_buffer must be positive, got %d", cfg.SendBuffer)
	}
	if cfg.PongWait > 0 && cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("ping_period %s must be shorter than pong_wait %s", cfg.PingPeriod, cfg.PongWait)
	}
	return &cfg, nil
}

// Load reads the server config for the current CONFIG_ENV. The returned
// viper is non-nil only when a config file was found and can be watched.
func Load() (*Config, *viper.Viper, error) {
	v := New()
	found := ReadFile(v, FileName())
	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		v = nil
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return cfg, v, nil
}

// ParseLevel maps a log_level value to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Watch applies log_level edits of the config file while the server runs.
// It returns once done is closed.
func Watch(v *viper.Viper, done <-chan struct{}) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		lvl := ParseLevel(v.GetString("log_level"))
		zerolog.SetGlobalLevel(lvl)
		log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", lvl.String()).Msg("config reloaded")
	})
	v.WatchConfig()
	<-done
}
