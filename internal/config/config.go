// Package config provides Viper-based configuration loading for the world server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig identifies this world server process.
type ServerConfig struct {
	// ChannelID is the channel number reported to peers and clients.
	ChannelID int `mapstructure:"channel_id"`
	// WorldName is the display name of the world this channel belongs to.
	WorldName string `mapstructure:"world_name"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// TelnetConfig holds the line-oriented TCP acceptor settings.
type TelnetConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxConnections caps open connections; 0 means no cap.
	MaxConnections int `mapstructure:"max_connections"`
	// MaxPerAddress caps open connections from one client IP; 0 means no cap.
	MaxPerAddress int `mapstructure:"max_per_address"`
}

// Addr returns the "host:port" listen address.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// WebSocketConfig holds the optional WebSocket acceptor settings.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// Path is the HTTP path upgraded to a WebSocket.
	Path string `mapstructure:"path"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// WorldConfig holds the tunables of the shared world.
type WorldConfig struct {
	// GroupCapacity is the maximum number of characters in one group.
	GroupCapacity int `mapstructure:"group_capacity"`
	// FriendCapacity is the maximum number of friends per character.
	FriendCapacity int `mapstructure:"friend_capacity"`
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	// IdleTimeout disconnects sessions that send nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// WatchdogInterval is how often idle sessions are swept.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	// GateWaitTimeout bounds how long a handler waits on the refresh gate.
	GateWaitTimeout time.Duration `mapstructure:"gate_wait_timeout"`
	// HeroReputation is the reputation required to use hero chat.
	HeroReputation int64 `mapstructure:"hero_reputation"`
	// StartMap is the map a character enters on game_start.
	StartMap string `mapstructure:"start_map"`
	// ChatRate is the sustained chat lines per second allowed per session.
	ChatRate float64 `mapstructure:"chat_rate"`
	// ChatBurst is the chat burst allowance per session.
	ChatBurst int `mapstructure:"chat_burst"`
	// BazaarRefresh is the interval between bazaar listing rebuilds.
	BazaarRefresh time.Duration `mapstructure:"bazaar_refresh"`
	// BazaarPageSize is the number of listings per c_blist page.
	BazaarPageSize int `mapstructure:"bazaar_page_size"`
}

// ContentConfig locates the static content files.
type ContentConfig struct {
	MapsFile               string `mapstructure:"maps_file"`
	MessagesFile           string `mapstructure:"messages_file"`
	ScriptDir              string `mapstructure:"script_dir"`
	ScriptInstructionLimit int    `mapstructure:"script_instruction_limit"`
}

// RelayConfig holds the cross-channel gRPC relay settings.
type RelayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// Peers are the "host:port" relay addresses of the other channels.
	Peers   []string      `mapstructure:"peers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Addr returns the "host:port" relay listen address.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telnet    TelnetConfig    `mapstructure:"telnet"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	World     WorldConfig     `mapstructure:"world"`
	Content   ContentConfig   `mapstructure:"content"`
	Relay     RelayConfig     `mapstructure:"relay"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		func() error { return validateServer(c.Server) },
		func() error { return validateDatabase(c.Database) },
		func() error { return validateTelnet(c.Telnet) },
		func() error { return validateWebSocket(c.WebSocket) },
		func() error { return validateLogging(c.Logging) },
		func() error { return validateWorld(c.World) },
		func() error { return validateContent(c.Content) },
		func() error { return validateRelay(c.Relay) },
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.ChannelID < 1 {
		errs = append(errs, fmt.Sprintf("server.channel_id must be >= 1, got %d", s.ChannelID))
	}
	if s.WorldName == "" {
		errs = append(errs, "server.world_name must not be empty")
	}
	return joined(errs)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joined(errs)
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	if t.Port < 1 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("telnet.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if t.MaxConnections < 0 || t.MaxPerAddress < 0 {
		errs = append(errs, "telnet.max_connections and telnet.max_per_address must not be negative")
	}
	return joined(errs)
}

func validateWebSocket(w WebSocketConfig) error {
	if !w.Enabled {
		return nil
	}
	var errs []string
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with /, got %q", w.Path))
	}
	return joined(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateWorld(w WorldConfig) error {
	var errs []string
	if w.GroupCapacity < 2 {
		errs = append(errs, fmt.Sprintf("world.group_capacity must be >= 2, got %d", w.GroupCapacity))
	}
	if w.FriendCapacity < 1 {
		errs = append(errs, fmt.Sprintf("world.friend_capacity must be >= 1, got %d", w.FriendCapacity))
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("world.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if w.IdleTimeout <= 0 {
		errs = append(errs, "world.idle_timeout must be positive")
	}
	if w.WatchdogInterval <= 0 {
		errs = append(errs, "world.watchdog_interval must be positive")
	}
	if w.GateWaitTimeout <= 0 {
		errs = append(errs, "world.gate_wait_timeout must be positive")
	}
	if w.StartMap == "" {
		errs = append(errs, "world.start_map must not be empty")
	}
	if w.ChatRate <= 0 {
		errs = append(errs, "world.chat_rate must be positive")
	}
	if w.ChatBurst < 1 {
		errs = append(errs, fmt.Sprintf("world.chat_burst must be >= 1, got %d", w.ChatBurst))
	}
	if w.BazaarRefresh <= 0 {
		errs = append(errs, "world.bazaar_refresh must be positive")
	}
	if w.BazaarPageSize < 1 {
		errs = append(errs, fmt.Sprintf("world.bazaar_page_size must be >= 1, got %d", w.BazaarPageSize))
	}
	return joined(errs)
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.MapsFile == "" {
		errs = append(errs, "content.maps_file must not be empty")
	}
	if c.MessagesFile == "" {
		errs = append(errs, "content.messages_file must not be empty")
	}
	if c.ScriptInstructionLimit < 0 {
		errs = append(errs, "content.script_instruction_limit must not be negative")
	}
	return joined(errs)
}

func validateRelay(r RelayConfig) error {
	if !r.Enabled {
		return nil
	}
	var errs []string
	if r.Host == "" {
		errs = append(errs, "relay.host must not be empty")
	}
	if r.Port < 1 || r.Port > 65535 {
		errs = append(errs, fmt.Sprintf("relay.port must be 1-65535, got %d", r.Port))
	}
	if r.Timeout <= 0 {
		errs = append(errs, "relay.timeout must be positive")
	}
	for _, p := range r.Peers {
		if !strings.Contains(p, ":") {
			errs = append(errs, fmt.Sprintf("relay.peers entry %q must be host:port", p))
		}
	}
	return joined(errs)
}

func joined(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func read(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("NOSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return v, nil
}

// Load reads the YAML file at path, applies NOSGATE_* environment overrides
// and validates the result.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v, err := read(path)
	if err != nil {
		return Config{}, err
	}
	return LoadFromViper(v)
}

// LoadDatabase reads only the database section of the file at path. The
// other sections are neither required nor validated.
func LoadDatabase(path string) (DatabaseConfig, error) {
	v, err := read(path)
	if err != nil {
		return DatabaseConfig{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.channel_id", 1)
	v.SetDefault("server.world_name", "nosgate")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "nosgate")
	v.SetDefault("database.password", "nosgate")
	v.SetDefault("database.name", "nosgate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4000)
	v.SetDefault("telnet.read_timeout", "5m")
	v.SetDefault("telnet.write_timeout", "30s")
	v.SetDefault("telnet.max_connections", 1000)
	v.SetDefault("telnet.max_per_address", 8)

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 4080)
	v.SetDefault("websocket.path", "/ws")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("world.group_capacity", 3)
	v.SetDefault("world.friend_capacity", 80)
	v.SetDefault("world.send_buffer", 256)
	v.SetDefault("world.idle_timeout", "2m")
	v.SetDefault("world.watchdog_interval", "15s")
	v.SetDefault("world.gate_wait_timeout", "5s")
	v.SetDefault("world.hero_reputation", 5000000)
	v.SetDefault("world.start_map", "1")
	v.SetDefault("world.chat_rate", 2.0)
	v.SetDefault("world.chat_burst", 5)
	v.SetDefault("world.bazaar_refresh", "5m")
	v.SetDefault("world.bazaar_page_size", 50)

	v.SetDefault("content.maps_file", "content/maps.yaml")
	v.SetDefault("content.messages_file", "content/messages/en.yaml")
	v.SetDefault("content.script_dir", "content/scripts")
	v.SetDefault("content.script_instruction_limit", 100000)

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.host", "127.0.0.1")
	v.SetDefault("relay.port", 50061)
	v.SetDefault("relay.timeout", "2s")
}
