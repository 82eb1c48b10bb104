// Package config provides Viper-based configuration loading for the bridge.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// WorldConfig holds the world session connection settings.
type WorldConfig struct {
	// GatewayURL is the websocket endpoint of the world-protocol gateway.
	GatewayURL string `mapstructure:"gateway_url"`
	// Host is the world server host the gateway connects to.
	Host string `mapstructure:"host"`
	// Port is the world server port.
	Port int `mapstructure:"port"`
	// Username is the identity the avatar logs in as.
	Username string `mapstructure:"username"`
	// Version is the protocol version, or "auto" to negotiate.
	Version string `mapstructure:"version"`
	// Auth is the authentication mode: "microsoft" or "offline".
	Auth string `mapstructure:"auth"`
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the "host:port" world server address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WorldConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// AutoVersion reports whether the protocol version should be negotiated.
func (w WorldConfig) AutoVersion() bool {
	return w.Version == "" || strings.EqualFold(w.Version, "auto")
}

// ChannelsConfig names the three chat channels the bridge uses.
type ChannelsConfig struct {
	// Relay is the channel mirrored to and from world chat.
	Relay string `mapstructure:"relay"`
	// Alerts receives presence enter/leave notifications.
	Alerts string `mapstructure:"alerts"`
	// Commands is the only channel operator commands are accepted from.
	Commands string `mapstructure:"commands"`
}

// ChatConfig holds chat platform settings.
type ChatConfig struct {
	Token         string         `mapstructure:"token"`
	CommandPrefix string         `mapstructure:"command_prefix"`
	Channels      ChannelsConfig `mapstructure:"channels"`
}

// RadarConfig holds presence radar settings.
type RadarConfig struct {
	// Radius is the enter/leave threshold in world units.
	Radius float64 `mapstructure:"radius"`
}

// Point is a world coordinate in configuration.
type Point struct {
	X float64 `mapstructure:"x"`
	Y float64 `mapstructure:"y"`
	Z float64 `mapstructure:"z"`
}

// FlightConfig holds motion controller settings.
type FlightConfig struct {
	// Duration is the default flight duration for both homing and flyto.
	Duration time.Duration `mapstructure:"duration"`
	// Steps is the number of interpolation intervals per flight.
	Steps int `mapstructure:"steps"`
	// Home is the target of the flight started on every spawn.
	Home Point `mapstructure:"home"`
}

// SupervisorConfig holds connection supervisor delays.
type SupervisorConfig struct {
	// RetryDelay is the fixed delay before reconnecting or re-logging in.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// RespawnDelay is the wait between a death and the respawn request.
	RespawnDelay time.Duration `mapstructure:"respawn_delay"`
	// SettleDelay is the wait after a respawn before leaving AwaitingRespawn.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// HealthConfig holds gRPC health server settings.
type HealthConfig struct {
	Host string `mapstructure:"host"`
	// Port is the TCP port for the health server; 0 disables it.
	Port int `mapstructure:"port"`
}

// Enabled reports whether the health server should be started.
func (h HealthConfig) Enabled() bool {
	return h.Port != 0
}

// Addr returns the "host:port" listen address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	World      WorldConfig      `mapstructure:"world"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Radar      RadarConfig      `mapstructure:"radar"`
	Flight     FlightConfig     `mapstructure:"flight"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Health     HealthConfig     `mapstructure:"health"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateWorld(c.World); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateChat(c.Chat); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Radar.Radius <= 0 {
		errs = append(errs, fmt.Sprintf("radar.radius must be > 0, got %g", c.Radar.Radius))
	}
	if err := validateFlight(c.Flight); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSupervisor(c.Supervisor); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		errs = append(errs, fmt.Sprintf("health.port must be 0-65535, got %d", c.Health.Port))
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWorld(w WorldConfig) error {
	var errs []string
	if u, err := url.Parse(w.GatewayURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Sprintf("world.gateway_url must be a ws:// or wss:// url, got %q", w.GatewayURL))
	}
	if w.Host == "" {
		errs = append(errs, "world.host must not be empty")
	}
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("world.port must be 1-65535, got %d", w.Port))
	}
	if w.Username == "" {
		errs = append(errs, "world.username must not be empty")
	}
	validAuth := map[string]bool{"microsoft": true, "offline": true}
	if !validAuth[w.Auth] {
		errs = append(errs, fmt.Sprintf("world.auth must be one of [microsoft, offline], got %q", w.Auth))
	}
	if w.DialTimeout < 0 {
		errs = append(errs, "world.dial_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateChat(c ChatConfig) error {
	var errs []string
	if c.Token == "" {
		errs = append(errs, "chat.token must not be empty")
	}
	if len([]rune(c.CommandPrefix)) != 1 {
		errs = append(errs, fmt.Sprintf("chat.command_prefix must be a single character, got %q", c.CommandPrefix))
	}
	if c.Channels.Relay == "" {
		errs = append(errs, "chat.channels.relay must not be empty")
	}
	if c.Channels.Alerts == "" {
		errs = append(errs, "chat.channels.alerts must not be empty")
	}
	if c.Channels.Commands == "" {
		errs = append(errs, "chat.channels.commands must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateFlight(f FlightConfig) error {
	var errs []string
	if f.Duration <= 0 {
		errs = append(errs, "flight.duration must be > 0")
	}
	if f.Steps < 1 {
		errs = append(errs, fmt.Sprintf("flight.steps must be >= 1, got %d", f.Steps))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSupervisor(s SupervisorConfig) error {
	var errs []string
	if s.RetryDelay <= 0 {
		errs = append(errs, "supervisor.retry_delay must be > 0")
	}
	if s.RespawnDelay < 0 {
		errs = append(errs, "supervisor.respawn_delay must not be negative")
	}
	if s.SettleDelay < 0 {
		errs = append(errs, "supervisor.settle_delay must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
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

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with SKYBRIDGE_ prefix
	v.SetEnvPrefix("SKYBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("world.gateway_url", "ws://127.0.0.1:3001/session")
	v.SetDefault("world.host", "")
	v.SetDefault("world.port", 25565)
	v.SetDefault("world.username", "")
	v.SetDefault("world.version", "auto")
	v.SetDefault("world.auth", "microsoft")
	v.SetDefault("world.dial_timeout", "10s")

	// Bound explicitly so AutomaticEnv can supply secrets absent from the file.
	v.SetDefault("chat.token", "")
	v.SetDefault("chat.command_prefix", "!")
	v.SetDefault("chat.channels.relay", "")
	v.SetDefault("chat.channels.alerts", "")
	v.SetDefault("chat.channels.commands", "")

	v.SetDefault("radar.radius", 32)

	v.SetDefault("flight.duration", "10s")
	v.SetDefault("flight.steps", 120)
	v.SetDefault("flight.home.x", 0)
	v.SetDefault("flight.home.y", 420)
	v.SetDefault("flight.home.z", 0)

	v.SetDefault("supervisor.retry_delay", "5s")
	v.SetDefault("supervisor.respawn_delay", "200ms")
	v.SetDefault("supervisor.settle_delay", "1s")

	v.SetDefault("health.host", "127.0.0.1")
	v.SetDefault("health.port", 50061)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
