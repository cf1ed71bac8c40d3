package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/bhandras/bazaar/internal/wire"
)

const (
	// DefaultServerURL is used when nothing else names a server.
	DefaultServerURL = "http://localhost:3005"

	fileName      = "config.toml"
	accessKeyName = "access.key"
)

// Config is the client configuration. Fields tagged `toml:"-"` are derived at
// load time and never written to config.toml.
type Config struct {
	// ServerURL is the base URL of the bazaar server.
	ServerURL string `toml:"server_url" validate:"required,url"`
	// SocketPath is the socket.io endpoint path on ServerURL.
	SocketPath string `toml:"socket_path" validate:"required,startswith=/"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `toml:"log_level" validate:"omitempty,loglevel"`
	// Debug forces debug logging regardless of LogLevel.
	Debug bool `toml:"debug"`

	Backoff        Backoff  `toml:"backoff"`
	CredentialPoll Duration `toml:"credential_poll" validate:"gte=0"`
	Pushover       Pushover `toml:"pushover"`

	// Home is the directory holding config.toml and the access key.
	Home string `toml:"-" validate:"required"`
	// AccessKey is the path of the stored credential.
	AccessKey string `toml:"-" validate:"required"`
}

// Backoff overrides the reconnect delay curve. Zero values keep the defaults.
type Backoff struct {
	Floor   Duration `toml:"floor,omitempty" validate:"gte=0"`
	Factor  float64  `toml:"factor,omitempty" validate:"omitempty,gt=1"`
	Ceiling Duration `toml:"ceiling,omitempty" validate:"gte=0"`
}

// Pushover holds optional phone push credentials.
type Pushover struct {
	Token    string   `toml:"token,omitempty" validate:"required_with=UserKey"`
	UserKey  string   `toml:"user,omitempty" validate:"required_with=Token"`
	Cooldown Duration `toml:"cooldown,omitempty" validate:"gte=0"`
}

// Duration is a time.Duration that reads and writes as "1.5s" in TOML.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Overrides carries command-line values. A nil pointer means "keep the
// value from the file or environment".
type Overrides struct {
	Home      *string
	ServerURL *string
	LogLevel  *string
	Debug     *bool
}

// Default returns the built-in configuration rooted at home.
func Default(home string) *Config {
	return &Config{
		ServerURL:  DefaultServerURL,
		SocketPath: wire.SocketPath,
		LogLevel:   "info",
		Home:       home,
		AccessKey:  filepath.Join(home, accessKeyName),
	}
}

// Load assembles the client configuration from defaults, <home>/config.toml,
// .env files, the environment and finally overrides, then validates it.
func Load(overrides Overrides) (*Config, error) {
	// Best effort: a missing .env is normal.
	_ = godotenv.Load()

	home, err := resolveHome(overrides.Home)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create bazaar home: %w", err)
	}
	_ = godotenv.Load(filepath.Join(home, ".env"))

	cfg := Default(home)
	if err := cfg.readFile(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyOverrides(overrides)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the location of config.toml.
func (c *Config) Path() string {
	return filepath.Join(c.Home, fileName)
}

// Level returns the effective log level name.
func (c *Config) Level() string {
	if c.Debug {
		return "debug"
	}
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

func (c *Config) readFile() error {
	data, err := os.ReadFile(c.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Path(), err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.Path(), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BAZAAR_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("BAZAAR_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		c.Debug = true
	}
	if v := os.Getenv("BAZAAR_PUSHOVER_TOKEN"); v != "" {
		c.Pushover.Token = v
	}
	if v := os.Getenv("BAZAAR_PUSHOVER_USER"); v != "" {
		c.Pushover.UserKey = v
	}
}

func (c *Config) applyOverrides(o Overrides) {
	if o.ServerURL != nil && *o.ServerURL != "" {
		c.ServerURL = *o.ServerURL
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		c.LogLevel = strings.ToLower(*o.LogLevel)
	}
	if o.Debug != nil {
		c.Debug = *o.Debug
	}
}

func resolveHome(override *string) (string, error) {
	if override != nil && *override != "" {
		return *override, nil
	}
	if v := os.Getenv("BAZAAR_HOME_DIR"); v != "" {
		return v, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(dir, ".bazaar"), nil
}

// Encode renders the file-backed fields as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// SaveFile writes the file-backed fields to config.toml.
func (c *Config) SaveFile() error {
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(c.Home, 0700); err != nil {
		return fmt.Errorf("failed to create bazaar home: %w", err)
	}
	if err := os.WriteFile(c.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Path(), err)
	}
	return nil
}

// ErrUnknownKey is returned by Set for keys that are not settable.
var ErrUnknownKey = errors.New("unknown config key")

var setters = map[string]func(c *Config, v string) error{
	"server_url":  func(c *Config, v string) error { c.ServerURL = v; return nil },
	"socket_path": func(c *Config, v string) error { c.SocketPath = v; return nil },
	"log_level": func(c *Config, v string) error {
		c.LogLevel = strings.ToLower(v)
		return nil
	},
	"debug": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Debug = b
		return err
	},
	"credential_poll":   durationSetter(func(c *Config) *Duration { return &c.CredentialPoll }),
	"backoff.floor":     durationSetter(func(c *Config) *Duration { return &c.Backoff.Floor }),
	"backoff.ceiling":   durationSetter(func(c *Config) *Duration { return &c.Backoff.Ceiling }),
	"pushover.cooldown": durationSetter(func(c *Config) *Duration { return &c.Pushover.Cooldown }),
	"backoff.factor": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.Backoff.Factor = f
		return err
	},
	"pushover.token": func(c *Config, v string) error { c.Pushover.Token = v; return nil },
	"pushover.user":  func(c *Config, v string) error { c.Pushover.UserKey = v; return nil },
}

func durationSetter(field func(c *Config) *Duration) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		return field(c).UnmarshalText([]byte(v))
	}
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one file-backed value by its TOML key and revalidates.
func (c *Config) Set(key, value string) error {
	set, ok := setters[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("%w %q (known: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	next := *c
	if err := set(&next, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := Validate(&next); err != nil {
		return err
	}
	*c = next
	return nil
}
