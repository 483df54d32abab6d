package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/rps-match-backend/internal/engine"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // "json" | "console"

	Rules engine.Rules

	// A websocket is pinged every WSPingInterval and closed when the pong
	// takes longer than WSPongTimeout. Silence alone never closes it.
	WSPingInterval   time.Duration
	WSPongTimeout    time.Duration
	// WSOriginPatterns defaults to "*", any origin may connect.
	WSOriginPatterns []string
	ShutdownTimeout  time.Duration
}

func Default() Config {
	return Config{
		Port:             "3000",
		LogLevel:         "info",
		LogFormat:        "json",
		Rules:            engine.DefaultRules(),
		WSPingInterval:   54 * time.Second,
		WSPongTimeout:    60 * time.Second,
		WSOriginPatterns: []string{"*"},
		ShutdownTimeout:  10 * time.Second,
	}
}

// Load reads an optional .env file from the working directory and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var err error

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Port = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	if c.Rules.RoundTimeout, err = millis(lookup, "ROUND_TIMEOUT_MS", c.Rules.RoundTimeout); err != nil {
		return Config{}, err
	}
	if c.Rules.Cooldown, err = millis(lookup, "COOLDOWN_MS", c.Rules.Cooldown); err != nil {
		return Config{}, err
	}
	if v, ok := lookup("WIN_SCORE"); ok && v != "" {
		if c.Rules.WinScore, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("%w: WIN_SCORE=%q", ErrInvalid, v)
		}
	}
	if c.WSPingInterval, err = duration(lookup, "WS_PING_INTERVAL", c.WSPingInterval); err != nil {
		return Config{}, err
	}
	if c.WSPongTimeout, err = duration(lookup, "WS_PONG_TIMEOUT", c.WSPongTimeout); err != nil {
		return Config{}, err
	}
	if c.ShutdownTimeout, err = duration(lookup, "SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if v, ok := lookup("WS_ORIGIN_PATTERNS"); ok && v != "" {
		c.WSOriginPatterns = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.WSOriginPatterns = append(c.WSOriginPatterns, p)
			}
		}
	}

	if err := c.Rules.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.WSPingInterval <= 0 || c.WSPongTimeout <= 0 {
		return Config{}, fmt.Errorf("%w: websocket ping interval and pong timeout must be positive", ErrInvalid)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return Config{}, fmt.Errorf("%w: LOG_FORMAT=%q", ErrInvalid, c.LogFormat)
	}
	return c, nil
}

func (c Config) Addr() string { return ":" + c.Port }

func millis(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func duration(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	return d, nil
}
