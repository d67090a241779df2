// Package config assembles the server configuration from defaults, an
// optional YAML file, PRIMETIME_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "PRIMETIME_"

type Config struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	SieveBound     uint64        `yaml:"sieveBound"`
	Workers        int           `yaml:"workers"`
	QueueDepth     int           `yaml:"queueDepth"`
	MaxLineBytes   int           `yaml:"maxLineBytes"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	IndexCachePath string        `yaml:"indexCachePath"`
	MetricsAddr    string        `yaml:"metricsAddr"`
	AcceptRate     float64       `yaml:"acceptRate"`
	AcceptBurst    int           `yaml:"acceptBurst"`
	LogFile        string        `yaml:"logFile"`
	Quiet          bool          `yaml:"quiet"`
	Debug          bool          `yaml:"debug"`
}

func Default() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8000,
		SieveBound:   100_000_000,
		Workers:      1,
		QueueDepth:   100,
		MaxLineBytes: 1 << 20,
		AcceptBurst:  64,
	}
}

// Addr returns the host:port the listener binds.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SieveBound < 2 {
		return fmt.Errorf("sieve bound must be at least 2, got %d", c.SieveBound)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("queue depth must not be negative, got %d", c.QueueDepth)
	}
	if c.MaxLineBytes < 64 {
		return fmt.Errorf("max line bytes must be at least 64, got %d", c.MaxLineBytes)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative")
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("accept rate must not be negative")
	}
	if c.AcceptRate > 0 && c.AcceptBurst < 1 {
		return fmt.Errorf("accept burst must be at least 1 when accept rate is set")
	}
	return nil
}

// LoadFile merges the YAML document at path over cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides applies PRIMETIME_<FIELD> variables, e.g.
// PRIMETIME_PORT=9000 or PRIMETIME_IDLE_TIMEOUT=30s.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	for _, f := range fields(cfg) {
		raw, ok := lookup(envPrefix + f.env)
		if !ok {
			continue
		}
		if err := f.value.Set(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, f.env, err)
		}
	}
	return nil
}

// Parse builds the configuration for the server command from args.
func Parse(args []string, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Default()

	// Flags are bound to a scratch copy and applied last, after the file and
	// environment, and only when given explicitly.
	flagged := Default()
	fs := flag.NewFlagSet("primetime", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	byName := make(map[string]field)
	for _, f := range fields(&flagged) {
		fs.Var(f.value, f.flag, f.usage)
		byName[f.flag] = f
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		if err := LoadFile(&cfg, *configPath); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnvOverrides(&cfg, lookupEnv); err != nil {
		return cfg, err
	}

	target := make(map[string]field)
	for _, f := range fields(&cfg) {
		target[f.flag] = f
	}
	var setErr error
	fs.Visit(func(fl *flag.Flag) {
		dst, ok := target[fl.Name]
		if !ok || setErr != nil {
			return
		}
		setErr = dst.value.Set(byName[fl.Name].value.String())
	})
	if setErr != nil {
		return cfg, setErr
	}

	return cfg, cfg.Validate()
}

type field struct {
	flag  string
	env   string
	usage string
	value flag.Value
}

func fields(c *Config) []field {
	return []field{
		{"host", "HOST", "Address to bind", (*stringValue)(&c.Host)},
		{"port", "PORT", "Port to listen on", (*intValue)(&c.Port)},
		{"sieve-bound", "SIEVE_BOUND", "Exclusive upper bound of the prime index", (*uint64Value)(&c.SieveBound)},
		{"workers", "WORKERS", "Compute worker count", (*intValue)(&c.Workers)},
		{"queue-depth", "QUEUE_DEPTH", "Compute queue capacity", (*intValue)(&c.QueueDepth)},
		{"max-line-bytes", "MAX_LINE_BYTES", "Longest accepted request line", (*intValue)(&c.MaxLineBytes)},
		{"idle-timeout", "IDLE_TIMEOUT", "Close connections idle this long (0 disables)", (*durationValue)(&c.IdleTimeout)},
		{"index-cache", "INDEX_CACHE", "Path of the prime index snapshot (empty disables)", (*stringValue)(&c.IndexCachePath)},
		{"metrics-addr", "METRICS_ADDR", "Address for the Prometheus endpoint (empty disables)", (*stringValue)(&c.MetricsAddr)},
		{"accept-rate", "ACCEPT_RATE", "Accepted connections per second (0 disables)", (*float64Value)(&c.AcceptRate)},
		{"accept-burst", "ACCEPT_BURST", "Accept rate burst", (*intValue)(&c.AcceptBurst)},
		{"log-file", "LOG_FILE", "Also append logs to this file", (*stringValue)(&c.LogFile)},
		{"quiet", "QUIET", "Disable info logging (log only errors)", (*boolValue)(&c.Quiet)},
		{"debug", "DEBUG", "Log every connection and request", (*boolValue)(&c.Debug)},
	}
}

type stringValue string

func (v *stringValue) Set(s string) error { *v = stringValue(s); return nil }
func (v *stringValue) String() string     { return string(*v) }

type intValue int

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = intValue(n)
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(int(*v)) }

type uint64Value uint64

func (v *uint64Value) Set(s string) error {
	n, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil {
		return err
	}
	*v = uint64Value(n)
	return nil
}
func (v *uint64Value) String() string { return strconv.FormatUint(uint64(*v), 10) }

type float64Value float64

func (v *float64Value) Set(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*v = float64Value(f)
	return nil
}
func (v *float64Value) String() string { return strconv.FormatFloat(float64(*v), 'g', -1, 64) }

type durationValue time.Duration

func (v *durationValue) Set(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*v = durationValue(d)
	return nil
}
func (v *durationValue) String() string { return time.Duration(*v).String() }

type boolValue bool

func (v *boolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v = boolValue(b)
	return nil
}
func (v *boolValue) String() string   { return strconv.FormatBool(bool(*v)) }
func (v *boolValue) IsBoolFlag() bool { return true }
