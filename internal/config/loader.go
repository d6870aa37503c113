package config

// loader.go - configuration loading from .env files, the environment and
// command line flags.
//
// Precedence order (highest wins):
//   1. CLI flags
//   2. Environment variables (a .env file only fills unset ones)
//   3. Defaults (defaults.go)

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every supported environment variable.
const EnvPrefix = "LOBBY_"

// LoadDotEnv reads the given .env files (".env" when none are given) into the
// process environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadFromEnv overlays LOBBY_* environment variables onto cfg. Only non-empty
// variables override the existing value.
func LoadFromEnv(cfg *Config) error {
	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("TLS_CERT"); v != "" {
		cfg.CertFile = v
	}
	if v := env("TLS_KEY"); v != "" {
		cfg.KeyFile = v
	}
	if v := env("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if v := env("INTERNAL_PORTS"); v != "" {
		pr, err := ParsePortRange(v)
		if err != nil {
			return fmt.Errorf("%sINTERNAL_PORTS: %w", EnvPrefix, err)
		}
		cfg.InternalPorts = pr
	}
	if v := env("EXTERNAL_PORTS"); v != "" {
		pr, err := ParsePortRange(v)
		if err != nil {
			return fmt.Errorf("%sEXTERNAL_PORTS: %w", EnvPrefix, err)
		}
		cfg.ExternalPorts = pr
	}
	if v := env("PUBLIC_IPV4"); v != "" {
		cfg.PublicIPv4 = v
	}
	if v := env("LOCAL_IPV4"); v != "" {
		cfg.LocalIPv4 = v
	}
	if v := env("IPV6"); v != "" {
		cfg.IPv6 = v
	}
	if v := env("LAUNCH_MODE"); v != "" {
		cfg.LaunchMode = LaunchMode(strings.ToLower(v))
	}
	if v := env("WORKER_BINARY"); v != "" {
		cfg.WorkerBinary = v
	}
	if v := env("BUILD_COMMAND"); v != "" {
		cfg.BuildCommand = strings.Fields(v)
	}
	if v := env("WORKER_DIR"); v != "" {
		cfg.WorkerDir = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout},
		{"PING_INTERVAL", &cfg.PingInterval},
		{"PING_TIMEOUT", &cfg.PingTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	if v := env("OUTBOUND_QUEUE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sOUTBOUND_QUEUE: %w", EnvPrefix, err)
		}
		cfg.OutboundQueueSize = n
	}
	if v := env("MESSAGE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sMESSAGE_RATE: %w", EnvPrefix, err)
		}
		cfg.MessagesPerSecond = f
	}

	if v := env("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	return nil
}

// BindFlags registers a flag for every setting on flags, defaulting to the
// current values in cfg. Port ranges are bound as strings; call the returned
// function after flags.Parse to apply them.
func BindFlags(flags *pflag.FlagSet, cfg *Config) func() error {
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to serve websocket clients on")
	flags.StringVar(&cfg.CertFile, "tls-cert", cfg.CertFile, "TLS certificate file")
	flags.StringVar(&cfg.KeyFile, "tls-key", cfg.KeyFile, "TLS private key file")
	flags.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "websocket origin patterns to accept")

	internal := flags.String("internal-ports", cfg.InternalPorts.String(), "port range for worker handshakes")
	external := flags.String("external-ports", cfg.ExternalPorts.String(), "port range exposed to players")
	flags.StringVar(&cfg.PublicIPv4, "public-ipv4", cfg.PublicIPv4, "public IPv4 address handed to workers")
	flags.StringVar(&cfg.LocalIPv4, "local-ipv4", cfg.LocalIPv4, "local IPv4 address used to reach workers")
	flags.StringVar(&cfg.IPv6, "ipv6", cfg.IPv6, "IPv6 address handed to workers")
	mode := flags.String("launch-mode", string(cfg.LaunchMode), "worker launch mode: exec or build")
	flags.StringVar(&cfg.WorkerBinary, "worker-binary", cfg.WorkerBinary, "worker executable (exec mode)")
	build := flags.String("build-command", strings.Join(cfg.BuildCommand, " "), "command line prefix that builds and runs the worker (build mode)")
	flags.StringVar(&cfg.WorkerDir, "worker-dir", cfg.WorkerDir, "working directory for worker processes")
	flags.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "deadline for the worker token handshake")

	flags.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "how often each client is pinged")
	flags.DurationVar(&cfg.PingTimeout, "ping-timeout", cfg.PingTimeout, "disconnect clients that do not answer a ping within this long")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-message websocket write deadline")
	flags.IntVar(&cfg.OutboundQueueSize, "outbound-queue", cfg.OutboundQueueSize, "per-client outbound message buffer")
	flags.Float64Var(&cfg.MessagesPerSecond, "message-rate", cfg.MessagesPerSecond, "inbound messages per second allowed per client")

	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres URL for match history (empty disables it)")
	flags.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "trace, debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")

	return func() error {
		var err error
		if cfg.InternalPorts, err = ParsePortRange(*internal); err != nil {
			return fmt.Errorf("--internal-ports: %w", err)
		}
		if cfg.ExternalPorts, err = ParsePortRange(*external); err != nil {
			return fmt.Errorf("--external-ports: %w", err)
		}
		cfg.LaunchMode = LaunchMode(strings.ToLower(*mode))
		cfg.BuildCommand = strings.Fields(*build)
		return nil
	}
}

// Load builds the configuration for one process: defaults, then .env and the
// environment, then args. The result is validated.
func Load(args []string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := LoadFromEnv(&cfg); err != nil {
		return nil, err
	}

	flags := pflag.NewFlagSet("lobby-server", pflag.ContinueOnError)
	apply := BindFlags(flags, &cfg)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := apply(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
