// Package config defines the runtime configuration for the lobby server and
// the helpers for parsing port ranges and launch settings.
package config

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// LaunchMode selects how match workers are started.
type LaunchMode string

const (
	// LaunchExec runs a prebuilt worker binary directly.
	LaunchExec LaunchMode = "exec"
	// LaunchBuild runs the worker through a build tool invocation.
	LaunchBuild LaunchMode = "build"
)

// Config holds every tuneable of one lobby server process.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	ListenAddr     string
	CertFile       string
	KeyFile        string
	AllowedOrigins []string

	// ── Match workers ────────────────────────────────────────────────
	InternalPorts    PortRange
	ExternalPorts    PortRange
	PublicIPv4       string
	LocalIPv4        string
	IPv6             string
	LaunchMode       LaunchMode
	WorkerBinary     string
	BuildCommand     []string
	WorkerDir        string
	HandshakeTimeout time.Duration

	// ── Clients ──────────────────────────────────────────────────────
	PingInterval      time.Duration
	PingTimeout       time.Duration
	WriteTimeout      time.Duration
	OutboundQueueSize int
	MessagesPerSecond float64

	// ── Storage ──────────────────────────────────────────────────────
	DatabaseURL string

	// ── Output ───────────────────────────────────────────────────────
	LogLevel  string
	LogFormat string
}

// TLSEnabled reports whether the listener should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// ── Port helpers ─────────────────────────────────────────────────────

// PortRange is an inclusive start-end pair.
type PortRange struct {
	Start int
	End   int
}

// Len returns the number of ports in the range.
func (pr PortRange) Len() int {
	if pr.End < pr.Start {
		return 0
	}
	return pr.End - pr.Start + 1
}

// Contains reports whether port lies inside the range.
func (pr PortRange) Contains(port int) bool {
	return port >= pr.Start && port <= pr.End
}

// Overlaps reports whether the two ranges share at least one port.
func (pr PortRange) Overlaps(other PortRange) bool {
	return pr.Start <= other.End && other.Start <= pr.End
}

func (pr PortRange) String() string {
	if pr.Start == pr.End {
		return strconv.Itoa(pr.Start)
	}
	return fmt.Sprintf("%d-%d", pr.Start, pr.End)
}

// ParsePortRange accepts "7000" or "7000-7100".
func ParsePortRange(spec string) (PortRange, error) {
	spec = strings.TrimSpace(spec)
	if strings.Contains(spec, "-") {
		parts := strings.SplitN(spec, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range start %q", parts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range end %q", parts[1])
		}
		if start < 1 || end > 65535 || start > end {
			return PortRange{}, fmt.Errorf("invalid port range %d-%d", start, end)
		}
		return PortRange{Start: start, End: end}, nil
	}

	port, err := strconv.Atoi(spec)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return PortRange{}, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return PortRange{Start: port, End: port}, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Error describes one invalid setting.
type Error struct {
	Field   string
	Value   string
	Message string
	Hint    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return &Error{Field: "listen address", Message: "must not be empty"}
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return &Error{
			Field:   "tls",
			Value:   c.CertFile + c.KeyFile,
			Message: "certificate and key must be set together",
			Hint:    "set both LOBBY_TLS_CERT and LOBBY_TLS_KEY",
		}
	}

	for name, pr := range map[string]PortRange{"internal ports": c.InternalPorts, "external ports": c.ExternalPorts} {
		if pr.Start < 1 || pr.End > 65535 || pr.Start > pr.End {
			return &Error{Field: name, Value: pr.String(), Message: "expected an ascending range within 1-65535"}
		}
	}
	if c.InternalPorts.Overlaps(c.ExternalPorts) {
		return &Error{
			Field:   "external ports",
			Value:   c.ExternalPorts.String(),
			Message: "overlaps the internal range " + c.InternalPorts.String(),
		}
	}

	addr, err := netip.ParseAddr(c.LocalIPv4)
	if err != nil || !addr.Is4() {
		return &Error{Field: "local ipv4", Value: c.LocalIPv4, Message: "not an IPv4 address"}
	}
	if c.PublicIPv4 != "" {
		if addr, err := netip.ParseAddr(c.PublicIPv4); err != nil || !addr.Is4() {
			return &Error{Field: "public ipv4", Value: c.PublicIPv4, Message: "not an IPv4 address"}
		}
	}
	if c.IPv6 != "" {
		if addr, err := netip.ParseAddr(c.IPv6); err != nil || !addr.Is6() {
			return &Error{Field: "ipv6", Value: c.IPv6, Message: "not an IPv6 address"}
		}
	}

	switch c.LaunchMode {
	case LaunchExec:
		if c.WorkerBinary == "" {
			return &Error{
				Field:   "worker binary",
				Message: "required in exec mode",
				Hint:    "set LOBBY_WORKER_BINARY or use --launch-mode=build",
			}
		}
	case LaunchBuild:
		if len(c.BuildCommand) == 0 {
			return &Error{Field: "build command", Message: "required in build mode"}
		}
	default:
		return &Error{Field: "launch mode", Value: string(c.LaunchMode), Message: "expected exec or build"}
	}

	if c.HandshakeTimeout <= 0 {
		return &Error{Field: "handshake timeout", Value: c.HandshakeTimeout.String(), Message: "must be positive"}
	}
	if c.PingInterval <= 0 {
		return &Error{Field: "ping interval", Value: c.PingInterval.String(), Message: "must be positive"}
	}
	if c.PingTimeout <= 0 {
		return &Error{Field: "ping timeout", Value: c.PingTimeout.String(), Message: "must be positive"}
	}
	if c.WriteTimeout <= 0 {
		return &Error{Field: "write timeout", Value: c.WriteTimeout.String(), Message: "must be positive"}
	}
	if c.OutboundQueueSize < 1 {
		return &Error{Field: "outbound queue size", Value: strconv.Itoa(c.OutboundQueueSize), Message: "must be at least 1"}
	}
	if c.MessagesPerSecond <= 0 {
		return &Error{
			Field:   "message rate",
			Value:   strconv.FormatFloat(c.MessagesPerSecond, 'f', -1, 64),
			Message: "must be positive",
		}
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return &Error{Field: "log format", Value: c.LogFormat, Message: "expected console or json"}
	}

	return nil
}
