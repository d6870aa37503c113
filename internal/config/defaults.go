package config

import "time"

// ── Default values ───────────────────────────────────────────────────

const (
	DefaultListenAddr = ":8080"

	// DefaultLocalIPv4 is where the server dials freshly launched workers.
	DefaultLocalIPv4 = "127.0.0.1"

	DefaultInternalPortStart = 20000
	DefaultInternalPortEnd   = 21000
	DefaultExternalPortStart = 54000
	DefaultExternalPortEnd   = 55000

	DefaultWorkerBinary = "./match-worker"

	// DefaultHandshakeTimeout bounds dialing a worker and receiving its
	// player tokens.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultPingInterval is how often the server pings each client. A client
	// that does not answer within DefaultPingTimeout is disconnected.
	DefaultPingInterval = 30 * time.Second
	DefaultPingTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	// DefaultOutboundQueueSize is the per-connection buffer; messages
	// beyond it are dropped.
	DefaultOutboundQueueSize = 64

	DefaultMessagesPerSecond = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a configuration populated with the defaults above.
func Default() Config {
	return Config{
		ListenAddr:        DefaultListenAddr,
		InternalPorts:     PortRange{Start: DefaultInternalPortStart, End: DefaultInternalPortEnd},
		ExternalPorts:     PortRange{Start: DefaultExternalPortStart, End: DefaultExternalPortEnd},
		LocalIPv4:         DefaultLocalIPv4,
		LaunchMode:        LaunchExec,
		WorkerBinary:      DefaultWorkerBinary,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		PingInterval:      DefaultPingInterval,
		PingTimeout:       DefaultPingTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		OutboundQueueSize: DefaultOutboundQueueSize,
		MessagesPerSecond: DefaultMessagesPerSecond,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
	}
}
