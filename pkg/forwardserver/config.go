// Package forwardserver provides a stoppable TCP/IP forwarding/echo service
// for tests: it listens on a local address, accepts client connections one
// after another, and relays each one to a configured remote address, or
// echoes its bytes back when no remote is configured.
package forwardserver

import (
	"fmt"
	"os"
	"time"

	"github.com/sammck-go/logger"
	"gopkg.in/yaml.v3"
)

// DefaultStopGracePeriod bounds how long Stop waits for an in-flight
// session before forcing its client connection closed.
const DefaultStopGracePeriod = 10 * time.Second

// Duration is a time.Duration that unmarshals from YAML duration strings
// such as "10s" or "250ms".
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config fully describes one ForwardServer instance. All settings are fixed
// when the server is constructed; there is no mutable process-wide state.
type Config struct {
	// ListenNetwork is the listening socket's network: "tcp", "tcp4",
	// "tcp6" or "unix". Defaults to "tcp4".
	ListenNetwork string `yaml:"listen_network"`

	// ListenAddr is the bind address for the listening socket. For TCP
	// networks, port 0 picks an ephemeral port; for "unix" it is a
	// filesystem path. Defaults to "127.0.0.1:0".
	ListenAddr string `yaml:"listen_addr"`

	// RemoteNetwork is the forward target's network, configured
	// independently of ListenNetwork. Defaults to "tcp4".
	RemoteNetwork string `yaml:"remote_network"`

	// RemoteAddr is the address the server connects onward to for each
	// client. Leave empty to run as an echo server instead.
	RemoteAddr string `yaml:"remote_addr"`

	// PairFamily selects the loopback pair family used in echo mode
	// ("unix", "tcp", "tcp4", "tcp6"); empty picks the platform default.
	PairFamily string `yaml:"pair_family"`

	// StopGracePeriod is how long Stop tolerates an in-flight session
	// before treating it as unresponsive and forcing its client connection
	// closed. Defaults to DefaultStopGracePeriod.
	StopGracePeriod Duration `yaml:"stop_grace_period"`

	// LogLevel is one of "error", "warning", "info", "debug", "trace".
	// Defaults to "info". Only consulted by callers that construct their
	// logger from config (see ParseLogLevel).
	LogLevel string `yaml:"log_level"`
}

// Load reads a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.ListenNetwork == "" {
		c.ListenNetwork = "tcp4"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:0"
	}
	if c.RemoteNetwork == "" {
		c.RemoteNetwork = "tcp4"
	}
	if c.StopGracePeriod <= 0 {
		c.StopGracePeriod = Duration(DefaultStopGracePeriod)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// EchoMode reports whether the server echoes instead of forwarding.
func (c *Config) EchoMode() bool {
	return c.RemoteAddr == ""
}

// Validate rejects configurations the server cannot run.
func (c *Config) Validate() error {
	if !validStreamNetwork(c.ListenNetwork) {
		return fmt.Errorf("invalid listen_network %q", c.ListenNetwork)
	}
	if !c.EchoMode() && !validStreamNetwork(c.RemoteNetwork) {
		return fmt.Errorf("invalid remote_network %q", c.RemoteNetwork)
	}
	switch c.PairFamily {
	case "", "unix", "tcp", "tcp4", "tcp6":
	default:
		return fmt.Errorf("invalid pair_family %q", c.PairFamily)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// validStreamNetwork permits the stream-oriented networks only; datagram
// sockets are not relayable.
func validStreamNetwork(network string) bool {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
		return true
	}
	return false
}

// ParseLogLevel maps a Config.LogLevel string to a logger.LogLevel.
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch level {
	case "", "info":
		return logger.LogLevelInfo, nil
	case "error":
		return logger.LogLevelError, nil
	case "warning":
		return logger.LogLevelWarning, nil
	case "debug":
		return logger.LogLevelDebug, nil
	case "trace":
		return logger.LogLevelTrace, nil
	default:
		return logger.LogLevelInfo, fmt.Errorf("unknown log_level %q", level)
	}
}
