//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package env implements the global environment for the circuit
// input/output service.
package env

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Role specifies which party of the pairing a process plays.
type Role int

// Service roles.
const (
	// Server is the Provider role. It returns one field corrected
	// value per circuit output.
	Server Role = iota
	// Client is the Mediator role. It returns two secret shares.
	Client
)

func (r Role) String() string {
	switch r {
	case Server:
		return "server"
	case Client:
		return "client"
	default:
		return fmt.Sprintf("{Role %d}", int(r))
	}
}

// ParseRole parses the role name.
func ParseRole(name string) (Role, error) {
	switch name {
	case "server", "provider":
		return Server, nil
	case "client", "mediator":
		return Client, nil
	default:
		return 0, fmt.Errorf("unknown role: %s", name)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (r Role) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Role) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseRole(node.Value)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Mode specifies how the input listener uses its connections.
type Mode int

// Connection modes.
const (
	// Persistent services one connection carrying many requests. End
	// of stream stops the service.
	Persistent Mode = iota
	// PerRequest services one request per connection and keeps
	// accepting new connections.
	PerRequest
)

func (m Mode) String() string {
	switch m {
	case Persistent:
		return "persistent"
	case PerRequest:
		return "per-request"
	default:
		return fmt.Sprintf("{Mode %d}", int(m))
	}
}

// ParseMode parses the connection mode name.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "persistent":
		return Persistent, nil
	case "per-request", "request":
		return PerRequest, nil
	default:
		return 0, fmt.Errorf("unknown connection mode: %s", name)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseMode(node.Value)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Default values.
const (
	DefaultNBits      = 128
	DefaultIterations = 1
	DefaultEnginePort = 23456
	DefaultServerPort = 3491
	DefaultClientPort = 3492
	DefaultHost       = "localhost"
)

// Config defines the system configuration for the service. It is
// built once at startup and passed to every component. Config must
// not be modified after being passed to any module. It is safe for
// concurrent use by multiple modules as they do not modify it.
type Config struct {
	Role        Role          `yaml:"role"`
	NBits       int           `yaml:"bits"`
	Iterations  int           `yaml:"iterations"`
	EnginePort  int           `yaml:"engine_port"`
	InputPort   int           `yaml:"input_port"`
	Host        string        `yaml:"host"`
	Mode        Mode          `yaml:"mode"`
	Circuit     string        `yaml:"circuit"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	EvalTimeout time.Duration `yaml:"eval_timeout"`
	Verbose     bool          `yaml:"verbose"`

	Rand   io.Reader   `yaml:"-"`
	Logger *zap.Logger `yaml:"-"`
}

// Defaults returns the default configuration for the role.
func Defaults(role Role) *Config {
	config := &Config{
		Role:       role,
		NBits:      DefaultNBits,
		Iterations: DefaultIterations,
		EnginePort: DefaultEnginePort,
		Host:       DefaultHost,
	}
	switch role {
	case Client:
		config.InputPort = DefaultClientPort
		config.Mode = PerRequest
	default:
		config.InputPort = DefaultServerPort
		config.Mode = Persistent
	}
	return config
}

// Load reads the YAML configuration file and overlays its values on
// the role defaults. The role in the file, if any, must match role.
func Load(path string, role Role) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := Defaults(role)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if config.Role != role {
		return nil, fmt.Errorf("%s: configured for role %s, expected %s",
			path, config.Role, role)
	}
	return config, nil
}

// Validate checks the configuration values.
func (config *Config) Validate() error {
	if config.NBits < 2 {
		return fmt.Errorf("invalid field width: %d", config.NBits)
	}
	if config.Iterations < 1 {
		return fmt.Errorf("invalid iteration count: %d", config.Iterations)
	}
	if err := validPort("engine", config.EnginePort); err != nil {
		return err
	}
	if err := validPort("input", config.InputPort); err != nil {
		return err
	}
	if config.Role == Client && len(config.Host) == 0 {
		return errors.New("client role requires remote host")
	}
	if config.ReadTimeout < 0 || config.EvalTimeout < 0 {
		return errors.New("negative timeout")
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, port)
	}
	return nil
}

// Modulus returns the field modulus 2^NBits.
func (config *Config) Modulus() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(config.NBits))
}

// EngineAddr returns the address of the engine handshake port. The
// server role listens on all interfaces, the client role dials the
// remote host.
func (config *Config) EngineAddr() string {
	if config.Role == Client {
		return fmt.Sprintf("%s:%d", config.Host, config.EnginePort)
	}
	return fmt.Sprintf(":%d", config.EnginePort)
}

// InputAddr returns the listen address of the input/output port.
func (config *Config) InputAddr() string {
	return fmt.Sprintf(":%d", config.InputPort)
}

// GetRandom returns the source of entropy for share masks and
// offline iterations.
func (config *Config) GetRandom() io.Reader {
	if config.Rand != nil {
		return config.Rand
	}
	return rand.Reader
}

// GetLogger returns the configured logger or a no-op logger.
func (config *Config) GetLogger() *zap.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	return zap.NewNop()
}
