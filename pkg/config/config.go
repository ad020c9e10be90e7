package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vitalvas/gounwrap/pkg/crypto"
	"github.com/vitalvas/gounwrap/pkg/frame"
	"github.com/vitalvas/gounwrap/pkg/policy"
	"github.com/vitalvas/gounwrap/pkg/unwrap"
)

// Config represents the complete unwrapper configuration
type Config struct {
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Frame   FrameConfig   `yaml:"frame" toml:"frame"`
	Input   InputConfig   `yaml:"input" toml:"input"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// AuthConfig contains the authenticator settings
type AuthConfig struct {
	Key              string `yaml:"key" toml:"key"` // hex
	Algorithm        string `yaml:"algorithm" toml:"algorithm"`
	TagLength        int    `yaml:"tag_length" toml:"tag_length"`
	Authenticate     bool   `yaml:"authenticate" toml:"authenticate"`
	ReplayProtection bool   `yaml:"replay_protection" toml:"replay_protection"`
	AllowedSenders   []int  `yaml:"allowed_senders" toml:"allowed_senders"`
}

// FrameConfig contains the payload geometry
type FrameConfig struct {
	VectorLength     int `yaml:"melvec_len" toml:"melvec_len"`
	VectorsPerPacket int `yaml:"num_melvecs" toml:"num_melvecs"`
	BytesPerSample   int `yaml:"bytes_per_sample" toml:"bytes_per_sample"`
}

// InputConfig selects where frames are read from. SerialPort takes
// precedence over File, then UDPAddress, then the ZeroMQ TCPAddress.
type InputConfig struct {
	File       string `yaml:"file" toml:"file"` // "-" for stdin
	SerialPort string `yaml:"serial_port" toml:"serial_port"`
	Baud       int    `yaml:"baud" toml:"baud"`
	TCPAddress string `yaml:"tcp_address" toml:"tcp_address"` // ZeroMQ publisher
	UDPAddress string `yaml:"udp_address" toml:"udp_address"` // empty disables the UDP source
}

// OutputConfig contains result rendering settings
type OutputConfig struct {
	Path  string `yaml:"path" toml:"path"` // "-" for stdout
	Quiet bool   `yaml:"quiet" toml:"quiet"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Address string `yaml:"address" toml:"address"` // empty disables the endpoint
}

// Default returns the configuration matching the MCU firmware defaults
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			Key:              strings.Repeat("0", 2*crypto.DefaultKeyLength),
			Algorithm:        string(crypto.DefaultAlgorithm),
			TagLength:        frame.DefaultTagLength,
			Authenticate:     true,
			ReplayProtection: true,
			AllowedSenders:   []int{0},
		},
		Frame: FrameConfig{
			VectorLength:     20,
			VectorsPerPacket: 10,
			BytesPerSample:   frame.BytesPerSample,
		},
		Input: InputConfig{
			Baud:       115200,
			TCPAddress: "tcp://127.0.0.1:10000",
		},
		Output: OutputConfig{
			Path: "-",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AUTH_KEY"); ok {
		c.Auth.Key = v
	}
	if v, ok := lookup("ALLOWED_SENDERS"); ok {
		ids, err := policy.ParseSenders(v)
		if err != nil {
			return fmt.Errorf("ALLOWED_SENDERS: %w", err)
		}
		c.Auth.AllowedSenders = make([]int, len(ids))
		for i, id := range ids {
			c.Auth.AllowedSenders[i] = int(id)
		}
	}
	if v, ok := lookup("MELVEC_LEN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MELVEC_LEN: %w", err)
		}
		c.Frame.VectorLength = n
	}
	if v, ok := lookup("NUM_MELVECS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NUM_MELVECS: %w", err)
		}
		c.Frame.VectorsPerPacket = n
	}
	if v, ok := lookup("SERIAL_PORT"); ok {
		c.Input.SerialPort = v
	}
	if v, ok := lookup("TCP_ADDRESS"); ok {
		c.Input.TCPAddress = v
	}
	if v, ok := lookup("UDP_ADDRESS"); ok {
		c.Input.UDPAddress = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := c.Frame.Validate(); err != nil {
		return fmt.Errorf("frame config: %w", err)
	}
	if c.Input.Baud <= 0 {
		return fmt.Errorf("input config: baud must be positive, got %d", c.Input.Baud)
	}
	if c.Input.SerialPort == "" && c.Input.File == "" && c.Input.UDPAddress == "" && c.Input.TCPAddress == "" {
		return fmt.Errorf("input config: no source, set tcp_address, udp_address, file or serial_port")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging config: format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Validate validates authentication configuration
func (a *AuthConfig) Validate() error {
	if _, err := crypto.ParseKey(a.Key); err != nil {
		return fmt.Errorf("key: %w", err)
	}

	alg := crypto.Algorithm(a.Algorithm)
	if !alg.IsValid() {
		return fmt.Errorf("algorithm %q is not one of %v", a.Algorithm, crypto.Algorithms())
	}

	if a.TagLength < crypto.MinTagLength || a.TagLength > alg.MaxTagLength() {
		return fmt.Errorf("tag_length must be between %d and %d for %s, got %d",
			crypto.MinTagLength, alg.MaxTagLength(), alg, a.TagLength)
	}

	for _, id := range a.AllowedSenders {
		if id < 0 || id > 255 {
			return fmt.Errorf("allowed sender %d is outside 0..255", id)
		}
	}

	return nil
}

// Validate validates the payload geometry
func (f *FrameConfig) Validate() error {
	if f.VectorLength < 0 {
		return fmt.Errorf("melvec_len must not be negative, got %d", f.VectorLength)
	}
	if f.VectorsPerPacket < 0 {
		return fmt.Errorf("num_melvecs must not be negative, got %d", f.VectorsPerPacket)
	}
	if f.BytesPerSample < 1 {
		return fmt.Errorf("bytes_per_sample must be at least 1, got %d", f.BytesPerSample)
	}
	return nil
}

// Key decodes the configured key
func (c *Config) Key() (crypto.Key, error) {
	return crypto.ParseKey(c.Auth.Key)
}

// PayloadLength returns the payload size derived from the frame geometry
func (c *Config) PayloadLength() int {
	return frame.PayloadLength(c.Frame.VectorLength, c.Frame.VectorsPerPacket, c.Frame.BytesPerSample)
}

// AllowedSenders returns the allow-list as sender identifiers
func (c *Config) AllowedSenders() []uint8 {
	ids := make([]uint8, 0, len(c.Auth.AllowedSenders))
	for _, id := range c.Auth.AllowedSenders {
		ids = append(ids, uint8(id))
	}
	return ids
}

// NewAuthenticator builds an authenticator from the configuration.
// extra options are applied after the configured ones.
func (c *Config) NewAuthenticator(extra ...unwrap.Option) (*unwrap.Authenticator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	key, err := c.Key()
	if err != nil {
		return nil, err
	}

	opts := []unwrap.Option{
		unwrap.WithAlgorithm(crypto.Algorithm(c.Auth.Algorithm)),
		unwrap.WithTagLength(c.Auth.TagLength),
		unwrap.WithPayloadLength(c.PayloadLength()),
		unwrap.WithAllowedSenders(c.AllowedSenders()...),
	}
	if !c.Auth.Authenticate {
		opts = append(opts, unwrap.WithoutAuthentication())
	}
	if !c.Auth.ReplayProtection {
		opts = append(opts, unwrap.WithoutReplayProtection())
	}

	return unwrap.New(key, append(opts, extra...)...)
}
