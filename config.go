package wsrpc

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/igoforth/ws-rpc/codec"
)

// Config is the YAML-loadable subset of peer settings: the codec the
// connection speaks and the default deadlines. Durations use Go syntax
// ("30s", "2m").
//
//	codec: msgpack
//	default_timeout: 10s
//	durable_timeout: 5m
type Config struct {
	Codec          string `yaml:"codec"`
	DefaultTimeout string `yaml:"default_timeout"`
	DurableTimeout string `yaml:"durable_timeout"`
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Codec != "" {
		if _, err := codec.ByName(cfg.Codec); err != nil {
			return nil, err
		}
	}
	for _, d := range []string{cfg.DefaultTimeout, cfg.DurableTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return nil, fmt.Errorf("parsing timeout %q: %w", d, err)
		}
	}
	return &cfg, nil
}

// Protocol builds the protocol the config names; an empty codec means JSON.
func (c *Config) Protocol() (*Protocol, error) {
	if c.Codec == "" {
		return NewJSONProtocol(), nil
	}
	cd, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	return NewProtocol(cd), nil
}

// PeerOptions converts the config into options for NewPeer.
func (c *Config) PeerOptions() (*PeerOptions, error) {
	proto, err := c.Protocol()
	if err != nil {
		return nil, err
	}
	opts := &PeerOptions{Protocol: proto}
	if c.DefaultTimeout != "" {
		d, err := time.ParseDuration(c.DefaultTimeout)
		if err != nil {
			return nil, err
		}
		opts.DefaultTimeout = d
	}
	return opts, nil
}

// DurablePeerOptions converts the config into options for NewDurablePeer.
func (c *Config) DurablePeerOptions() (*DurablePeerOptions, error) {
	peerOpts, err := c.PeerOptions()
	if err != nil {
		return nil, err
	}
	opts := &DurablePeerOptions{PeerOptions: *peerOpts}
	if c.DurableTimeout != "" {
		d, err := time.ParseDuration(c.DurableTimeout)
		if err != nil {
			return nil, err
		}
		opts.DurableTimeout = d
	}
	return opts, nil
}
