// Package config loads the proxy's configuration from command-line flags
// with an optional YAML file overlay, in the teacher's flag+yaml main
// pattern.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// ConfigDuration parses a Go-style duration string ("30s", "1h") out of
// YAML, the way the teacher's own ConfigDuration does.
type ConfigDuration struct {
	time.Duration
}

// UnmarshalYAML parses a golang style duration string into a time.Duration.
func (d *ConfigDuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Configuration holds every tunable of the proxy (spec §6).
type Configuration struct {
	BindHost string `yaml:"bind-host"`
	BindPort int    `yaml:"bind-port"`

	Store struct {
		// Backend selects the cache store adapter: "redis" or "disk".
		Backend string
		// Endpoint is a redis address when Backend is "redis" (host:port,
		// or a unix socket path when it starts with "/"), or a directory
		// path when Backend is "disk".
		Endpoint string
	}

	KeyPrefix string `yaml:"key-prefix"`
	Verbose   bool

	Syslog struct {
		Network string
		Addr    string
	}

	MetricsAddr string `yaml:"metrics-addr"`

	Fetcher struct {
		Timeout ConfigDuration
		Proxies []string
	}

	WriteQueueCapacity int `yaml:"write-queue-capacity"`
}

func defaults() Configuration {
	var c Configuration
	c.BindHost = "127.0.0.1"
	c.BindPort = 8888
	c.Store.Backend = "redis"
	c.Store.Endpoint = "/var/run/ocsp-proxy/store.sock"
	c.KeyPrefix = "ocspxy_"
	c.MetricsAddr = "127.0.0.1:8889"
	c.Fetcher.Timeout = ConfigDuration{10 * time.Second}
	c.WriteQueueCapacity = 0
	return c
}

// Load parses args (typically os.Args[1:]) for flags, starts from the
// built-in defaults, overlays the YAML file named by --config if any, and
// then applies on top every flag whose value is not the zero value, so a
// flag wins over the YAML file. A flag left at, or explicitly set to, its
// zero value ("", 0, false) does not override the defaults or the YAML.
func Load(args []string) (*Configuration, error) {
	fs := pflag.NewFlagSet("ocsp-proxy", pflag.ContinueOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	bindHost := fs.String("bind-host", "", "listen address")
	bindPort := fs.Int("bind-port", 0, "listen port")
	storeBackend := fs.String("store-backend", "", `cache store backend ("redis" or "disk")`)
	storeEndpoint := fs.String("store-endpoint", "", "cache store endpoint (redis address or disk directory)")
	keyPrefix := fs.String("key-prefix", "", "cache key prefix")
	verbose := fs.Bool("verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	conf := defaults()

	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", *configPath, err)
		}
		if err := yaml.Unmarshal(raw, &conf); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", *configPath, err)
		}
	}

	if *bindHost != "" {
		conf.BindHost = *bindHost
	}
	if *bindPort != 0 {
		conf.BindPort = *bindPort
	}
	if *storeBackend != "" {
		conf.Store.Backend = *storeBackend
	}
	if *storeEndpoint != "" {
		conf.Store.Endpoint = *storeEndpoint
	}
	if *keyPrefix != "" {
		conf.KeyPrefix = *keyPrefix
	}
	if *verbose {
		conf.Verbose = true
	}

	return &conf, nil
}
