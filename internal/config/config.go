/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SHADE_STORAGE_SOCKET_PATH.
const EnvPrefix = "SHADE"

type StorageMode string

const (
	// StorageModeFile makes CLI commands open the database directly.
	StorageModeFile StorageMode = "file"
	// StorageModeSocket makes CLI commands go through the enrollment socket.
	StorageModeSocket StorageMode = "socket"
)

// Config is the whole shade configuration file.
type Config struct {
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	Server   ServerConfig  `mapstructure:"server" yaml:"server"`
	Proxy    ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

// StorageConfig locates the identity database and the enrollment socket.
type StorageConfig struct {
	Mode         StorageMode   `mapstructure:"mode" yaml:"mode"`
	DatabaseURL  string        `mapstructure:"database_url" yaml:"database_url"`
	SocketPath   string        `mapstructure:"socket_path" yaml:"socket_path"`
	MaxFrameSize uint32        `mapstructure:"max_frame_size" yaml:"max_frame_size"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"` // 0 disables
}

// ServerConfig captures the HTTP control API listener.
type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ProxyConfig captures the gatekeeper listener and its upstream.
type ProxyConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr       string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	UpstreamAddr     string        `mapstructure:"upstream_addr" yaml:"upstream_addr"`
	AdmissionTimeout time.Duration `mapstructure:"admission_timeout" yaml:"admission_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Mode:         StorageModeSocket,
			DatabaseURL:  "sqlite::memory:",
			SocketPath:   "/tmp/shade.sock",
			MaxFrameSize: 8 << 20,
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              3000,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Proxy: ProxyConfig{
			ListenAddr:       "0.0.0.0:4000",
			AdmissionTimeout: 5 * time.Second,
			DialTimeout:      5 * time.Second,
		},
	}
}

// Load reads the YAML file at path, applying SHADE_* environment overrides
// on top. A missing file is not an error: the defaults are returned with
// found set to false.
func Load(path string) (cfg Config, found bool, err error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found = true
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		found = false
	} else {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, false, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, false, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, found, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("storage.mode", string(d.Storage.Mode))
	v.SetDefault("storage.database_url", d.Storage.DatabaseURL)
	v.SetDefault("storage.socket_path", d.Storage.SocketPath)
	v.SetDefault("storage.max_frame_size", d.Storage.MaxFrameSize)
	v.SetDefault("storage.idle_timeout", d.Storage.IdleTimeout)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.trust_proxy_headers", d.Server.TrustProxyHeaders)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("proxy.enabled", d.Proxy.Enabled)
	v.SetDefault("proxy.listen_addr", d.Proxy.ListenAddr)
	v.SetDefault("proxy.upstream_addr", d.Proxy.UpstreamAddr)
	v.SetDefault("proxy.admission_timeout", d.Proxy.AdmissionTimeout)
	v.SetDefault("proxy.dial_timeout", d.Proxy.DialTimeout)
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	var errs []error

	if c.Storage.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("storage.database_url is required for %s mode", c.Storage.Mode))
	}
	switch c.Storage.Mode {
	case StorageModeFile:
	case StorageModeSocket:
		if c.Storage.SocketPath == "" {
			errs = append(errs, errors.New("storage.socket_path is required for socket mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.mode must be %q or %q, got %q", StorageModeFile, StorageModeSocket, c.Storage.Mode))
	}
	if c.Storage.MaxFrameSize == 0 {
		errs = append(errs, errors.New("storage.max_frame_size must be positive"))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	if c.Proxy.Enabled {
		if c.Proxy.ListenAddr == "" {
			errs = append(errs, errors.New("proxy.listen_addr is required when the proxy is enabled"))
		}
		if c.Proxy.UpstreamAddr == "" {
			errs = append(errs, errors.New("proxy.upstream_addr is required when the proxy is enabled"))
		}
	}

	return errors.Join(errs...)
}
