// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Configuration. A YAML file is read first, then environment variables prefixed with WEBSERV_ override its globals.

package hemi

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "WEBSERV"

// Config is the whole configuration.
type Config struct {
	LogLevel          string         `yaml:"logLevel" envconfig:"LOG_LEVEL"`
	LogFormat         string         `yaml:"logFormat" envconfig:"LOG_FORMAT"`
	LogFile           string         `yaml:"logFile" envconfig:"LOG_FILE"`
	Timeout           int64          `yaml:"timeout" envconfig:"TIMEOUT"` // in milliseconds. 0 means no timeout
	ClientMaxBodySize int64          `yaml:"clientMaxBodySize" envconfig:"CLIENT_MAX_BODY_SIZE"`
	UploadStore       string         `yaml:"uploadStore" envconfig:"UPLOAD_STORE"`
	TempDir           string         `yaml:"tempDir" envconfig:"TEMP_DIR"`
	TickInterval      time.Duration  `yaml:"tickInterval" envconfig:"TICK_INTERVAL"`
	MetricsAddr       string         `yaml:"metricsAddr" envconfig:"METRICS_ADDR"`
	Servers           []ServerConfig `yaml:"servers" ignored:"true"`
}

// ServerConfig is a server block.
type ServerConfig struct {
	Listen      string           `yaml:"listen"` // "8080" or "127.0.0.1:8080"
	ServerNames []string         `yaml:"serverNames"`
	ErrorPages  map[int16]string `yaml:"errorPages"` // status -> file
	Locations   []LocationConfig `yaml:"locations"`
}

// LocationConfig is a location block inside a server block.
type LocationConfig struct {
	Path        string            `yaml:"path"`
	Root        string            `yaml:"root"`
	Index       string            `yaml:"index"`
	Methods     []string          `yaml:"methods"`
	CGI         map[string]string `yaml:"cgi"` // ".py" -> "/usr/bin/python3"
	UploadStore string            `yaml:"uploadStore"`
}

// LoadConfig reads the file at path and applies environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := ParseConfig(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// ParseConfig is LoadConfig without the file.
func ParseConfig(text []byte) (*Config, error) {
	config := new(Config)
	decoder := yaml.NewDecoder(bytes.NewReader(text))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := config.check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return config, nil
}

func (c *Config) TimeoutDuration() time.Duration { return time.Duration(c.Timeout) * time.Millisecond }

func (c *Config) check() error {
	var result *multierror.Error
	result = multierror.Append(result, configureProp("logLevel", &c.LogLevel, func(value string) error {
		switch strings.ToLower(value) {
		case "trace", "debug", "info", "warn", "error", "off":
			return nil
		}
		return errors.New("must be one of trace, debug, info, warn, error, off")
	}, "info"))
	result = multierror.Append(result, configureProp("logFormat", &c.LogFormat, func(value string) error {
		if value == "text" || value == "json" {
			return nil
		}
		return errors.New("must be text or json")
	}, "text"))
	result = multierror.Append(result, configureProp("timeout", &c.Timeout, func(value int64) error {
		if value >= 0 {
			return nil
		}
		return errors.New("must not be negative")
	}, 0))
	result = multierror.Append(result, configureProp("clientMaxBodySize", &c.ClientMaxBodySize, func(value int64) error {
		if value > 0 {
			return nil
		}
		return errors.New("must be positive")
	}, 1*M))
	result = multierror.Append(result, configureProp("tempDir", &c.TempDir, nil, TmpDir()))
	result = multierror.Append(result, configureProp("tickInterval", &c.TickInterval, func(value time.Duration) error {
		if value > 0 {
			return nil
		}
		return errors.New("must be positive")
	}, 10*time.Millisecond))

	if len(c.Servers) == 0 {
		result = multierror.Append(result, errors.New("at least one server is required"))
	}
	for i := range c.Servers {
		if err := c.Servers[i].check(); err != nil {
			result = multierror.Append(result, fmt.Errorf("servers[%d]: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

func (c *ServerConfig) check() error {
	var result *multierror.Error
	if _, _, err := c.HostPort(); err != nil {
		result = multierror.Append(result, err)
	}
	for status := range c.ErrorPages {
		if status < 400 || status > 599 {
			result = multierror.Append(result, fmt.Errorf("errorPages: %d is not an error status", status))
		}
	}
	if len(c.Locations) == 0 {
		result = multierror.Append(result, errors.New("at least one location is required"))
	}
	for i := range c.Locations {
		if err := c.Locations[i].check(); err != nil {
			result = multierror.Append(result, fmt.Errorf("locations[%d]: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

// HostPort splits listen into an address and a port.
func (c *ServerConfig) HostPort() (host string, port int, err error) {
	listen := c.Listen
	if i := strings.LastIndexByte(listen, ':'); i != -1 {
		host, listen = listen[:i], listen[i+1:]
	}
	port, err = strconv.Atoi(listen)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("listen: bad port in %q", c.Listen)
	}
	return host, port, nil
}

func (c *LocationConfig) check() error {
	var result *multierror.Error
	result = multierror.Append(result, configureProp("path", &c.Path, func(value string) error {
		if strings.HasPrefix(value, "/") {
			return nil
		}
		return errors.New("must start with /")
	}, "/"))
	if c.Root == "" {
		result = multierror.Append(result, errors.New("root is required"))
	}
	result = multierror.Append(result, configureProp("index", &c.Index, func(value string) error {
		if strings.ContainsRune(value, '/') {
			return errors.New("must be a file name")
		}
		return nil
	}, "index.html"))
	result = multierror.Append(result, configureProp("methods", &c.Methods, func(value []string) error {
		if _, ok := methodCodesOf(value); !ok {
			return fmt.Errorf("unknown method in %v", value)
		}
		return nil
	}, []string{"GET", "HEAD"}))
	for ext := range c.CGI {
		if len(ext) < 2 || ext[0] != '.' {
			result = multierror.Append(result, fmt.Errorf("cgi: bad extension %q", ext))
		}
	}
	return result.ErrorOrNil()
}

// configureProp assigns defaultValue to an unset prop, or checks a set one.
func configureProp[T any](name string, prop *T, check func(value T) error, defaultValue T) error {
	if _configureUnset(*prop) {
		*prop = defaultValue
		return nil
	}
	if check != nil {
		if err := check(*prop); err != nil {
			return fmt.Errorf("%s is error: %w", name, err)
		}
	}
	return nil
}

func _configureUnset(value any) bool {
	switch v := value.(type) {
	case string:
		return v == ""
	case int64:
		return v == 0
	case time.Duration:
		return v == 0
	case []string:
		return len(v) == 0
	}
	return false
}
