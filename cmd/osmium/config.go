package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultConfig = `# Osmium Demo Server Configuration File

server:
  port: 8080
  # Refuse "Upgrade: h2c" requests on cleartext connections.
  disallow_h2_upgrade: false
  # Refuse cleartext connections starting directly with the HTTP/2 preface.
  disallow_h2_prior_knowledge: false
  # Options: none, zstd, gzip, deflate
  encoding: none

tls:
  enabled: false
  # Options: self-signed, acme
  certs: self-signed
  # The domain to obtain an ACME certificate for (certs: acme only).
  domain: ""

logging:
  access_log: access.log
  error_log: error.log
`

var config *Config

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	TLS     TLSConfig     `yaml:"tls"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port                     int    `yaml:"port"`
	DisallowH2Upgrade        bool   `yaml:"disallow_h2_upgrade"`
	DisallowH2PriorKnowledge bool   `yaml:"disallow_h2_prior_knowledge"`
	Encoding                 string `yaml:"encoding"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Certs   string `yaml:"certs"`
	Domain  string `yaml:"domain"`
}

type LoggingConfig struct {
	AccessLog string `yaml:"access_log"`
	ErrorLog  string `yaml:"error_log"`
}

func GetConfigPath() string {
	return "config.yaml"
}

func CreateDefaultConfig() error {
	path := GetConfigPath()
	if _, err := os.Stat(path); err == nil {
		// Config file already exists, do nothing
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create default config file: %v", err)
	}
	defer f.Close()
	if _, err = f.WriteString(DefaultConfig); err != nil {
		return fmt.Errorf("failed to write default config file: %v", err)
	}
	return nil
}

func GetConfig() (Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := CreateDefaultConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to create default config file: %v", err)
			}
			return GetConfig()
		}
		return Config{}, fmt.Errorf("failed to read config file: %v", err)
	}

	if err = yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %v", err)
	}
	return *config, nil
}
