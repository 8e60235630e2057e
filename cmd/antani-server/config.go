package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/log"
)

// Config specifies the file format of config files.
type Config struct {
	ServerAddr  string     `yaml:"addr"`
	MetricsAddr string     `yaml:"metrics-addr"`
	LogLevel    string     `yaml:"log-level"`
	TLSConfig   *TLSConfig `yaml:"tls"`
	tlsConfig   *tls.Config

	StoreConfig  *StoreConfig  `yaml:"store"`
	BallotConfig *BallotConfig `yaml:"ballot"`
}

// TLSConfig specifies the API server's TLS config. TLS on the server also
// requires a valid client certificate.
type TLSConfig struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	ClientCA string `yaml:"client-ca"` // CA for validating client certificates.
}

// StoreConfig specifies where the tree is stored.
type StoreConfig struct {
	Type string `yaml:"type"` // leveldb or pebble.
	Path string `yaml:"path"`
}

// BallotConfig specifies the ballot that the server accepts votes for. It is
// optional; without it, only the tree is served.
type BallotConfig struct {
	File       string   `yaml:"file"`
	KeyFile    string   `yaml:"key-file"` // Issuer key pair, as written by generate-keys.
	Candidates []string `yaml:"candidates"`
	issuer     *signing.KeyPair
}

func ReadConfig(filename string) (*Config, error) {
	// Read from file and parse.
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var parsed Config
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	// Check that all required fields are populated.
	if parsed.ServerAddr == "" {
		return nil, fmt.Errorf("field not provided: addr")
	} else if parsed.StoreConfig == nil {
		return nil, fmt.Errorf("field not provided: store")
	} else if parsed.StoreConfig.Path == "" {
		return nil, fmt.Errorf("field not provided: store.path")
	} else if parsed.BallotConfig != nil && parsed.BallotConfig.File == "" {
		return nil, fmt.Errorf("field not provided: ballot.file")
	} else if parsed.BallotConfig != nil && parsed.BallotConfig.KeyFile == "" {
		return nil, fmt.Errorf("field not provided: ballot.key-file")
	}
	if parsed.LogLevel == "" {
		parsed.LogLevel = log.LevelInfo
	}

	// Parse TLS config if necessary.
	if parsed.TLSConfig != nil {
		cert, err := tls.LoadX509KeyPair(parsed.TLSConfig.Cert, parsed.TLSConfig.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate/key: %v", err)
		}

		certPool := x509.NewCertPool()
		caCerts, err := os.ReadFile(parsed.TLSConfig.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client CA: %v", err)
		} else if ok := certPool.AppendCertsFromPEM(caCerts); !ok {
			return nil, fmt.Errorf("no client CA certificates successfully parsed from file")
		}

		parsed.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    certPool,
		}
	}

	// Load the ballot issuer's key pair.
	if parsed.BallotConfig != nil {
		parsed.BallotConfig.issuer, err = signing.ReadKeyPair(parsed.BallotConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load ballot key pair: %v", err)
		} else if _, err := parsed.BallotConfig.issuer.Secret(); err != nil {
			return nil, fmt.Errorf("failed to parse ballot key pair: %v", err)
		}
	}

	return &parsed, nil
}
