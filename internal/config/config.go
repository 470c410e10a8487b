// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Client Client `yaml:"client"`
	Store  Store  `yaml:"store"`
}

type Client struct {
	Environment string              `yaml:"environment" default:"PRE"`
	ClientID    commoncfg.SourceRef `yaml:"clientID"`
	RedirectURI string              `yaml:"redirectURI"`

	// Issuer overrides the environment issuer, for self-hosted setups.
	Issuer string `yaml:"issuer"`
}

// Store selects where sessions are persisted. The memory kind keeps them for
// the process lifetime only.
type Store struct {
	Kind string `yaml:"kind" default:"memory"`

	ValKey   ValKey   `yaml:"valkey"`
	Database Database `yaml:"database"`
}

const (
	StoreKindMemory   = "memory"
	StoreKindValKey   = "valkey"
	StoreKindPostgres = "postgres"
)

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"account-sessions"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

// ConnString resolves the credential references and assembles a pgx DSN.
func (d Database) ConnString() (string, error) {
	host, err := commoncfg.LoadValueFromSourceRef(d.Host)
	if err != nil {
		return "", fmt.Errorf("resolving database host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(d.User)
	if err != nil {
		return "", fmt.Errorf("resolving database user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(d.Password)
	if err != nil {
		return "", fmt.Errorf("resolving database password: %w", err)
	}

	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s",
		host, d.Port, d.Name, user, string(password)), nil
}
