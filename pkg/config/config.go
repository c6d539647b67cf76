package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/directory"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ALIASSYNC"

type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	LDAP      LDAPConfig      `yaml:"ldap" json:"ldap"`
	Mail      MailConfig      `yaml:"mail" json:"mail"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
	Audit     AuditConfig     `yaml:"audit" json:"audit"`
}

type ServerConfig struct {
	Address string `yaml:"address" json:"address" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" split_words:"true"`
	Format string `yaml:"format" json:"format" split_words:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" split_words:"true"`
	Path    string `yaml:"path" json:"path" split_words:"true"`
}

type LDAPConfig struct {
	Driver             string           `yaml:"driver" json:"driver" split_words:"true"`
	Server             string           `yaml:"server" json:"server" split_words:"true"`
	BindDN             string           `yaml:"bindDN" json:"bindDN" split_words:"true"`
	BindPassword       string           `yaml:"bindPassword" json:"-" split_words:"true"`
	BaseDN             string           `yaml:"baseDN" json:"baseDN" split_words:"true"`
	Filter             string           `yaml:"filter" json:"filter" split_words:"true"`
	StartTLS           bool             `yaml:"startTLS" json:"startTLS" split_words:"true"`
	InsecureSkipVerify bool             `yaml:"insecureSkipVerify" json:"insecureSkipVerify" split_words:"true"`
	CAFile             string           `yaml:"caFile" json:"caFile" split_words:"true"`
	Timeout            time.Duration    `yaml:"timeout" json:"timeout" split_words:"true"`
	Attributes         AttributesConfig `yaml:"attributes" json:"attributes"`
}

// AttributesConfig names the directory attributes read for each identity
// field. An empty name leaves the field at its default.
type AttributesConfig struct {
	Mail         string `yaml:"mail" json:"mail" split_words:"true"`
	Name         string `yaml:"name" json:"name" split_words:"true"`
	Organization string `yaml:"organization" json:"organization" split_words:"true"`
	ReplyTo      string `yaml:"replyTo" json:"replyTo" split_words:"true"`
	Bcc          string `yaml:"bcc" json:"bcc" split_words:"true"`
	Signature    string `yaml:"signature" json:"signature" split_words:"true"`
}

type MailConfig struct {
	Domain                string `yaml:"domain" json:"domain" split_words:"true"`
	ImpersonateSeparator  string `yaml:"dovecotImpersonateSeparator" json:"dovecotImpersonateSeparator" split_words:"true"`
	RemoveDomain          bool   `yaml:"removeDomain" json:"removeDomain" split_words:"true"`
	SanitizeHTMLSignature bool   `yaml:"sanitizeHtmlSignature" json:"sanitizeHtmlSignature" split_words:"true"`
}

type StoreConfig struct {
	Backend string     `yaml:"backend" json:"backend" split_words:"true"`
	SQL     SQLConfig  `yaml:"sql" json:"sql"`
	Etcd    EtcdConfig `yaml:"etcd" json:"etcd"`
}

type SQLConfig struct {
	Driver       string `yaml:"driver" json:"driver" split_words:"true"`
	DSN          string `yaml:"dsn" json:"-" split_words:"true"`
	TablePrefix  string `yaml:"tablePrefix" json:"tablePrefix" split_words:"true"`
	MailHost     string `yaml:"mailHost" json:"mailHost" split_words:"true"`
	MaxOpenConns int    `yaml:"maxOpenConns" json:"maxOpenConns" split_words:"true"`
	MaxIdleConns int    `yaml:"maxIdleConns" json:"maxIdleConns" split_words:"true"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints" json:"endpoints" split_words:"true"`
	DialTimeout time.Duration `yaml:"dialTimeout" json:"dialTimeout" split_words:"true"`
	Prefix      string        `yaml:"prefix" json:"prefix" split_words:"true"`
}

type ReconcileConfig struct {
	Concurrency int  `yaml:"concurrency" json:"concurrency" split_words:"true"`
	DryRun      bool `yaml:"dryRun" json:"dryRun" split_words:"true"`
}

// AuditConfig bounds the in-memory audit trail served by the daemon.
type AuditConfig struct {
	MaxEntries int `yaml:"maxEntries" json:"maxEntries" split_words:"true"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		LDAP: LDAPConfig{
			Driver:  "ldap",
			Server:  "ldap://localhost:389",
			Filter:  "(uid=%s)",
			Timeout: 10 * time.Second,
			Attributes: AttributesConfig{
				Mail:         "mail",
				Name:         "cn",
				Organization: "o",
			},
		},
		Store: StoreConfig{
			Backend: "sql",
			SQL: SQLConfig{
				Driver:       "mysql",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
			Etcd: EtcdConfig{
				Endpoints:   []string{"http://localhost:2379"},
				DialTimeout: 5 * time.Second,
				Prefix:      "/aliassync",
			},
		},
		Reconcile: ReconcileConfig{
			Concurrency: 1,
		},
		Audit: AuditConfig{
			MaxEntries: 10000,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and then applies
// ALIASSYNC_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.LDAP.Server == "" {
		errs = append(errs, errors.New("ldap.server is required"))
	}
	if c.LDAP.BaseDN == "" {
		errs = append(errs, errors.New("ldap.baseDN is required"))
	}
	if err := directory.ValidateFilter(c.LDAP.Filter); err != nil {
		errs = append(errs, fmt.Errorf("ldap.filter: %w", err))
	}
	if c.LDAP.Attributes.Mail == "" {
		errs = append(errs, errors.New("ldap.attributes.mail is required"))
	}

	switch c.Store.Backend {
	case "sql":
		if c.Store.SQL.DSN == "" {
			errs = append(errs, errors.New("store.sql.dsn is required"))
		}
	case "etcd":
		if len(c.Store.Etcd.Endpoints) == 0 {
			errs = append(errs, errors.New("store.etcd.endpoints is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not supported", c.Store.Backend))
	}

	if c.Reconcile.Concurrency < 1 {
		errs = append(errs, errors.New("reconcile.concurrency must be at least 1"))
	}
	if c.Audit.MaxEntries < 1 {
		errs = append(errs, errors.New("audit.maxEntries must be at least 1"))
	}

	return errors.Join(errs...)
}

// DirectoryOptions converts the ldap section for the directory driver.
func (c *Config) DirectoryOptions() directory.Options {
	return directory.Options{
		URL:                c.LDAP.Server,
		BindDN:             c.LDAP.BindDN,
		BindPassword:       c.LDAP.BindPassword,
		StartTLS:           c.LDAP.StartTLS,
		InsecureSkipVerify: c.LDAP.InsecureSkipVerify,
		CAFile:             c.LDAP.CAFile,
		Timeout:            c.LDAP.Timeout,
	}
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.LDAP.BindPassword != "" {
		out.LDAP.BindPassword = "********"
	}
	if out.Store.SQL.DSN != "" {
		out.Store.SQL.DSN = "********"
	}
	return &out
}
