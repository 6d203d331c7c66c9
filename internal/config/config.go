package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Backends
const (
	Glacier  = "glacier"
	Emulator = "emulator"
)

// Filename is the name of the configuration file looked up in the home and working directories.
const Filename = ".aletsch.yml"

type (
	// A Config holds the settings of aletsch.
	Config struct {
		DatabasePath string         `yaml:"database_path"`
		Backend      string         `yaml:"backend"`
		Verbose      bool           `yaml:"verbose"`
		Glacier      GlacierConfig  `yaml:"glacier"`
		Emulator     EmulatorConfig `yaml:"emulator"`
	}

	// GlacierConfig holds the AWS Glacier settings.
	GlacierConfig struct {
		Region          string `yaml:"region"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		Endpoint        string `yaml:"endpoint"`
		AccountID       string `yaml:"account_id"`
	}

	// EmulatorConfig holds both the emulator client and server settings.
	EmulatorConfig struct {
		URL             string        `yaml:"url"`
		AccessKey       string        `yaml:"access_key"`
		Timeout         time.Duration `yaml:"timeout"`
		Binding         string        `yaml:"binding"`
		Port            string        `yaml:"port"`
		StoragePath     string        `yaml:"storage_path"`
		DatabasePath    string        `yaml:"database_path"`
		CompletionDelay time.Duration `yaml:"completion_delay"`
		Expiration      time.Duration `yaml:"expiration"`
		Sweep           string        `yaml:"sweep"`
	}
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DatabasePath: "aletsch.db",
		Backend:      Glacier,
		Emulator: EmulatorConfig{
			URL:             "http://localhost:5000",
			AccessKey:       "emulator",
			Timeout:         30 * time.Second,
			Binding:         "0.0.0.0",
			Port:            "5000",
			StoragePath:     "storage",
			DatabasePath:    "emulator.db",
			CompletionDelay: 4 * time.Hour,
			Expiration:      24 * time.Hour,
			Sweep:           "@every 1m",
		},
	}
}

// Load reads the configuration files in the home directory, then the working directory, then the given filename.
// The later files override the former ones and environment variables override them all.
// The returned configuration is not validated.
func Load(filename string) (*Config, error) {
	c := Default()

	var files []string
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, Filename))
	}
	files = append(files, Filename)

	for _, file := range files {
		if err := c.merge(file, true); err != nil {
			return nil, err
		}
	}
	if filename != "" {
		if err := c.merge(filename, false); err != nil {
			return nil, err
		}
	}

	c.Environ(os.LookupEnv)
	c.Backend = strings.ToLower(c.Backend)
	return c, nil
}

func (c *Config) merge(filename string, optional bool) error {
	payload, err := os.ReadFile(filename)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "could not read configuration")
	}

	return errors.Wrapf(yaml.Unmarshal(payload, c), "could not parse %s", filename)
}

// Environ overrides the configuration with the environment variables.
func (c *Config) Environ(lookup func(string) (string, bool)) {
	for env, field := range map[string]*string{
		"ALETSCH_DATABASE_PATH":          &c.DatabasePath,
		"ALETSCH_BACKEND":                &c.Backend,
		"AWS_REGION":                     &c.Glacier.Region,
		"AWS_ACCESS_KEY_ID":              &c.Glacier.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY":          &c.Glacier.SecretAccessKey,
		"ALETSCH_ENDPOINT":               &c.Glacier.Endpoint,
		"ALETSCH_EMULATOR_URL":           &c.Emulator.URL,
		"ALETSCH_EMULATOR_ACCESS_KEY":    &c.Emulator.AccessKey,
		"ALETSCH_EMULATOR_STORAGE_PATH":  &c.Emulator.StoragePath,
		"ALETSCH_EMULATOR_DATABASE_PATH": &c.Emulator.DatabasePath,
	} {
		if v, ok := lookup(env); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks the consistency of the configuration.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database_path must be set")
	}

	switch c.Backend {
	case Glacier:
		if c.Glacier.Region == "" {
			return errors.New("glacier: region must be set")
		}
		if (c.Glacier.AccessKeyID == "") != (c.Glacier.SecretAccessKey == "") {
			return errors.New("glacier: access_key_id and secret_access_key must be set together")
		}
	case Emulator:
		if c.Emulator.URL == "" {
			return errors.New("emulator: url must be set")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// GlacierGateway returns the settings of the Glacier gateway.
func (c *Config) GlacierGateway() gateway.GlacierConfig {
	return gateway.GlacierConfig{
		Region:          c.Glacier.Region,
		AccessKeyID:     c.Glacier.AccessKeyID,
		SecretAccessKey: c.Glacier.SecretAccessKey,
		Endpoint:        c.Glacier.Endpoint,
		AccountID:       c.Glacier.AccountID,
	}
}

// EmulatorGateway returns the settings of the emulator gateway.
func (c *Config) EmulatorGateway(token string) gateway.EmulatorConfig {
	return gateway.EmulatorConfig{
		URL:     c.Emulator.URL,
		Token:   token,
		Timeout: c.Emulator.Timeout,
	}
}
