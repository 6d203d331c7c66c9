package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/aletsch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AWS_REGION", "")
	t.Setenv("ALETSCH_BACKEND", "")
	t.Setenv("ALETSCH_DATABASE_PATH", "")
	t.Setenv("ALETSCH_EMULATOR_URL", "")

	filename := filepath.Join(t.TempDir(), "aletsch.yml")
	require.NoError(t, os.WriteFile(filename, []byte(`
database_path: /tmp/aletsch.db
backend: Emulator
emulator:
  url: http://emulator:5000
  completion_delay: 10m
`), 0644))

	c, err := config.Load(filename)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/aletsch.db", c.DatabasePath)
	assert.Equal(t, config.Emulator, c.Backend)
	assert.Equal(t, "http://emulator:5000", c.Emulator.URL)
	assert.Equal(t, 10*time.Minute, c.Emulator.CompletionDelay)
	assert.Equal(t, 24*time.Hour, c.Emulator.Expiration, "defaults are kept")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadEnviron(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ALETSCH_BACKEND", "glacier")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	t.Setenv("ALETSCH_DATABASE_PATH", "env.db")

	c, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "env.db", c.DatabasePath)

	g := c.GlacierGateway()
	assert.Equal(t, "eu-west-1", g.Region)
	assert.Equal(t, "AKID", g.AccessKeyID)
	assert.Equal(t, "SECRET", g.SecretAccessKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		valid  bool
	}{
		{
			name:   "glacier without region",
			mutate: func(c *config.Config) {},
		},
		{
			name: "glacier with region",
			mutate: func(c *config.Config) {
				c.Glacier.Region = "us-east-1"
			},
			valid: true,
		},
		{
			name: "glacier with partial credentials",
			mutate: func(c *config.Config) {
				c.Glacier.Region = "us-east-1"
				c.Glacier.AccessKeyID = "AKID"
			},
		},
		{
			name: "emulator",
			mutate: func(c *config.Config) {
				c.Backend = config.Emulator
			},
			valid: true,
		},
		{
			name: "unknown backend",
			mutate: func(c *config.Config) {
				c.Backend = "tape"
			},
		},
		{
			name: "without database",
			mutate: func(c *config.Config) {
				c.Backend = config.Emulator
				c.DatabasePath = ""
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := config.Default()
			test.mutate(c)

			err := c.Validate()
			if test.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
