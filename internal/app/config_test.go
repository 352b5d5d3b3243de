package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, args, err := LoadConfig([]string{"cart", "add", "3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cart", "add", "3"}, args)
	assert.Equal(t, "http://localhost:3000/api", cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.Zero(t, cfg.Throttle.Max)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("STOREFRONT_API_URL", "https://shop.example.com/api")
	t.Setenv("STOREFRONT_STORAGE_DRIVER", "memory")

	cfg, args, err := LoadConfig([]string{"whoami"})
	require.NoError(t, err)
	assert.Equal(t, []string{"whoami"}, args)
	assert.Equal(t, "https://shop.example.com/api", cfg.APIURL)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("STOREFRONT_STORAGE_DRIVER", "etcd")
		_, _, err := LoadConfig([]string{})
		assert.ErrorContains(t, err, "unknown storage driver")
	})
	t.Run("postgres needs a url", func(t *testing.T) {
		t.Setenv("STOREFRONT_STORAGE_DRIVER", "postgres")
		_, _, err := LoadConfig([]string{})
		assert.ErrorContains(t, err, "database URL is required")
	})
}
