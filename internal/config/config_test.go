package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
			assert.Equal(t, "tracker_db", cfg.Database.Database)
			assert.Equal(t, "jobs_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "topic", cfg.RabbitMQ.Exchange.Type)
			assert.Equal(t, []string{"job.*"}, cfg.RabbitMQ.BindingKeys)
			assert.Equal(t, "application-tracker", cfg.App.Name)
			assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
			assert.Equal(t, 50, cfg.Client.PageSize)
			assert.Equal(t, 30*time.Second, cfg.Cache.RefetchTimeout)
		})
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TRACKER_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoadEnv(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv("TRACKER_TEST_DB_PASSWORD") })

	require.NoError(t, LoadEnv("testdata/missing.env", "testdata/test.env"))
	assert.Equal(t, "from-dotenv", os.Getenv("TRACKER_TEST_DB_PASSWORD"))

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Database.Password)
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "tracker_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "jobs_exchange"},
		},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Images: ImagesConfig{Dir: "./data/images"},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "broker disabled", mutate: func(c *Config) { c.RabbitMQ = RabbitMQConfig{} }},
		{name: "invalid server port - too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "invalid server port - too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = -1 }, errString: "invalid database port"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "invalid rabbitmq port", mutate: func(c *Config) { c.RabbitMQ.Port = 0 }, errString: "invalid rabbitmq port"},
		{name: "empty exchange name", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, errString: "rabbitmq exchange name is required"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, errString: "auth jwt_secret is required"},
		{name: "missing images dir", mutate: func(c *Config) { c.Images.Dir = "" }, errString: "images dir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateClientConfig(t *testing.T) {
	base := func() *Config {
		return &Config{Client: ClientConfig{
			Mode:           ModeDevelopment,
			ProductionURL:  "https://tracker.example.com",
			DevelopmentURL: "http://localhost:8080",
		}}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "development", mutate: func(c *Config) {}},
		{name: "production", mutate: func(c *Config) { c.Client.Mode = ModeProduction }},
		{name: "unknown mode", mutate: func(c *Config) { c.Client.Mode = "staging" }, errString: "invalid client mode"},
		{name: "missing url", mutate: func(c *Config) { c.Client.DevelopmentURL = "" }, errString: "client development url is required"},
		{name: "bad scheme", mutate: func(c *Config) { c.Client.DevelopmentURL = "ftp://localhost" }, errString: "invalid client development url"},
		{name: "negative timeout", mutate: func(c *Config) { c.Client.Timeout = -time.Second }, errString: "client timeout"},
		{name: "negative workers", mutate: func(c *Config) { c.Cache.RefetchWorkers = -1 }, errString: "cache refetch_workers"},
		{name: "broker without exchange", mutate: func(c *Config) { c.RabbitMQ = RabbitMQConfig{Host: "localhost", Port: 5672} }, errString: "rabbitmq exchange name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.ValidateClientConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestClientConfig_BaseURL(t *testing.T) {
	c := ClientConfig{ProductionURL: "https://prod", DevelopmentURL: "http://dev"}

	c.Mode = ModeProduction
	assert.Equal(t, "https://prod", c.BaseURL())

	c.Mode = ModeDevelopment
	assert.Equal(t, "http://dev", c.BaseURL())
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateClientConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
