package config

import (
	"testing"
	"time"
)

var allEnvVars = []string{
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT", "CORS_ALLOWED_ORIGINS",
	"DB_DRIVER", "DB_PATH", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_LOG_LEVEL",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"REDIS_KEY_PREFIX", "CACHE_LOCAL_TTL",
	"WORKER_ENABLED", "WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "WORKER_RETRY_BACKOFF", "WORKER_MAX_TRIES", "WORKER_QUEUE",
	"AUTH_ENABLED", "JWT_SECRET", "JWT_ISSUER",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
}

// clearEnv blanks every variable LoadConfig reads; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	for _, k := range allEnvVars {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", config.Server.Port)
	}

	if config.Database.Driver != "sqlite" {
		t.Errorf("Expected default driver 'sqlite', got %s", config.Database.Driver)
	}

	if config.GetDatabaseDSN() != "task_assign.db" {
		t.Errorf("Expected sqlite DSN to be the path, got %s", config.GetDatabaseDSN())
	}

	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.Enabled {
		t.Error("Expected redis to be disabled by default")
	}

	if config.Redis.KeyPrefix != "taskassign:" {
		t.Errorf("Expected default key prefix 'taskassign:', got %s", config.Redis.KeyPrefix)
	}

	if !config.Worker.Enabled || config.Worker.MaxTries != 5 || config.Worker.Queue != "repair_queue" {
		t.Errorf("Unexpected worker defaults: %+v", config.Worker)
	}

	if config.Auth.Enabled {
		t.Error("Expected auth to be disabled by default")
	}

	if len(config.Server.AllowedOrigins) != 1 || config.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS origin, got %v", config.Server.AllowedOrigins)
	}

	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("DB_PASSWORD", "secure_password")
	t.Setenv("DB_NAME", "assign")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Database.Driver != "postgres" {
		t.Errorf("Expected driver 'postgres', got %s", config.Database.Driver)
	}

	want := "host=db.example.com port=5432 user=postgres password=secure_password dbname=assign sslmode=disable"
	if dsn := config.GetDatabaseDSN(); dsn != want {
		t.Errorf("Expected DSN %q, got %q", want, dsn)
	}

	if !config.Redis.Enabled || config.GetRedisAddr() != "localhost:6380" {
		t.Errorf("Unexpected redis config: %+v", config.Redis)
	}

	if config.Worker.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected poll interval 250ms, got %v", config.Worker.PollInterval)
	}

	if len(config.Server.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 origins, got %v", config.Server.AllowedOrigins)
	}

	if !config.IsProduction() {
		t.Error("Expected production environment")
	}
}

func TestLoadConfig_ProductionValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"sqlite needs no password", map[string]string{"ENVIRONMENT": "production"}, false},
		{"postgres without password", map[string]string{"ENVIRONMENT": "production", "DB_DRIVER": "postgres"}, true},
		{"postgres without password outside production", map[string]string{"DB_DRIVER": "postgres"}, false},
		{"auth with default secret", map[string]string{"ENVIRONMENT": "production", "AUTH_ENABLED": "true"}, true},
		{"auth with secret", map[string]string{"ENVIRONMENT": "production", "AUTH_ENABLED": "true", "JWT_SECRET": "x"}, false},
		{"unknown driver", map[string]string{"DB_DRIVER": "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetServerAddr(t *testing.T) {
	config := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: "9000"}}
	if addr := config.GetServerAddr(); addr != "0.0.0.0:9000" {
		t.Errorf("Expected '0.0.0.0:9000', got %s", addr)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "abc")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DURATION", "1m30s")
	t.Setenv("TEST_BAD_DURATION", "soon")

	if got := getEnvAsInt("TEST_INT", 0); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("Expected fallback 7, got %d", got)
	}
	if got := getEnvAsBool("TEST_BOOL", true); got {
		t.Error("Expected false")
	}
	if got := getEnvAsDuration("TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("Expected 90s, got %v", got)
	}
	if got := getEnvAsDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("Expected fallback 1s, got %v", got)
	}
	if got := getEnvAsList("TEST_MISSING_LIST", []string{"a"}); len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected fallback list, got %v", got)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(); err != nil {
			b.Fatal(err)
		}
	}
}
