package database

import (
	"testing"
	"time"

	"task-assign/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm/logger"
)

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig()

	if config.Driver != DriverSQLite {
		t.Errorf("Expected Driver to be sqlite, got %s", config.Driver)
	}

	if config.MaxOpenConns != 25 {
		t.Errorf("Expected MaxOpenConns to be 25, got %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns != 10 {
		t.Errorf("Expected MaxIdleConns to be 10, got %d", config.MaxIdleConns)
	}

	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime to be 1 hour, got %v", config.ConnMaxLifetime)
	}

	if config.ConnMaxIdleTime != time.Minute*30 {
		t.Errorf("Expected ConnMaxIdleTime to be 30 minutes, got %v", config.ConnMaxIdleTime)
	}

	if config.LogLevel != logger.Info {
		t.Errorf("Expected LogLevel to be Info, got %v", config.LogLevel)
	}
}

func TestNewDatabasePool_WithNilConfig(t *testing.T) {
	_, err := NewDatabasePool(nil)

	if err == nil {
		t.Error("Expected error due to empty DSN, got nil")
	}
}

func TestNewDatabasePool_InMemorySQLite(t *testing.T) {
	pool, err := NewDatabasePool(&PoolConfig{
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 10,
		LogLevel:     logger.Silent,
	})
	if err != nil {
		t.Fatalf("Expected in-memory pool, got error: %v", err)
	}
	defer pool.Close()

	if err := pool.Health(); err != nil {
		t.Errorf("Expected healthy pool, got: %v", err)
	}

	if err := pool.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	stats := pool.Stats()
	if stats["max_open"] != 1 {
		t.Errorf("Expected in-memory pool pinned to one connection, got %v", stats["max_open"])
	}

	user := models.User{ID: uuid.Must(uuid.NewV4()), Name: "Ann", Email: "a@x.com"}
	if err := pool.DB.Create(&user).Error; err != nil {
		t.Fatalf("Failed to insert into migrated table: %v", err)
	}

	var count int64
	pool.DB.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 user, got %d", count)
	}
}

func TestDatabasePool_Stats_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{
		DB: nil,
		config: &PoolConfig{
			MaxOpenConns: 10,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Stats() should handle nil DB gracefully, but got panic: %v", r)
		}
	}()

	stats := pool.Stats()

	if _, hasError := stats["error"]; !hasError {
		t.Error("Expected error in stats when DB is nil")
	}
}

func TestDatabasePool_Health_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if err := pool.Health(); err == nil {
		t.Error("Expected error when checking health with nil DB")
	}
}

func TestDatabasePool_Close_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if err := pool.Close(); err != nil {
		t.Errorf("Expected no error when closing nil DB, got: %v", err)
	}
}

func TestPoolConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  *PoolConfig
		wantErr bool
	}{
		{
			name: "Empty DSN",
			config: &PoolConfig{
				DSN:      "",
				LogLevel: logger.Silent,
			},
			wantErr: true,
		},
		{
			name: "Negative values configuration",
			config: &PoolConfig{
				DSN:             ":memory:",
				MaxOpenConns:    -1,
				MaxIdleConns:    -1,
				ConnMaxLifetime: -time.Hour,
				ConnMaxIdleTime: -time.Minute,
				LogLevel:        logger.Silent,
			},
			wantErr: true,
		},
		{
			name: "Unknown driver",
			config: &PoolConfig{
				Driver:   "oracle",
				DSN:      "whatever",
				LogLevel: logger.Silent,
			},
			wantErr: true,
		},
		{
			name: "Valid sqlite configuration",
			config: &PoolConfig{
				Driver:   DriverSQLite,
				DSN:      "file:validation?mode=memory&cache=shared",
				LogLevel: logger.Silent,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewDatabasePool(tt.config)
			if pool != nil {
				defer pool.Close()
			}

			if tt.wantErr && err == nil {
				t.Error("Expected error but pool creation succeeded")
			} else if !tt.wantErr && err != nil {
				t.Errorf("Expected successful pool creation, got: %v", err)
			}
		})
	}
}

func BenchmarkDefaultPoolConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultPoolConfig()
	}
}
