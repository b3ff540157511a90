package mongolite

import (
	"context"
	"testing"
	"time"

	"github.com/madhouselabs/mongolite/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Path:        ":memory:",
			BusyTimeout: 5 * time.Second,
		},
		ChangeStream: config.ChangeStreamConfig{
			PollInterval:  10 * time.Millisecond,
			BatchSize:     256,
			QueueCapacity: 64,
		},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCollection(t *testing.T, name string) *Collection {
	t.Helper()
	db := newTestDatabase(t)
	col, err := db.Collection(context.Background(), name)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	return col
}
