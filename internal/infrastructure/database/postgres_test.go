package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildConnectionString(t *testing.T) {
	db := NewPostgresDB(&DBConfig{
		Host:     "db.local",
		Port:     5433,
		Username: "catalog",
		Password: "pw",
		DBName:   "books",
	})

	assert.Equal(t, "postgresql://catalog:pw@db.local:5433/books?sslmode=disable", db.buildConnectionString())

	db.Config.SSLMode = "require"
	assert.Contains(t, db.buildConnectionString(), "sslmode=require")
}

func TestPingWithoutPool(t *testing.T) {
	db := NewPostgresDB(&DBConfig{})
	assert.Error(t, db.Ping(context.Background()))
	assert.NoError(t, db.Close())

	_, err := db.Stats()
	assert.Error(t, err)
}

func TestCalculateAvgDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), calculateAvgDuration(time.Second, 0))
	assert.Equal(t, 250*time.Millisecond, calculateAvgDuration(time.Second, 4))
}
