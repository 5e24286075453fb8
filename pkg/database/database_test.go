package database

import (
	"academy_backend/internal/config"
	"academy_backend/internal/util"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorIs(t, err, util.ErrUnsupportedDriver)
}

func TestInitDBSQLiteAndMigrate(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: util.DriverSQLite, Path: filepath.Join(t.TempDir(), "academy.db")}
	db, err := InitDB(cfg, false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, Migrate(db))
	for _, table := range []string{"phases", "modules", "lessons", "user_lesson_responses", "user_lesson_progress", "user_module_progress"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestInitRedisDisabled(t *testing.T) {
	rdb, err := InitRedis(&config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}
