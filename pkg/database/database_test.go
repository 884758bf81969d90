package database

import (
	"testing"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrateModels(t *testing.T) {
	assert.Error(t, MigrateModels(nil, model.All()...))

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, MigrateModels(db, model.All()...))

	for _, table := range []string{"households", "users", "visitors", "events", "device_tokens"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
