// Package testdb provides a migrated in-memory database and fixtures for package tests.
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns a fresh migrated sqlite database. A single connection serialises transactions,
// which is what the lifecycle tests rely on when racing two requests.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// Household inserts a household with a unique flat number.
func Household(t testing.TB, db *gorm.DB, flat string) model.Household {
	t.Helper()
	h := model.Household{FlatNumber: flat, Name: "Flat " + flat}
	require.NoError(t, db.Create(&h).Error)
	return h
}

// User inserts a user with the given role. household may be nil.
func User(t testing.TB, db *gorm.DB, role model.Role, household *model.Household) model.User {
	t.Helper()
	u := model.User{
		Username: fmt.Sprintf("%s-%d", role, seq.Add(1)),
		Role:     role,
	}
	if household != nil {
		id := household.ID
		u.HouseholdID = &id
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// Visitor inserts a visitor directly in the given status, bypassing the lifecycle.
func Visitor(t testing.TB, db *gorm.DB, name string, household model.Household, status model.VisitorStatus) model.Visitor {
	t.Helper()
	v := model.Visitor{
		Name:            name,
		Purpose:         "Guest",
		Status:          status,
		HostHouseholdID: household.ID,
	}
	require.NoError(t, db.Create(&v).Error)
	return v
}

// CountEvents counts audit events for a visitor, optionally of one type.
func CountEvents(t testing.TB, db *gorm.DB, visitorID uint, typ model.EventType) int64 {
	t.Helper()
	q := db.Model(&model.Event{}).Where("subject_visitor_id = ?", visitorID)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}
