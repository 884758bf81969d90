package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRecord_WritesEvent(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.Household(t, db, "A-101")
	resident := testdb.User(t, db, model.RoleResident, &h)
	v := testdb.Visitor(t, db, "Ramesh", h, model.StatusPending)

	rec := audit.NewRecorder(db)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ev, err := rec.Record(db, audit.Entry{
		Type:             model.EventVisitorDenied,
		ActorID:          &resident.ID,
		SubjectVisitorID: &v.ID,
		Payload:          map[string]any{"reason": "not expected"},
		At:               at,
	})
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)

	var stored model.Event
	require.NoError(t, db.First(&stored, ev.ID).Error)
	assert.Equal(t, model.EventVisitorDenied, stored.Type)
	assert.Equal(t, "not expected", stored.Payload["reason"])
	assert.True(t, stored.Timestamp.Equal(at))
}

func TestRecord_RolledBackWithTransaction(t *testing.T) {
	db := testdb.Open(t)
	rec := audit.NewRecorder(db)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := rec.Record(tx, audit.Entry{Type: model.EventRoleChange}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Model(&model.Event{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRecord_RequiresType(t *testing.T) {
	db := testdb.Open(t)
	_, err := audit.NewRecorder(db).Record(db, audit.Entry{})
	assert.Error(t, err)
}

func TestList_AdminOnlyNewestFirst(t *testing.T) {
	db := testdb.Open(t)
	admin := testdb.User(t, db, model.RoleAdmin, nil)
	guard := testdb.User(t, db, model.RoleGuard, nil)
	rec := audit.NewRecorder(db)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, typ := range []model.EventType{model.EventVisitorCreated, model.EventVisitorApproved, model.EventVisitorCheckIn} {
		_, err := rec.Record(db, audit.Entry{Type: typ, ActorID: &admin.ID, At: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	_, err := rec.List(context.Background(), guard, audit.Page{})
	assert.ErrorIs(t, err, audit.ErrAdminOnly)

	events, err := rec.List(context.Background(), admin, audit.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventVisitorCheckIn, events[0].Type)
	assert.Equal(t, model.EventVisitorApproved, events[1].Type)
	require.NotNil(t, events[0].Actor)
	assert.Equal(t, admin.Username, events[0].Actor.Username)

	filtered, err := rec.List(context.Background(), admin, audit.Page{Type: model.EventVisitorCreated})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestForVisitor_OldestFirst(t *testing.T) {
	db := testdb.Open(t)
	h := testdb.Household(t, db, "B-2")
	v := testdb.Visitor(t, db, "Meera", h, model.StatusPending)
	rec := audit.NewRecorder(db)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err := rec.Record(db, audit.Entry{Type: model.EventVisitorApproved, SubjectVisitorID: &v.ID, At: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = rec.Record(db, audit.Entry{Type: model.EventVisitorCreated, SubjectVisitorID: &v.ID, At: base})
	require.NoError(t, err)

	events, err := rec.ForVisitor(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventVisitorCreated, events[0].Type)
}
