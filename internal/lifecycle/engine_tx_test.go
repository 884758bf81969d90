package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/lifecycle"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/testdb"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// failEventInserts makes every insert into the audit table fail inside its transaction.
func failEventInserts(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_events", func(tx *gorm.DB) {
		if tx.Statement.Table == "events" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)
}

func TestApprove_AuditFailureRollsBackStatus(t *testing.T) {
	f := newFixture(t)
	v := testdb.Visitor(t, f.db, "Ramesh", f.home, model.StatusPending)
	failEventInserts(t, f.db)

	_, err := f.engine.Approve(context.Background(), f.resident, v.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lifecycle.ErrDependency))

	assert.Equal(t, model.StatusPending, f.status(t, v.ID))
	assert.Zero(t, testdb.CountEvents(t, f.db, v.ID, model.EventVisitorApproved))
	assert.Empty(t, f.sub.types())
}

func TestCreate_AuditFailureRollsBackBatch(t *testing.T) {
	f := newFixture(t)
	failEventInserts(t, f.db)

	_, err := f.engine.Create(context.Background(), f.resident, lifecycle.CreateInput{Names: []string{"A", "B"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lifecycle.ErrDependency))

	var n int64
	require.NoError(t, f.db.Model(&model.Visitor{}).Where("host_household_id = ?", f.home.ID).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, f.sub.types())
}

func TestApprove_StatusChangedBeforeGuardedUpdate(t *testing.T) {
	f := newFixture(t)
	v := testdb.Visitor(t, f.db, "Ramesh", f.home, model.StatusPending)

	// Another writer denies the visitor after the pre-check read, on the same connection.
	flipped := false
	err := f.db.Callback().Update().Before("gorm:update").Register("test:deny_first", func(tx *gorm.DB) {
		if flipped || tx.Statement.Table != "visitors" {
			return
		}
		flipped = true
		_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE visitors SET status = ? WHERE id = ?", string(model.StatusDenied), v.ID)
		if err != nil {
			_ = tx.AddError(err)
		}
	})
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), f.resident, v.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lifecycle.ErrState))
	assert.Contains(t, err.Error(), "already DENIED")
	assert.True(t, flipped)

	assert.Zero(t, testdb.CountEvents(t, f.db, v.ID, model.EventVisitorApproved))
	assert.Empty(t, f.sub.types())
}

func TestEngine_LogsWithRequestLogger(t *testing.T) {
	f := newFixture(t)
	v := testdb.Visitor(t, f.db, "Ramesh", f.home, model.StatusPending)

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core).With(zap.String("request_id", "req-7")))

	_, err := f.engine.Approve(ctx, f.guard, v.ID)
	require.Error(t, err)
	_, err = f.engine.Approve(ctx, f.resident, v.ID)
	require.NoError(t, err)

	for _, msg := range []string{"Visitor operation rejected", "Visitor status changed"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"], msg)
	}
}
