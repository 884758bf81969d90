// Package lifecycle owns the visitor pass state machine:
//
//	PENDING --approve--> APPROVED --checkin--> CHECKED_IN --checkout--> CHECKED_OUT
//	PENDING --deny-----> DENIED
//
// Every operation takes the authenticated requester explicitly, runs its checks and writes
// inside one transaction, and records exactly one audit event per visitor it changes.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/schedule"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultPageSize caps every listing.
	DefaultPageSize = 20

	defaultPurpose    = "Guest"
	defaultDenyReason = "No reason provided"
)

// Change is published to subscribers after a lifecycle transaction commits.
type Change struct {
	Type    model.EventType
	Visitor model.Visitor
	Actor   model.User
}

// Subscriber receives committed changes. It must not block for long and cannot fail the
// operation that produced the change.
type Subscriber interface {
	VisitorChanged(ctx context.Context, change Change)
}

// Engine enforces the visitor state machine and its authorization rules.
type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	recorder    *audit.Recorder
	parser      schedule.Parser
	subscribers []Subscriber
	now         func() time.Time
	pageSize    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduleParser replaces the keyword schedule parser.
func WithScheduleParser(p schedule.Parser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithSubscriber adds a post-commit subscriber.
func WithSubscriber(s Subscriber) Option {
	return func(e *Engine) { e.subscribers = append(e.subscribers, s) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPageSize overrides the listing cap.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// New creates an Engine on top of db.
func New(db *gorm.DB, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		log:      log,
		recorder: audit.NewRecorder(db),
		parser:   schedule.Keyword{},
		now:      time.Now,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PageSize is the maximum number of visitors List returns.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// CreateInput describes one create request. ScheduledAt, when set, wins over ScheduleHint.
type CreateInput struct {
	Names        []string
	Phone        string
	Purpose      string
	ScheduleHint string
	ScheduledAt  *time.Time
}

// CreateResult carries the created visitors and a note about the schedule hint.
type CreateResult struct {
	Visitors     []model.Visitor
	ScheduleNote string
}

// Create registers one PENDING visitor per non-blank name for the requester's household.
func (e *Engine) Create(ctx context.Context, requester model.User, in CreateInput) (*CreateResult, error) {
	if err := authorize(OpCreate, requester, nil); err != nil {
		return nil, e.fail(ctx, OpCreate, requester, 0, err)
	}

	names := cleanNames(in.Names)
	if len(names) == 0 {
		return nil, e.fail(ctx, OpCreate, requester, 0, validationError("No valid visitor names were provided."))
	}

	purpose := strings.TrimSpace(in.Purpose)
	if purpose == "" {
		purpose = defaultPurpose
	}

	result := &CreateResult{}
	scheduled := in.ScheduledAt
	if scheduled == nil {
		hint := e.parser.Parse(in.ScheduleHint, e.now())
		scheduled = hint.At
		result.ScheduleNote = hint.Note
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			v := model.Visitor{
				Name:            name,
				Phone:           strings.TrimSpace(in.Phone),
				Purpose:         purpose,
				Status:          model.StatusPending,
				HostHouseholdID: *requester.HouseholdID,
				ScheduledTime:   scheduled,
			}
			if err := tx.Create(&v).Error; err != nil {
				return err
			}
			if _, err := e.recorder.Record(tx, audit.Entry{
				Type:             model.EventVisitorCreated,
				ActorID:          &requester.ID,
				SubjectVisitorID: &v.ID,
				At:               e.now(),
			}); err != nil {
				return err
			}
			result.Visitors = append(result.Visitors, v)
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, OpCreate, requester, 0, asLifecycleError("create visitors", err))
	}

	changes := make([]Change, 0, len(result.Visitors))
	for _, v := range result.Visitors {
		prometheus.RecordTransition(string(model.EventVisitorCreated))
		changes = append(changes, Change{Type: model.EventVisitorCreated, Visitor: v, Actor: requester})
	}
	e.logFor(ctx).Info("Visitors created",
		zap.Uint("actor_id", requester.ID),
		zap.Uint("household_id", *requester.HouseholdID),
		zap.Int("count", len(result.Visitors)))
	e.publish(ctx, changes...)

	return result, nil
}

// Approve moves a PENDING visitor to APPROVED.
func (e *Engine) Approve(ctx context.Context, requester model.User, visitorID uint) (*model.Visitor, error) {
	return e.transition(ctx, requester, visitorID, transition{
		op:    OpApprove,
		from:  model.StatusPending,
		to:    model.StatusApproved,
		event: model.EventVisitorApproved,
		fields: func(now time.Time, actor model.User) map[string]any {
			return map[string]any{"approved_by_id": actor.ID, "approved_at": now}
		},
		stale: alreadyMessage,
	})
}

// Deny moves a PENDING visitor to DENIED, keeping the reason in the audit payload.
func (e *Engine) Deny(ctx context.Context, requester model.User, visitorID uint, reason string) (*model.Visitor, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultDenyReason
	}
	return e.transition(ctx, requester, visitorID, transition{
		op:      OpDeny,
		from:    model.StatusPending,
		to:      model.StatusDenied,
		event:   model.EventVisitorDenied,
		payload: map[string]any{"reason": reason},
		stale:   alreadyMessage,
	})
}

// CheckIn moves an APPROVED visitor to CHECKED_IN.
func (e *Engine) CheckIn(ctx context.Context, requester model.User, visitorID uint) (*model.Visitor, error) {
	return e.transition(ctx, requester, visitorID, transition{
		op:    OpCheckIn,
		from:  model.StatusApproved,
		to:    model.StatusCheckedIn,
		event: model.EventVisitorCheckIn,
		fields: func(now time.Time, actor model.User) map[string]any {
			return map[string]any{"checked_in_by_id": actor.ID, "checked_in_at": now}
		},
		stale: requiresMessage("check in"),
	})
}

// CheckOut moves a CHECKED_IN visitor to CHECKED_OUT.
func (e *Engine) CheckOut(ctx context.Context, requester model.User, visitorID uint) (*model.Visitor, error) {
	return e.transition(ctx, requester, visitorID, transition{
		op:    OpCheckOut,
		from:  model.StatusCheckedIn,
		to:    model.StatusCheckedOut,
		event: model.EventVisitorCheckOut,
		fields: func(now time.Time, actor model.User) map[string]any {
			return map[string]any{"checked_out_by_id": actor.ID, "checked_out_at": now}
		},
		stale: requiresMessage("check out"),
	})
}

type transition struct {
	op      Operation
	from    model.VisitorStatus
	to      model.VisitorStatus
	event   model.EventType
	fields  func(now time.Time, actor model.User) map[string]any
	payload map[string]any
	// stale renders the state error for a visitor not in from.
	stale func(v *model.Visitor, from model.VisitorStatus) *Error
}

func alreadyMessage(v *model.Visitor, _ model.VisitorStatus) *Error {
	return stateError("Visitor %s (ID %d) is already %s.", v.Name, v.ID, v.Status)
}

func requiresMessage(verb string) func(*model.Visitor, model.VisitorStatus) *Error {
	return func(v *model.Visitor, from model.VisitorStatus) *Error {
		return stateError("Visitor %s (ID %d) must be %s to %s, but is %s.", v.Name, v.ID, from, verb, v.Status)
	}
}

func (e *Engine) transition(ctx context.Context, requester model.User, visitorID uint, t transition) (*model.Visitor, error) {
	defer prometheus.TrackDBOperation(string(t.op))(time.Now())

	var updated model.Visitor
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v model.Visitor
		if err := tx.First(&v, visitorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("Visitor with ID %d was not found.", visitorID)
			}
			return err
		}

		if err := authorize(t.op, requester, &v); err != nil {
			return err
		}
		if v.Status != t.from {
			return t.stale(&v, t.from)
		}

		now := e.now()
		updates := map[string]any{}
		if t.fields != nil {
			updates = t.fields(now, requester)
		}
		updates["status"] = t.to

		// The status guard makes the first committer win when two requests race.
		res := tx.Model(&model.Visitor{}).
			Where("id = ? AND status = ?", v.ID, t.from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current model.Visitor
			if err := tx.First(&current, v.ID).Error; err != nil {
				return err
			}
			return t.stale(&current, t.from)
		}

		if err := tx.First(&updated, v.ID).Error; err != nil {
			return err
		}

		_, err := e.recorder.Record(tx, audit.Entry{
			Type:             t.event,
			ActorID:          &requester.ID,
			SubjectVisitorID: &v.ID,
			Payload:          t.payload,
			At:               now,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(ctx, t.op, requester, visitorID, asLifecycleError(policies[t.op].verb+" the visitor", err))
	}

	prometheus.RecordTransition(string(t.event))
	e.logFor(ctx).Info("Visitor status changed",
		zap.Uint("visitor_id", updated.ID),
		zap.String("from", string(t.from)),
		zap.String("to", string(updated.Status)),
		zap.Uint("actor_id", requester.ID),
		zap.String("actor_role", string(requester.Role)))
	e.publish(ctx, Change{Type: t.event, Visitor: updated, Actor: requester})

	return &updated, nil
}

// ListQuery narrows a listing. Status must parse as a VisitorStatus to take effect; anything
// else, "ALL" included, means no status filter. IncludeClosed lets guards and admins see
// DENIED and CHECKED_OUT visitors when no status is given.
type ListQuery struct {
	Status        string
	IncludeClosed bool
	Limit         int
}

// OpenStatuses is what guards and admins see by default.
var OpenStatuses = []model.VisitorStatus{model.StatusApproved, model.StatusPending, model.StatusCheckedIn}

// List returns visitors visible to the requester, newest first.
func (e *Engine) List(ctx context.Context, requester model.User, q ListQuery) ([]model.Visitor, error) {
	if err := authorize(OpList, requester, nil); err != nil {
		return nil, e.fail(ctx, OpList, requester, 0, err)
	}

	query := e.db.WithContext(ctx).Model(&model.Visitor{}).Preload("HostHousehold")
	if requester.Role == model.RoleResident {
		query = query.Where("host_household_id = ?", *requester.HouseholdID)
	}

	if status, ok := model.ParseStatus(q.Status); ok {
		query = query.Where("status = ?", status)
	} else {
		if q.Status != "" && !strings.EqualFold(q.Status, "ALL") {
			e.logFor(ctx).Debug("Ignoring unknown status filter", zap.String("status", q.Status))
		}
		if requester.Role != model.RoleResident && !q.IncludeClosed {
			query = query.Where("status IN ?", OpenStatuses)
		}
	}

	limit := e.pageSize
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}

	var visitors []model.Visitor
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&visitors).Error; err != nil {
		return nil, e.fail(ctx, OpList, requester, 0, dependencyError("list visitors", err))
	}
	return visitors, nil
}

// Get returns one visitor if the requester may see it.
func (e *Engine) Get(ctx context.Context, requester model.User, visitorID uint) (*model.Visitor, error) {
	var v model.Visitor
	if err := e.db.WithContext(ctx).Preload("HostHousehold").First(&v, visitorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, e.fail(ctx, OpGet, requester, visitorID, notFoundError("Visitor with ID %d was not found.", visitorID))
		}
		return nil, e.fail(ctx, OpGet, requester, visitorID, dependencyError("load the visitor", err))
	}
	if err := authorize(OpGet, requester, &v); err != nil {
		return nil, e.fail(ctx, OpGet, requester, visitorID, err)
	}
	return &v, nil
}

func (e *Engine) publish(ctx context.Context, changes ...Change) {
	for _, s := range e.subscribers {
		for _, c := range changes {
			e.deliver(ctx, s, c)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, s Subscriber, c Change) {
	defer func() {
		if r := recover(); r != nil {
			e.logFor(ctx).Error("Visitor change subscriber panicked",
				zap.Any("panic", r),
				zap.String("event", string(c.Type)),
				zap.Uint("visitor_id", c.Visitor.ID))
		}
	}()
	s.VisitorChanged(ctx, c)
}

func (e *Engine) fail(ctx context.Context, op Operation, requester model.User, visitorID uint, err error) error {
	kind := KindOf(err)
	prometheus.RecordLifecycleError(string(op), string(kind))

	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Uint("actor_id", requester.ID),
		zap.String("actor_role", string(requester.Role)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if visitorID != 0 {
		fields = append(fields, zap.Uint("visitor_id", visitorID))
	}
	if kind == KindDependency {
		var le *Error
		if errors.As(err, &le) && le.Err != nil {
			fields = append(fields, zap.NamedError("cause", le.Err))
		}
		e.logFor(ctx).Error("Visitor operation failed", fields...)
	} else {
		e.logFor(ctx).Info("Visitor operation rejected", fields...)
	}
	return err
}

// logFor prefers the request logger in ctx so lines carry request_id and user_id.
func (e *Engine) logFor(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, e.log)
}

// asLifecycleError keeps *Error values and wraps everything else as a dependency failure.
func asLifecycleError(action string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return dependencyError(action, err)
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
