package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/lifecycle"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"go.uber.org/zap"
)

// Directory resolves who should hear about a change.
type Directory interface {
	UsersWithRole(ctx context.Context, role model.Role) ([]uint, error)
	HouseholdMembers(ctx context.Context, householdID uint) ([]uint, error)
	FlatNumber(ctx context.Context, householdID uint) (string, error)
	Tokens(ctx context.Context, userIDs []uint) ([]string, error)
}

// Dispatcher notifies guards when a visitor is approved and the host household when a
// visitor checks in. It runs after the lifecycle transaction commits, on its own worker,
// so a slow or failing sink never delays or fails a visitor operation.
type Dispatcher struct {
	dir   Directory
	sink  Sink
	log   *zap.Logger
	queue chan queued

	once sync.Once
	done chan struct{}
}

// NewDispatcher creates a dispatcher with a queue of the given size.
func NewDispatcher(dir Directory, sink Sink, log *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		dir:   dir,
		sink:  sink,
		log:   log,
		queue: make(chan queued, queueSize),
		done:  make(chan struct{}),
	}
}

// queued keeps the request logger of the operation that produced the change.
type queued struct {
	change lifecycle.Change
	log    *zap.Logger
}

// VisitorChanged queues the change without blocking. A full queue drops it.
func (d *Dispatcher) VisitorChanged(ctx context.Context, change lifecycle.Change) {
	if !notifies(change.Type) {
		return
	}
	log := logger.FromContextOr(ctx, d.log)
	select {
	case d.queue <- queued{change: change, log: log}:
	default:
		log.Warn("Notification queue full, dropping change",
			zap.String("event", string(change.Type)),
			zap.Uint("visitor_id", change.Visitor.ID))
		prometheus.RecordNotification("queue", "dropped")
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			d.drain(ctx)
			return
		case item := <-d.queue:
			d.Handle(logger.WithContext(ctx, item.log), item.change)
		}
	}
}

// Close stops Run after the queued changes are delivered.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case item := <-d.queue:
			d.Handle(logger.WithContext(ctx, item.log), item.change)
		default:
			return
		}
	}
}

// Handle builds and sends the push for one change.
func (d *Dispatcher) Handle(ctx context.Context, change lifecycle.Change) {
	log := logger.FromContextOr(ctx, d.log)
	push, err := d.compose(ctx, change)
	if err != nil {
		log.Error("Failed to resolve notification recipients",
			zap.String("event", string(change.Type)),
			zap.Uint("visitor_id", change.Visitor.ID),
			zap.Error(err))
		prometheus.RecordNotification("directory", "failed")
		return
	}
	if push == nil || len(push.Tokens) == 0 {
		log.Debug("No devices to notify",
			zap.String("event", string(change.Type)),
			zap.Uint("visitor_id", change.Visitor.ID))
		return
	}
	d.send(ctx, log, change, *push)
}

// send keeps a panicking sink from taking down the worker.
func (d *Dispatcher) send(ctx context.Context, log *zap.Logger, change lifecycle.Change, push Push) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Notification sink panicked",
				zap.Any("panic", r),
				zap.String("event", string(change.Type)),
				zap.Uint("visitor_id", change.Visitor.ID))
			prometheus.RecordNotification("sink", "panicked")
		}
	}()
	d.sink.Notify(ctx, push)
}

func notifies(t model.EventType) bool {
	return t == model.EventVisitorApproved || t == model.EventVisitorCheckIn
}

func (d *Dispatcher) compose(ctx context.Context, change lifecycle.Change) (*Push, error) {
	v := change.Visitor
	data := map[string]string{
		"visitor_id": strconv.FormatUint(uint64(v.ID), 10),
		"event":      string(change.Type),
	}

	var (
		recipients []uint
		push       Push
		err        error
	)
	switch change.Type {
	case model.EventVisitorApproved:
		recipients, err = d.dir.UsersWithRole(ctx, model.RoleGuard)
		if err != nil {
			return nil, err
		}
		flat, err := d.dir.FlatNumber(ctx, v.HostHouseholdID)
		if err != nil {
			return nil, err
		}
		push = Push{Title: "Visitor Approved", Body: fmt.Sprintf("'%s' for %s is now approved.", v.Name, flat)}
	case model.EventVisitorCheckIn:
		recipients, err = d.dir.HouseholdMembers(ctx, v.HostHouseholdID)
		if err != nil {
			return nil, err
		}
		push = Push{Title: "Visitor Arrived", Body: fmt.Sprintf("'%s' has checked in.", v.Name)}
	default:
		return nil, nil
	}

	tokens, err := d.dir.Tokens(ctx, recipients)
	if err != nil {
		return nil, err
	}
	push.Tokens = tokens
	push.Data = data
	return &push, nil
}
