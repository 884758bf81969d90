// Package audit is the append-only record of visitor and account actions.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAdminOnly is returned when a non-admin asks to read the log.
var ErrAdminOnly = errors.New("only administrators can view the audit log")

const maxPageSize = 100

// Entry describes one event to append.
type Entry struct {
	Type             model.EventType
	ActorID          *uint
	SubjectVisitorID *uint
	SubjectUserID    *uint
	Payload          map[string]any
	At               time.Time
}

// Page selects a window of the log.
type Page struct {
	Limit  int
	Offset int
	Type   model.EventType
}

// Recorder writes and reads audit events. Writes always go through the caller's transaction
// so an event exists exactly when the change it describes was committed.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a Recorder reading from db.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends an event using tx.
func (r *Recorder) Record(tx *gorm.DB, entry Entry) (*model.Event, error) {
	if entry.Type == "" {
		return nil, errors.New("audit entry type is required")
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}

	event := model.Event{
		Type:             entry.Type,
		Timestamp:        at,
		ActorID:          entry.ActorID,
		SubjectVisitorID: entry.SubjectVisitorID,
		SubjectUserID:    entry.SubjectUserID,
	}
	if len(entry.Payload) > 0 {
		event.Payload = datatypes.JSONMap(entry.Payload)
	}

	if err := tx.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("record %s event: %w", entry.Type, err)
	}
	return &event, nil
}

// List returns events newest first. Only admins may read the log.
func (r *Recorder) List(ctx context.Context, requester model.User, page Page) ([]model.Event, error) {
	if requester.Role != model.RoleAdmin {
		return nil, ErrAdminOnly
	}

	limit := page.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Preload("Actor")
	if page.Type != "" {
		query = query.Where("type = ?", page.Type)
	}

	var events []model.Event
	err := query.Order("timestamp DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// ForVisitor returns the history of one visitor, oldest first.
func (r *Recorder) ForVisitor(ctx context.Context, visitorID uint) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("subject_visitor_id = ?", visitorID).
		Order("timestamp ASC").Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list visitor events: %w", err)
	}
	return events, nil
}
