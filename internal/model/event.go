package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventType names the action an audit event records.
type EventType string

const (
	EventVisitorCreated  EventType = "VISITOR_CREATED"
	EventVisitorApproved EventType = "VISITOR_APPROVED"
	EventVisitorDenied   EventType = "VISITOR_DENIED"
	EventVisitorCheckIn  EventType = "VISITOR_CHECKIN"
	EventVisitorCheckOut EventType = "VISITOR_CHECKOUT"
	EventRoleChange      EventType = "ROLE_CHANGE"
)

// Event is an append-only audit record.
type Event struct {
	ID               uint              `json:"id" gorm:"primaryKey"`
	Type             EventType         `json:"type" gorm:"type:varchar(30);not null;index"`
	Timestamp        time.Time         `json:"timestamp" gorm:"not null;index"`
	ActorID          *uint             `json:"actor_id" gorm:"index"`
	Actor            *User             `json:"actor,omitempty" gorm:"foreignKey:ActorID;constraint:OnDelete:SET NULL"`
	SubjectVisitorID *uint             `json:"subject_visitor_id,omitempty" gorm:"index"`
	SubjectUserID    *uint             `json:"subject_user_id,omitempty" gorm:"index"`
	Payload          datatypes.JSONMap `json:"payload,omitempty"`
}
