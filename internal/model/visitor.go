package model

import (
	"strings"
	"time"
)

// VisitorStatus is the lifecycle state of a visitor pass.
type VisitorStatus string

const (
	StatusPending    VisitorStatus = "PENDING"
	StatusApproved   VisitorStatus = "APPROVED"
	StatusDenied     VisitorStatus = "DENIED"
	StatusCheckedIn  VisitorStatus = "CHECKED_IN"
	StatusCheckedOut VisitorStatus = "CHECKED_OUT"
)

// AllStatuses lists every visitor status in lifecycle order.
var AllStatuses = []VisitorStatus{
	StatusPending,
	StatusApproved,
	StatusDenied,
	StatusCheckedIn,
	StatusCheckedOut,
}

// ParseStatus maps free text to a status. Unknown values, including "ALL", return false.
func ParseStatus(s string) (VisitorStatus, bool) {
	candidate := VisitorStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if st == candidate {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no transition leaves this status.
func (s VisitorStatus) Terminal() bool {
	return s == StatusDenied || s == StatusCheckedOut
}

// Visitor is one visitor pass for a host household.
type Visitor struct {
	ID              uint          `json:"id" gorm:"primaryKey"`
	Name            string        `json:"name" gorm:"type:varchar(255);not null"`
	Phone           string        `json:"phone" gorm:"type:varchar(20)"`
	Purpose         string        `json:"purpose" gorm:"type:varchar(255)"`
	Status          VisitorStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	HostHouseholdID uint          `json:"host_household_id" gorm:"not null;index"`
	HostHousehold   *Household    `json:"host_household,omitempty" gorm:"foreignKey:HostHouseholdID;constraint:OnDelete:CASCADE"`
	ScheduledTime   *time.Time    `json:"scheduled_time,omitempty"`
	ApprovedByID    *uint         `json:"approved_by_id,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	CheckedInByID   *uint         `json:"checked_in_by_id,omitempty"`
	CheckedInAt     *time.Time    `json:"checked_in_at,omitempty"`
	CheckedOutByID  *uint         `json:"checked_out_by_id,omitempty"`
	CheckedOutAt    *time.Time    `json:"checked_out_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
