package model

import "time"

// Role is the single role a user holds.
type Role string

const (
	RoleResident Role = "RESIDENT"
	RoleGuard    Role = "GUARD"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleGuard, RoleAdmin:
		return true
	}
	return false
}

// User is a login account. Residents belong to a household; guards and admins usually don't.
type User struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Username    string     `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email       *string    `json:"email,omitempty" gorm:"type:varchar(254);uniqueIndex"`
	Phone       *string    `json:"phone,omitempty" gorm:"type:varchar(20);uniqueIndex"`
	Password    string     `json:"-" gorm:"type:varchar(255)"`
	FirstName   string     `json:"first_name" gorm:"type:varchar(150)"`
	LastName    string     `json:"last_name" gorm:"type:varchar(150)"`
	Role        Role       `json:"role" gorm:"type:varchar(10);not null;default:'RESIDENT';index"`
	HouseholdID *uint      `json:"household_id,omitempty" gorm:"index"`
	Household   *Household `json:"household,omitempty" gorm:"foreignKey:HouseholdID;constraint:OnDelete:SET NULL"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// InHousehold reports whether the user is a member of the given household.
func (u User) InHousehold(householdID uint) bool {
	return u.HouseholdID != nil && *u.HouseholdID == householdID
}
