package model

import "time"

// DeviceToken is a push registration token owned by a user.
type DeviceToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Token     string    `json:"-" gorm:"type:text;uniqueIndex;not null"`
	Platform  string    `json:"platform" gorm:"type:varchar(20)"`
	CreatedAt time.Time `json:"created_at"`
}

// All returns every entity for migrations.
func All() []interface{} {
	return []interface{}{
		&Household{},
		&User{},
		&Visitor{},
		&Event{},
		&DeviceToken{},
	}
}
