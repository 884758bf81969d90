package model

import "time"

// Household is a residential unit that hosts visitors and groups residents.
type Household struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FlatNumber string    `json:"flat_number" gorm:"type:varchar(50);uniqueIndex;not null"`
	Name       string    `json:"name" gorm:"type:varchar(255)"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Members []User `json:"-" gorm:"foreignKey:HouseholdID"`
}
