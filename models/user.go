package models

import (
	"time"
)

// User holds the registered trader account. Passwords are stored as bcrypt
// hashes only; the raw password never touches the database.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Challenges []Challenge `json:"challenges,omitempty" gorm:"foreignKey:UserID"`
}
