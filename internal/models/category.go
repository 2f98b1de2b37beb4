package models

import "time"

// Category names are unique across all users. UserID is kept for categories
// created on behalf of a single user but does not scope uniqueness.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;uniqueIndex;not null"`
	UserID    *uint  `gorm:"index"`
	User      *User  `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
