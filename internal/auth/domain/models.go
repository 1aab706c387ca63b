package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is the creator identity. Authentication happens upstream; this row
// exists so balances and products have something to hang off.
type User struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Email       string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	DisplayName string       `gorm:"type:text;not null;default:''" json:"display_name"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
