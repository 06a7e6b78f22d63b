package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Contact struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;not null;index" json:"email"`
	Phone     string       `gorm:"type:text" json:"phone,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }
