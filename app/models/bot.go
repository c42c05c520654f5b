package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Bot is a deployable bot template. Rate is the monthly price in the smallest
// currency unit; it is read once per billing run and never mutated there.
type Bot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Title          string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	Description    string    `gorm:"type:text" json:"description"`
	ActivationCode string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"activation_code" validate:"required,max=64"`
	Rate           int64     `gorm:"not null" json:"rate" validate:"gte=0"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Bot) Validate() error {
	v := validator.New()

	return v.Struct(b)
}
