package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// BotInstance is one provisioned bot owned by a user. ExternalID references
// the resource in the external instance-management system; exactly one remote
// resource exists per instance.
//
// LastChargeAt/NextChargeAt are nil until the first billing run touches the
// instance; afterwards NextChargeAt is always LastChargeAt + 24h.
type BotInstance struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	BotID        uint           `gorm:"not null;index" json:"bot_id"`
	ExternalID   string         `gorm:"type:varchar(100);index;not null" json:"external_id"`
	Title        string         `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	Config       string         `gorm:"type:json" json:"config"`
	Status       InstanceStatus `gorm:"type:varchar(50);not null;default:'active'" json:"status"`
	LastChargeAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_charge_at,omitempty"`
	NextChargeAt *time.Time     `gorm:"type:timestamp;default:null;index" json:"next_charge_at,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Bot  *Bot  `gorm:"foreignKey:BotID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (i *BotInstance) Validate() error {
	v := validator.New()

	return v.Struct(i)
}
