package models

import "time"

// StatusEvent is one row in the append-only status transition ledger. Events
// are never updated; they disappear only when their instance is deleted.
//
// ChangedAt alone is not unique under concurrent writers, so every read path
// orders by (changed_at, id): the auto-increment ID is the deterministic
// tie-break sequence.
type StatusEvent struct {
	ID         uint64         `gorm:"primaryKey" json:"id"`
	InstanceID uint           `gorm:"not null;index:idx_status_events_instance_changed,priority:1" json:"instance_id"`
	FromStatus *string        `gorm:"type:varchar(50)" json:"from_status,omitempty"`
	ToStatus   InstanceStatus `gorm:"type:varchar(50);not null" json:"to_status"`
	ChangedAt  time.Time      `gorm:"not null;index:idx_status_events_instance_changed,priority:2" json:"changed_at"`

	Instance *BotInstance `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE" json:"-"`
}

// NewStatusEvent builds a transition record. from is nil only for the very
// first event of an instance.
func NewStatusEvent(instanceID uint, from *InstanceStatus, to InstanceStatus, at time.Time) *StatusEvent {
	ev := &StatusEvent{
		InstanceID: instanceID,
		ToStatus:   to,
		ChangedAt:  at,
	}
	if from != nil {
		s := string(*from)
		ev.FromStatus = &s
	}
	return ev
}
