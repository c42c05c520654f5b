package models

import "time"

// Knowledge entry ingestion states.
const (
	KBEntryInProgress = "in_progress"
	KBEntryDone       = "done"
)

// KnowledgeBase groups the knowledge entries of one instance.
type KnowledgeBase struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	InstanceID uint      `gorm:"uniqueIndex;not null" json:"instance_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	Instance *BotInstance `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE" json:"-"`
}

// KnowledgeEntry is one ingested document. While the external system processes
// it the entry stays in_progress with ExecutionID set; PollDeadline is
// persisted so a restarted process can resume or expire the watch instead of
// losing it with the in-memory task list.
type KnowledgeEntry struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	KBID            uint       `gorm:"column:kb_id;not null;index" json:"kb_id"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	Status          string     `gorm:"type:varchar(20);not null;default:'in_progress';index" json:"status"`
	ExecutionID     *string    `gorm:"type:varchar(100)" json:"execution_id,omitempty"`
	ExternalEntryID *string    `gorm:"type:varchar(100);index" json:"external_entry_id,omitempty"`
	PollDeadline    *time.Time `gorm:"type:timestamp;default:null" json:"poll_deadline,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	KB *KnowledgeBase `gorm:"foreignKey:KBID;constraint:OnDelete:CASCADE" json:"-"`
}
