package domain

import "time"

// Message is one persisted inbound email belonging to an Inbox.
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InboxID    string    `json:"inboxId" gorm:"type:varchar(36);index;not null"`
	From       string    `json:"from" gorm:"type:varchar(255)"`
	To         string    `json:"to" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	TextBody   string    `json:"textBody" gorm:"type:text"`
	HTMLBody   string    `json:"htmlBody" gorm:"type:text"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index"`
	Raw        string    `json:"raw,omitempty" gorm:"type:mediumtext"`

	// Loaded on demand, never persisted on the message row itself.
	Attachments []*Attachment `json:"attachments,omitempty" gorm:"-"`
}
