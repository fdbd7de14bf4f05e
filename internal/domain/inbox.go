package domain

import (
	"time"
)

// Inbox is a disposable mailbox bound to a single address for a finite
// lifetime. Expired inboxes stop accepting mail and are removed, together
// with their messages and attachments, by the reclamation sweep.
type Inbox struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address        string    `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt" gorm:"index"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// IsValid reports whether the inbox is still accepting mail at t.
// The boundary is strict: an inbox is invalid at its exact expiry instant.
func (i *Inbox) IsValid(t time.Time) bool {
	if i == nil {
		return false
	}
	return i.ExpiresAt.After(t)
}
