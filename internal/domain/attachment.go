package domain

import "time"

// Attachment is one binary part of a Message, stored as a blob on disk plus
// this metadata row. BlobLocation is relative to the configured attachment
// root and must always resolve inside it.
type Attachment struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID    string    `json:"messageId" gorm:"type:varchar(36);index;not null"`
	Filename     string    `json:"filename" gorm:"type:varchar(255)"`
	ContentType  string    `json:"contentType" gorm:"type:varchar(100)"`
	Size         int64     `json:"size"`
	BlobLocation string    `json:"blobLocation,omitempty" gorm:"type:varchar(500)"`
	CreatedAt    time.Time `json:"createdAt"`

	// Content is carried between the parser and the store; never persisted
	// in the database.
	Content []byte `json:"-" gorm:"-"`
}
