package storage

import (
	"errors"
	"time"

	"postdrop/backend/internal/domain"
)

var (
	// ErrInboxNotFound is returned when no inbox matches the lookup.
	ErrInboxNotFound = errors.New("inbox not found")
	// ErrDuplicateAddress is returned when an unexpired inbox already owns
	// the address. The store's uniqueness constraint on address is the
	// arbiter of the create race; callers treat this as "fetch the winner".
	ErrDuplicateAddress = errors.New("address already in use")
	// ErrMessageNotFound is returned when no message matches the lookup.
	ErrMessageNotFound = errors.New("message not found")
	// ErrAttachmentNotFound is returned when no attachment row matches.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// InboxRepository defines inbox persistence operations.
type InboxRepository interface {
	SaveInbox(inbox *domain.Inbox) error
	GetInbox(id string) (*domain.Inbox, error)
	GetInboxByAddress(address string) (*domain.Inbox, error)
	TouchInbox(id string, at time.Time) error
	ListExpiredInboxes(now time.Time) ([]domain.Inbox, error)
	DeleteInbox(id string) error
	DeleteExpiredInboxes(now time.Time) (int, error)
}

// MessageRepository defines message persistence operations. Listings are
// ordered most-recent-first by ReceivedAt.
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	ListMessages(inboxID string) ([]domain.Message, error)
	GetMessage(inboxID, messageID string) (*domain.Message, error)
	DeleteMessage(inboxID, messageID string) error
	DeleteMessagesByInbox(inboxID string) (int, error)
}

// AttachmentRepository defines attachment metadata persistence. Blob content
// lives in the filesystem store; rows only carry the location.
type AttachmentRepository interface {
	SaveAttachment(attachment *domain.Attachment) error
	GetAttachment(id string) (*domain.Attachment, error)
	ListAttachmentsByMessage(messageID string) ([]domain.Attachment, error)
	// ListOrphanAttachments returns rows whose owning message no longer
	// exists, for reconciliation by the reclamation sweep.
	ListOrphanAttachments() ([]domain.Attachment, error)
	DeleteAttachment(id string) error
}

// Store is the full persistence surface shared by the ingestion pipeline,
// the query API and the reclamation scheduler.
type Store interface {
	InboxRepository
	MessageRepository
	AttachmentRepository

	Close() error
	Health() error
}
