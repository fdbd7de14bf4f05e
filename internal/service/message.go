package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/storage"
)

// MessageService persists parsed messages and fans their attachments out to
// the attachment store.
type MessageService struct {
	store       storage.Store
	attachments *AttachmentService
	log         *zap.Logger
}

// NewMessageService creates the message service.
func NewMessageService(store storage.Store, attachments *AttachmentService, log *zap.Logger) *MessageService {
	return &MessageService{
		store:       store,
		attachments: attachments,
		log:         log,
	}
}

// CreateMessageInput carries one parsed inbound message.
type CreateMessageInput struct {
	InboxID     string
	From        string
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Raw         string
	ReceivedAt  time.Time
	Attachments []*domain.Attachment
}

// Create persists the message row, touches the owning inbox and saves each
// attachment. An individual attachment failure is logged and skipped; it
// never fails the message or the remaining attachments.
func (s *MessageService) Create(input CreateMessageInput) (*domain.Message, error) {
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	message := &domain.Message{
		ID:         uuid.NewString(),
		InboxID:    input.InboxID,
		From:       input.From,
		To:         input.To,
		Subject:    input.Subject,
		TextBody:   input.TextBody,
		HTMLBody:   input.HTMLBody,
		ReceivedAt: receivedAt,
		Raw:        input.Raw,
	}

	if err := s.store.SaveMessage(message); err != nil {
		return nil, err
	}

	if err := s.store.TouchInbox(input.InboxID, receivedAt); err != nil {
		s.log.Warn("failed to touch inbox after delivery",
			zap.String("inbox_id", input.InboxID),
			zap.Error(err),
		)
	}

	stored := make([]*domain.Attachment, 0, len(input.Attachments))
	for _, att := range input.Attachments {
		if att == nil {
			continue
		}
		saved, err := s.attachments.Save(message.ID, att.Filename, att.ContentType, att.Content)
		if err != nil {
			s.log.Warn("attachment skipped",
				zap.String("message_id", message.ID),
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			continue
		}
		stored = append(stored, saved)
	}
	message.Attachments = stored

	return message, nil
}

// List returns the inbox's messages, most recent first.
func (s *MessageService) List(inboxID string) ([]domain.Message, error) {
	return s.store.ListMessages(inboxID)
}

// Get returns a message with its attachment rows loaded.
func (s *MessageService) Get(inboxID, messageID string) (*domain.Message, error) {
	message, err := s.store.GetMessage(inboxID, messageID)
	if err != nil {
		return nil, err
	}

	attachments, err := s.store.ListAttachmentsByMessage(messageID)
	if err != nil {
		return nil, err
	}
	message.Attachments = make([]*domain.Attachment, len(attachments))
	for i := range attachments {
		message.Attachments[i] = &attachments[i]
	}
	return message, nil
}

// Delete removes a message and its attachments, files first.
func (s *MessageService) Delete(inboxID, messageID string) error {
	if _, err := s.attachments.DeleteByMessage(messageID); err != nil {
		return err
	}
	return s.store.DeleteMessage(inboxID, messageID)
}
