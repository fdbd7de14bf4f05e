package memory

import (
	"sort"
	"sync"
	"time"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/storage"
)

// Store keeps inboxes, messages and attachment rows in process memory. It is
// the default backend for development and tests; expiry is never applied
// lazily here, the reclamation sweep owns row removal.
type Store struct {
	mu          sync.RWMutex
	inboxes     map[string]*domain.Inbox
	byAddress   map[string]string                     // address -> inboxID
	messages    map[string]map[string]*domain.Message // inboxID -> messageID -> message
	attachments map[string]*domain.Attachment         // attachmentID -> attachment
	byMessage   map[string]map[string]struct{}        // messageID -> set of attachmentIDs
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		inboxes:     make(map[string]*domain.Inbox),
		byAddress:   make(map[string]string),
		messages:    make(map[string]map[string]*domain.Message),
		attachments: make(map[string]*domain.Attachment),
		byMessage:   make(map[string]map[string]struct{}),
	}
}

// SaveInbox stores a new inbox. The address index is the uniqueness arbiter:
// a second insert for an address still held by any existing row fails with
// ErrDuplicateAddress, mirroring a relational unique constraint.
func (s *Store) SaveInbox(inbox *domain.Inbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byAddress[inbox.Address]; ok && existingID != inbox.ID {
		return storage.ErrDuplicateAddress
	}

	cp := *inbox
	s.inboxes[inbox.ID] = &cp
	s.byAddress[inbox.Address] = inbox.ID
	return nil
}

// GetInbox returns the inbox with the given ID, expired or not.
func (s *Store) GetInbox(id string) (*domain.Inbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inbox, ok := s.inboxes[id]
	if !ok {
		return nil, storage.ErrInboxNotFound
	}
	cp := *inbox
	return &cp, nil
}

// GetInboxByAddress returns the inbox owning the address, expired or not.
func (s *Store) GetInboxByAddress(address string) (*domain.Inbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrInboxNotFound
	}
	cp := *s.inboxes[id]
	return &cp, nil
}

// TouchInbox updates LastActivityAt. ExpiresAt is never modified here.
func (s *Store) TouchInbox(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[id]
	if !ok {
		return storage.ErrInboxNotFound
	}
	inbox.LastActivityAt = at
	return nil
}

// ListExpiredInboxes returns a snapshot of every inbox past its expiry.
func (s *Store) ListExpiredInboxes(now time.Time) ([]domain.Inbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []domain.Inbox
	for _, inbox := range s.inboxes {
		if !inbox.ExpiresAt.After(now) {
			expired = append(expired, *inbox)
		}
	}
	return expired, nil
}

// DeleteInbox removes the inbox row only. Dependent messages and attachments
// are the caller's responsibility.
func (s *Store) DeleteInbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.inboxes[id]
	if !ok {
		return nil
	}
	delete(s.byAddress, inbox.Address)
	delete(s.inboxes, id)
	return nil
}

// DeleteExpiredInboxes removes every inbox past its expiry and returns the
// count. No cascade; the reclamation sweep orchestrates dependent cleanup.
func (s *Store) DeleteExpiredInboxes(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, inbox := range s.inboxes {
		if !inbox.ExpiresAt.After(now) {
			delete(s.byAddress, inbox.Address)
			delete(s.inboxes, id)
			count++
		}
	}
	return count, nil
}

// SaveMessage stores a message under its inbox.
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inboxes[message.InboxID]; !ok {
		return storage.ErrInboxNotFound
	}

	if _, ok := s.messages[message.InboxID]; !ok {
		s.messages[message.InboxID] = make(map[string]*domain.Message)
	}
	cp := *message
	cp.Attachments = nil
	s.messages[message.InboxID][message.ID] = &cp
	return nil
}

// ListMessages returns the inbox's messages ordered most-recent-first.
func (s *Store) ListMessages(inboxID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.inboxes[inboxID]; !ok {
		return nil, storage.ErrInboxNotFound
	}

	msgMap := s.messages[inboxID]
	result := make([]domain.Message, 0, len(msgMap))
	for _, msg := range msgMap {
		result = append(result, *msg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// GetMessage returns a single message scoped to its inbox.
func (s *Store) GetMessage(inboxID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgMap, ok := s.messages[inboxID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	msg, ok := msgMap[messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

// DeleteMessage removes a single message row. Deleting an absent row is a
// no-op so the reclamation sweep stays idempotent.
func (s *Store) DeleteMessage(inboxID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msgMap, ok := s.messages[inboxID]; ok {
		delete(msgMap, messageID)
		if len(msgMap) == 0 {
			delete(s.messages, inboxID)
		}
	}
	return nil
}

// DeleteMessagesByInbox removes every message owned by the inbox.
func (s *Store) DeleteMessagesByInbox(inboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.messages[inboxID])
	delete(s.messages, inboxID)
	return count, nil
}

// SaveAttachment stores an attachment metadata row. Content is not kept.
func (s *Store) SaveAttachment(attachment *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *attachment
	cp.Content = nil
	s.attachments[attachment.ID] = &cp

	if _, ok := s.byMessage[attachment.MessageID]; !ok {
		s.byMessage[attachment.MessageID] = make(map[string]struct{})
	}
	s.byMessage[attachment.MessageID][attachment.ID] = struct{}{}
	return nil
}

// GetAttachment returns an attachment row by ID.
func (s *Store) GetAttachment(id string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attachments[id]
	if !ok {
		return nil, storage.ErrAttachmentNotFound
	}
	cp := *att
	return &cp, nil
}

// ListAttachmentsByMessage returns every attachment owned by the message.
func (s *Store) ListAttachmentsByMessage(messageID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Attachment, 0)
	for id := range s.byMessage[messageID] {
		if att, ok := s.attachments[id]; ok {
			result = append(result, *att)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListOrphanAttachments returns attachment rows whose owning message row no
// longer exists anywhere in the store.
func (s *Store) ListOrphanAttachments() ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make(map[string]struct{})
	for _, msgMap := range s.messages {
		for id := range msgMap {
			owned[id] = struct{}{}
		}
	}

	var orphans []domain.Attachment
	for _, att := range s.attachments {
		if _, ok := owned[att.MessageID]; !ok {
			orphans = append(orphans, *att)
		}
	}
	return orphans, nil
}

// DeleteAttachment removes an attachment row; absent rows are a no-op.
func (s *Store) DeleteAttachment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if att, ok := s.attachments[id]; ok {
		if set, ok := s.byMessage[att.MessageID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.byMessage, att.MessageID)
			}
		}
		delete(s.attachments, id)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// Health always reports healthy.
func (s *Store) Health() error { return nil }
