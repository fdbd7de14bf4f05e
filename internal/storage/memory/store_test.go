package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/storage"
)

func newInbox(address string, expiresAt time.Time) *domain.Inbox {
	now := time.Now().UTC()
	return &domain.Inbox{
		ID:             uuid.NewString(),
		Address:        address,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		LastActivityAt: now,
	}
}

func TestStoreInboxLifecycle(t *testing.T) {
	s := NewStore()
	inbox := newInbox("a@x.com", time.Now().Add(time.Hour))

	require.NoError(t, s.SaveInbox(inbox))

	got, err := s.GetInbox(inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, inbox.Address, got.Address)

	byAddr, err := s.GetInboxByAddress("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, inbox.ID, byAddr.ID)

	_, err = s.GetInbox("missing")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)

	require.NoError(t, s.DeleteInbox(inbox.ID))
	_, err = s.GetInboxByAddress("a@x.com")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
}

func TestStoreDuplicateAddress(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SaveInbox(newInbox("a@x.com", time.Now().Add(time.Hour))))

	err := s.SaveInbox(newInbox("a@x.com", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, storage.ErrDuplicateAddress)
}

func TestStoreTouchInbox(t *testing.T) {
	s := NewStore()
	inbox := newInbox("a@x.com", time.Now().Add(time.Hour))
	require.NoError(t, s.SaveInbox(inbox))

	at := time.Now().Add(10 * time.Minute).UTC()
	require.NoError(t, s.TouchInbox(inbox.ID, at))

	got, err := s.GetInbox(inbox.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(at))
	assert.True(t, got.ExpiresAt.Equal(inbox.ExpiresAt), "touch must not move expiry")
}

func TestStoreDeleteExpiredInboxes(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()

	require.NoError(t, s.SaveInbox(newInbox("expired@x.com", now.Add(-time.Minute))))
	require.NoError(t, s.SaveInbox(newInbox("live@x.com", now.Add(time.Hour))))

	expired, err := s.ListExpiredInboxes(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired@x.com", expired[0].Address)

	count, err := s.DeleteExpiredInboxes(now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.GetInboxByAddress("expired@x.com")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
	_, err = s.GetInboxByAddress("live@x.com")
	assert.NoError(t, err)

	// Idempotent: nothing left to remove.
	count, err = s.DeleteExpiredInboxes(now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreMessageOrdering(t *testing.T) {
	s := NewStore()
	inbox := newInbox("a@x.com", time.Now().Add(time.Hour))
	require.NoError(t, s.SaveInbox(inbox))

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveMessage(&domain.Message{
			ID:         uuid.NewString(),
			InboxID:    inbox.ID,
			Subject:    string(rune('a' + i)),
			ReceivedAt: base.Add(time.Duration(i) * 10 * time.Millisecond),
		}))
	}

	msgs, err := s.ListMessages(inbox.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Subject)
	assert.Equal(t, "a", msgs[2].Subject)
}

func TestStoreSaveMessageUnknownInbox(t *testing.T) {
	s := NewStore()
	err := s.SaveMessage(&domain.Message{ID: uuid.NewString(), InboxID: "nope"})
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
}

func TestStoreOrphanAttachments(t *testing.T) {
	s := NewStore()
	inbox := newInbox("a@x.com", time.Now().Add(time.Hour))
	require.NoError(t, s.SaveInbox(inbox))

	msg := &domain.Message{ID: uuid.NewString(), InboxID: inbox.ID, ReceivedAt: time.Now()}
	require.NoError(t, s.SaveMessage(msg))

	owned := &domain.Attachment{ID: uuid.NewString(), MessageID: msg.ID, Filename: "a.txt"}
	orphan := &domain.Attachment{ID: uuid.NewString(), MessageID: "gone", Filename: "b.txt"}
	require.NoError(t, s.SaveAttachment(owned))
	require.NoError(t, s.SaveAttachment(orphan))

	orphans, err := s.ListOrphanAttachments()
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan.ID, orphans[0].ID)

	// Deleting the message orphans its attachment too.
	require.NoError(t, s.DeleteMessage(inbox.ID, msg.ID))
	orphans, err = s.ListOrphanAttachments()
	require.NoError(t, err)
	assert.Len(t, orphans, 2)
}

func TestStoreAttachmentRows(t *testing.T) {
	s := NewStore()
	att := &domain.Attachment{
		ID:        uuid.NewString(),
		MessageID: "m1",
		Filename:  "report.pdf",
		Size:      2048,
		Content:   []byte("never persisted"),
	}
	require.NoError(t, s.SaveAttachment(att))

	got, err := s.GetAttachment(att.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), got.Size)
	assert.Nil(t, got.Content, "content must not be retained in rows")

	list, err := s.ListAttachmentsByMessage("m1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteAttachment(att.ID))
	_, err = s.GetAttachment(att.ID)
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)

	// Absent rows are a no-op.
	assert.NoError(t, s.DeleteAttachment(att.ID))
}
