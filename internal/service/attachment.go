package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/storage"
	"postdrop/backend/internal/storage/filesystem"
)

var (
	// ErrAttachmentTooLarge is returned before any write when the content
	// exceeds the configured per-file ceiling.
	ErrAttachmentTooLarge = errors.New("attachment exceeds maximum size")
	// ErrStorageWriteFailed is returned when the blob cannot be written; no
	// row is persisted in that case.
	ErrStorageWriteFailed = errors.New("failed to write attachment blob")
)

// AttachmentService owns attachment blobs and their metadata rows. It
// guarantees there is never a row without a readable blob inside the
// attachment root, and never serves a blob from outside it.
type AttachmentService struct {
	store   storage.Store
	blobs   *filesystem.Store
	maxSize int64
	log     *zap.Logger
}

// NewAttachmentService creates the attachment store service.
func NewAttachmentService(store storage.Store, blobs *filesystem.Store, maxSize int64, log *zap.Logger) *AttachmentService {
	return &AttachmentService{
		store:   store,
		blobs:   blobs,
		maxSize: maxSize,
		log:     log,
	}
}

// Save sanitizes the filename, enforces the size ceiling, writes the blob
// under a fresh opaque identifier and persists the metadata row. On any
// failure no partial state survives: a blob write failure leaves no row, a
// row failure unlinks the blob.
func (s *AttachmentService) Save(messageID, filename, contentType string, content []byte) (*domain.Attachment, error) {
	if int64(len(content)) > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrAttachmentTooLarge, len(content), s.maxSize)
	}

	sanitized := filesystem.SanitizeFilename(filename)
	id := uuid.NewString()

	location, err := s.blobs.Save(id, sanitized, content)
	if err != nil {
		s.log.Error("attachment blob write failed",
			zap.String("message_id", messageID),
			zap.String("filename", sanitized),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	attachment := &domain.Attachment{
		ID:           id,
		MessageID:    messageID,
		Filename:     sanitized,
		ContentType:  contentType,
		Size:         int64(len(content)),
		BlobLocation: location,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.SaveAttachment(attachment); err != nil {
		_ = s.blobs.Remove(location)
		return nil, err
	}

	return attachment, nil
}

// Get returns an attachment row by ID.
func (s *AttachmentService) Get(id string) (*domain.Attachment, error) {
	return s.store.GetAttachment(id)
}

// Read returns the blob bytes for the attachment. The blob location is
// containment-checked on every read, independent of how the record was
// obtained.
func (s *AttachmentService) Read(attachment *domain.Attachment) ([]byte, error) {
	content, err := s.blobs.Read(attachment.BlobLocation)
	if errors.Is(err, filesystem.ErrBlobNotFound) {
		return nil, storage.ErrAttachmentNotFound
	}
	return content, err
}

// Delete unlinks the blob best-effort (containment re-verified, errors
// logged) and then removes the row.
func (s *AttachmentService) Delete(id string) error {
	attachment, err := s.store.GetAttachment(id)
	if errors.Is(err, storage.ErrAttachmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.blobs.Remove(attachment.BlobLocation); err != nil {
		s.log.Warn("attachment blob unlink failed",
			zap.String("attachment_id", id),
			zap.String("location", attachment.BlobLocation),
			zap.Error(err),
		)
	}
	return s.store.DeleteAttachment(id)
}

// DeleteByMessage removes every attachment owned by the message, files
// first.
func (s *AttachmentService) DeleteByMessage(messageID string) (int, error) {
	attachments, err := s.store.ListAttachmentsByMessage(messageID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, att := range attachments {
		if err := s.Delete(att.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ListByMessage returns the message's attachment rows.
func (s *AttachmentService) ListByMessage(messageID string) ([]domain.Attachment, error) {
	return s.store.ListAttachmentsByMessage(messageID)
}
