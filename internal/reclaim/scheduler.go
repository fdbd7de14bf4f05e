package reclaim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/service"
	"postdrop/backend/internal/storage"
)

// Scheduler owns the cascade for expired inboxes. Store delete operations
// are deliberately row-only; this is the single place where an inbox, its
// messages, their attachment rows and the attachment blobs are removed
// together, files first so a crash leaves orphan rows (reconciled next
// sweep) rather than orphan files.
type Scheduler struct {
	store       storage.Store
	attachments *service.AttachmentService
	interval    time.Duration
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

// NewScheduler creates the reclamation scheduler.
func NewScheduler(
	store storage.Store,
	attachments *service.AttachmentService,
	interval time.Duration,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Scheduler {
	return &Scheduler{
		store:       store,
		attachments: attachments,
		interval:    interval,
		metrics:     metrics,
		log:         log,
	}
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.log.Info("reclamation scheduler started", zap.Duration("interval", s.interval))

	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reclamation scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes every expired inbox with its dependents, then reconciles
// orphaned attachment rows. Errors are logged and skipped; the next tick
// retries whatever survives.
func (s *Scheduler) Sweep() {
	s.metrics.SweepRuns.Inc()
	now := time.Now().UTC()

	var inboxCount, messageCount, attachmentCount int

	expired, err := s.store.ListExpiredInboxes(now)
	if err != nil {
		s.log.Error("sweep: listing expired inboxes failed", zap.Error(err))
	}
	for _, inbox := range expired {
		messages, err := s.store.ListMessages(inbox.ID)
		if err != nil {
			s.log.Error("sweep: listing messages failed",
				zap.String("inbox_id", inbox.ID),
				zap.Error(err),
			)
			continue
		}

		failed := false
		for _, message := range messages {
			n, err := s.attachments.DeleteByMessage(message.ID)
			attachmentCount += n
			if err != nil {
				s.log.Error("sweep: attachment cascade failed",
					zap.String("message_id", message.ID),
					zap.Error(err),
				)
				failed = true
				continue
			}
			if err := s.store.DeleteMessage(inbox.ID, message.ID); err != nil {
				s.log.Error("sweep: message delete failed",
					zap.String("message_id", message.ID),
					zap.Error(err),
				)
				failed = true
				continue
			}
			messageCount++
		}
		// The inbox row stays while any dependent survives, so the next
		// sweep picks it up again.
		if failed {
			continue
		}

		if err := s.store.DeleteInbox(inbox.ID); err != nil {
			s.log.Error("sweep: inbox delete failed",
				zap.String("inbox_id", inbox.ID),
				zap.Error(err),
			)
			continue
		}
		inboxCount++
	}

	orphanCount := s.reconcileOrphans()

	s.metrics.InboxesReclaimed.Add(float64(inboxCount))
	s.metrics.MessagesReclaimed.Add(float64(messageCount))
	s.metrics.AttachmentsOrphaned.Add(float64(orphanCount))

	if inboxCount+messageCount+attachmentCount+orphanCount > 0 {
		s.log.Info("sweep completed",
			zap.Int("inboxes", inboxCount),
			zap.Int("messages", messageCount),
			zap.Int("attachments", attachmentCount),
			zap.Int("orphans", orphanCount),
		)
	}
}

// reconcileOrphans removes attachment rows whose owning message no longer
// exists, blob first.
func (s *Scheduler) reconcileOrphans() int {
	orphans, err := s.store.ListOrphanAttachments()
	if err != nil {
		s.log.Error("sweep: orphan scan failed", zap.Error(err))
		return 0
	}

	count := 0
	for _, orphan := range orphans {
		if err := s.attachments.Delete(orphan.ID); err != nil {
			s.log.Error("sweep: orphan delete failed",
				zap.String("attachment_id", orphan.ID),
				zap.Error(err),
			)
			continue
		}
		count++
	}
	return count
}
