package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/storage"
)

// ErrDuplicateAddress is returned when an unexpired inbox already owns the
// requested address.
var ErrDuplicateAddress = storage.ErrDuplicateAddress

// InboxService is the single source of truth for whether an address is
// currently accepting mail.
type InboxService struct {
	store    storage.Store
	lifetime time.Duration
	domain   string
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewInboxService creates the inbox registry service.
func NewInboxService(store storage.Store, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) *InboxService {
	return &InboxService{
		store:    store,
		lifetime: cfg.Inbox.Lifetime,
		domain:   cfg.Inbox.Domain,
		metrics:  metrics,
		log:      log,
	}
}

// Create allocates a new inbox for the address. If an expired inbox still
// owns the address its rows are cleared first and the address is re-minted.
// The check-then-act window is closed by the store's uniqueness constraint:
// losing the insert race means fetching the winner's record instead of
// failing.
func (s *InboxService) Create(address string) (*domain.Inbox, error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing, lookupErr := s.store.GetInboxByAddress(addr); lookupErr == nil {
		if existing.IsValid(now) {
			return nil, ErrDuplicateAddress
		}
		// Expired predecessor: drop its rows so the address frees up. Its
		// attachments become orphans and are reconciled by the next sweep.
		if _, err := s.store.DeleteMessagesByInbox(existing.ID); err != nil {
			return nil, fmt.Errorf("clear expired inbox %s: %w", existing.ID, err)
		}
		if err := s.store.DeleteInbox(existing.ID); err != nil {
			return nil, fmt.Errorf("clear expired inbox %s: %w", existing.ID, err)
		}
	}

	inbox := &domain.Inbox{
		ID:             uuid.NewString(),
		Address:        addr,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.lifetime),
		LastActivityAt: now,
	}

	if err := s.store.SaveInbox(inbox); err != nil {
		if errors.Is(err, storage.ErrDuplicateAddress) {
			// Lost the race; the winner's record is the answer.
			return s.store.GetInboxByAddress(addr)
		}
		return nil, err
	}

	s.metrics.InboxesCreated.Inc()
	s.log.Info("inbox created",
		zap.String("inbox_id", inbox.ID),
		zap.String("address", inbox.Address),
		zap.Time("expires_at", inbox.ExpiresAt),
	)
	return inbox, nil
}

// CreateRandom mints an inbox on the configured domain with a random local
// part.
func (s *InboxService) CreateRandom() (*domain.Inbox, error) {
	for attempt := 0; attempt < 3; attempt++ {
		local := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		inbox, err := s.Create(fmt.Sprintf("%s@%s", local, s.domain))
		if errors.Is(err, ErrDuplicateAddress) {
			continue
		}
		return inbox, err
	}
	return nil, ErrDuplicateAddress
}

// Get returns an inbox by ID, expired or not.
func (s *InboxService) Get(id string) (*domain.Inbox, error) {
	return s.store.GetInbox(id)
}

// GetByAddress returns the inbox owning the address, expired or not.
func (s *InboxService) GetByAddress(address string) (*domain.Inbox, error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.GetInboxByAddress(addr)
}

// Touch records activity on the inbox. Expiry is never extended.
func (s *InboxService) Touch(id string) error {
	return s.store.TouchInbox(id, time.Now().UTC())
}

// IsValid reports whether the inbox is currently accepting mail.
func (s *InboxService) IsValid(inbox *domain.Inbox) bool {
	return inbox.IsValid(time.Now().UTC())
}

// Delete removes the inbox row only; cascading cleanup of messages and
// attachments is orchestrated by the reclamation scheduler.
func (s *InboxService) Delete(id string) error {
	if _, err := s.store.GetInbox(id); err != nil {
		return err
	}
	if err := s.store.DeleteInbox(id); err != nil {
		return err
	}
	s.metrics.InboxesDeleted.Inc()
	return nil
}

// DeleteExpired bulk-removes every expired inbox row and returns the count.
func (s *InboxService) DeleteExpired() (int, error) {
	return s.store.DeleteExpiredInboxes(time.Now().UTC())
}
