package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/storage"
	"postdrop/backend/internal/storage/memory"
)

func testMetrics() *monitoring.Metrics {
	return monitoring.NewMetrics(prometheus.NewRegistry())
}

func testConfig() *config.Config {
	return &config.Config{
		Inbox: config.InboxConfig{
			Lifetime: time.Hour,
			Domain:   "postdrop.local",
		},
		Attachment: config.AttachmentConfig{
			MaxSize: 5 << 20,
		},
	}
}

func TestInboxServiceCreate(t *testing.T) {
	store := memory.NewStore()
	svc := NewInboxService(store, testConfig(), testMetrics(), zap.NewNop())

	inbox, err := svc.Create("  User@Example.COM ")
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", inbox.Address)
	assert.NotEmpty(t, inbox.ID)
	assert.True(t, inbox.ExpiresAt.After(inbox.CreatedAt))
	assert.True(t, svc.IsValid(inbox))
}

func TestInboxServiceCreateInvalidAddress(t *testing.T) {
	svc := NewInboxService(memory.NewStore(), testConfig(), testMetrics(), zap.NewNop())

	_, err := svc.Create("not-an-address")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestInboxServiceCreateDuplicate(t *testing.T) {
	svc := NewInboxService(memory.NewStore(), testConfig(), testMetrics(), zap.NewNop())

	_, err := svc.Create("a@x.com")
	require.NoError(t, err)

	_, err = svc.Create("a@x.com")
	assert.ErrorIs(t, err, ErrDuplicateAddress)
}

func TestInboxServiceRecreateAfterExpiry(t *testing.T) {
	store := memory.NewStore()
	svc := NewInboxService(store, testConfig(), testMetrics(), zap.NewNop())

	now := time.Now().UTC()
	expired := &domain.Inbox{
		ID:             uuid.NewString(),
		Address:        "a@x.com",
		CreatedAt:      now.Add(-2 * time.Hour),
		ExpiresAt:      now.Add(-time.Hour),
		LastActivityAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, store.SaveInbox(expired))

	inbox, err := svc.Create("a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, expired.ID, inbox.ID)
	assert.True(t, svc.IsValid(inbox))
}

func TestInboxServiceCreateRandom(t *testing.T) {
	svc := NewInboxService(memory.NewStore(), testConfig(), testMetrics(), zap.NewNop())

	inbox, err := svc.CreateRandom()
	require.NoError(t, err)
	assert.Contains(t, inbox.Address, "@postdrop.local")

	second, err := svc.CreateRandom()
	require.NoError(t, err)
	assert.NotEqual(t, inbox.Address, second.Address)
}

func TestInboxServiceTouchKeepsExpiry(t *testing.T) {
	store := memory.NewStore()
	svc := NewInboxService(store, testConfig(), testMetrics(), zap.NewNop())

	inbox, err := svc.Create("a@x.com")
	require.NoError(t, err)

	require.NoError(t, svc.Touch(inbox.ID))

	got, err := svc.Get(inbox.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(inbox.ExpiresAt))
	assert.False(t, got.LastActivityAt.Before(inbox.LastActivityAt))
}

func TestInboxServiceGetByAddress(t *testing.T) {
	svc := NewInboxService(memory.NewStore(), testConfig(), testMetrics(), zap.NewNop())

	created, err := svc.Create("a@x.com")
	require.NoError(t, err)

	got, err := svc.GetByAddress("A@X.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetByAddress("other@x.com")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
}

func TestInboxServiceCountsCreatesAndDeletes(t *testing.T) {
	metrics := testMetrics()
	svc := NewInboxService(memory.NewStore(), testConfig(), metrics, zap.NewNop())

	inbox, err := svc.Create("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InboxesCreated))

	// Rejected creates are not counted.
	_, err = svc.Create("a@x.com")
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InboxesCreated))

	require.NoError(t, svc.Delete(inbox.ID))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InboxesDeleted))

	// Neither are deletes of absent inboxes.
	require.Error(t, svc.Delete("missing"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InboxesDeleted))
}

func TestInboxServiceDeleteExpired(t *testing.T) {
	store := memory.NewStore()
	svc := NewInboxService(store, testConfig(), testMetrics(), zap.NewNop())

	now := time.Now().UTC()
	require.NoError(t, store.SaveInbox(&domain.Inbox{
		ID:        uuid.NewString(),
		Address:   "old@x.com",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}))
	_, err := svc.Create("live@x.com")
	require.NoError(t, err)

	count, err := svc.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.GetByAddress("live@x.com")
	assert.NoError(t, err)
}
