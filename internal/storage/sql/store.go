package sql

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/storage"
)

// Store is the relational implementation of storage.Store, backed by MySQL
// or PostgreSQL through GORM. The unique index on inboxes.address is the
// arbiter for concurrent inbox creation.
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore opens the database, configures the pool and migrates the schema.
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driverName {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Inbox{},
		&domain.Message{},
		&domain.Attachment{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, driverName: driverName}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health pings the database.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// SaveInbox inserts an inbox row, mapping the unique-index violation on
// address to storage.ErrDuplicateAddress.
func (s *Store) SaveInbox(inbox *domain.Inbox) error {
	err := s.db.Create(inbox).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDuplicateAddress
	}
	return err
}

// GetInbox returns an inbox by ID, expired or not.
func (s *Store) GetInbox(id string) (*domain.Inbox, error) {
	var inbox domain.Inbox
	err := s.db.First(&inbox, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrInboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inbox, nil
}

// GetInboxByAddress returns the inbox owning the address, expired or not.
func (s *Store) GetInboxByAddress(address string) (*domain.Inbox, error) {
	var inbox domain.Inbox
	err := s.db.First(&inbox, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrInboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inbox, nil
}

// TouchInbox updates LastActivityAt only.
func (s *Store) TouchInbox(id string, at time.Time) error {
	res := s.db.Model(&domain.Inbox{}).
		Where("id = ?", id).
		Update("last_activity_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrInboxNotFound
	}
	return nil
}

// ListExpiredInboxes returns every inbox with ExpiresAt at or before now.
func (s *Store) ListExpiredInboxes(now time.Time) ([]domain.Inbox, error) {
	var inboxes []domain.Inbox
	err := s.db.Where("expires_at <= ?", now).Find(&inboxes).Error
	return inboxes, err
}

// DeleteInbox removes the inbox row only; no cascade.
func (s *Store) DeleteInbox(id string) error {
	return s.db.Delete(&domain.Inbox{}, "id = ?", id).Error
}

// DeleteExpiredInboxes bulk-deletes expired inbox rows and returns the count.
func (s *Store) DeleteExpiredInboxes(now time.Time) (int, error) {
	res := s.db.Where("expires_at <= ?", now).Delete(&domain.Inbox{})
	return int(res.RowsAffected), res.Error
}

// SaveMessage inserts a message row.
func (s *Store) SaveMessage(message *domain.Message) error {
	return s.db.Create(message).Error
}

// ListMessages returns the inbox's messages, most recent first.
func (s *Store) ListMessages(inboxID string) ([]domain.Message, error) {
	var count int64
	if err := s.db.Model(&domain.Inbox{}).Where("id = ?", inboxID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, storage.ErrInboxNotFound
	}

	var messages []domain.Message
	err := s.db.Where("inbox_id = ?", inboxID).
		Order("received_at DESC").
		Find(&messages).Error
	return messages, err
}

// GetMessage returns a message scoped to its inbox.
func (s *Store) GetMessage(inboxID, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.First(&message, "id = ? AND inbox_id = ?", messageID, inboxID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// DeleteMessage removes a single message row; absent rows are a no-op.
func (s *Store) DeleteMessage(inboxID, messageID string) error {
	return s.db.Delete(&domain.Message{}, "id = ? AND inbox_id = ?", messageID, inboxID).Error
}

// DeleteMessagesByInbox removes every message owned by the inbox.
func (s *Store) DeleteMessagesByInbox(inboxID string) (int, error) {
	res := s.db.Where("inbox_id = ?", inboxID).Delete(&domain.Message{})
	return int(res.RowsAffected), res.Error
}

// SaveAttachment inserts an attachment metadata row.
func (s *Store) SaveAttachment(attachment *domain.Attachment) error {
	row := *attachment
	row.Content = nil
	return s.db.Create(&row).Error
}

// GetAttachment returns an attachment row by ID.
func (s *Store) GetAttachment(id string) (*domain.Attachment, error) {
	var attachment domain.Attachment
	err := s.db.First(&attachment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

// ListAttachmentsByMessage returns attachments in creation order.
func (s *Store) ListAttachmentsByMessage(messageID string) ([]domain.Attachment, error) {
	var attachments []domain.Attachment
	err := s.db.Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&attachments).Error
	return attachments, err
}

// ListOrphanAttachments returns attachment rows whose owning message row no
// longer exists.
func (s *Store) ListOrphanAttachments() ([]domain.Attachment, error) {
	var attachments []domain.Attachment
	err := s.db.
		Joins("LEFT JOIN messages ON messages.id = attachments.message_id").
		Where("messages.id IS NULL").
		Find(&attachments).Error
	return attachments, err
}

// DeleteAttachment removes an attachment row; absent rows are a no-op.
func (s *Store) DeleteAttachment(id string) error {
	return s.db.Delete(&domain.Attachment{}, "id = ?", id).Error
}
