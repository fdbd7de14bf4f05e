package smtp

import (
	"bytes"
	"io"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/service"
)

// Notifier receives a fire-and-forget event once a message row and its
// attachments are persisted.
type Notifier interface {
	NotifyNewMessage(inboxID, messageID string)
}

// Backend implements the go-smtp Backend interface.
//
// This is a receiving-only server: it never relays. A recipient address is
// validated for syntax during RCPT but its existence is never revealed to
// the sender; mail for an unknown or expired inbox is accepted on the wire
// and dropped.
type Backend struct {
	inboxes        *service.InboxService
	messages       *service.MessageService
	maxMessageSize int64
	notifiers      []Notifier
	metrics        *monitoring.Metrics
	log            *zap.Logger
}

// NewBackend creates the SMTP backend.
func NewBackend(
	inboxes *service.InboxService,
	messages *service.MessageService,
	maxMessageSize int64,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Backend {
	return &Backend{
		inboxes:        inboxes,
		messages:       messages,
		maxMessageSize: maxMessageSize,
		metrics:        metrics,
		log:            log,
	}
}

// AddNotifier registers a post-persist notifier.
func (b *Backend) AddNotifier(n Notifier) {
	if n != nil {
		b.notifiers = append(b.notifiers, n)
	}
}

// NewSession starts a session for a new connection. Connections are
// accepted unconditionally; the limiter runs below this layer.
func (b *Backend) NewSession(*gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend    *Backend
	from       string
	recipients []string
}

// Mail validates the envelope sender.
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	addr, err := domain.NormalizeAddress(from)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
			Message:      "invalid sender address",
		}
	}
	s.from = addr
	return nil
}

// Rcpt validates recipient syntax only. Whether the inbox exists is decided
// after the payload is read, so the response never leaks which addresses
// are live.
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr, err := domain.NormalizeAddress(to)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data reads the payload under a running-total size guard and delivers it.
// Delivery failures that stem from the recipient (unknown, expired,
// unparseable payload) are swallowed: the sender sees success.
func (s *session) Data(r io.Reader) error {
	receivedAt := time.Now().UTC()

	raw, err := s.readLimited(r)
	if err != nil {
		return err
	}
	s.backend.metrics.MessagesReceived.Inc()
	s.backend.metrics.BytesIngested.Add(float64(len(raw)))

	if len(s.recipients) == 0 {
		s.drop("no_recipient", "")
		return nil
	}
	addr := s.recipients[0]

	parsed, err := ParseEmail(raw)
	if err != nil {
		s.backend.log.Warn("unparseable payload dropped",
			zap.String("recipient", addr),
			zap.Error(err),
		)
		s.backend.metrics.MessagesDropped.WithLabelValues("parse_failure").Inc()
		return nil
	}

	inbox, err := s.backend.inboxes.GetByAddress(addr)
	if err != nil {
		s.drop("unknown_recipient", addr)
		return nil
	}
	// Re-checked here so a sweep between RCPT and DATA cannot resurrect the
	// inbox through a late delivery.
	if !s.backend.inboxes.IsValid(inbox) {
		s.drop("expired_inbox", addr)
		return nil
	}

	message, err := s.backend.messages.Create(service.CreateMessageInput{
		InboxID:     inbox.ID,
		From:        s.from,
		To:          addr,
		Subject:     parsed.Subject,
		TextBody:    parsed.Text,
		HTMLBody:    parsed.HTML,
		Raw:         string(raw),
		ReceivedAt:  receivedAt,
		Attachments: parsed.Attachments,
	})
	if err != nil {
		s.backend.log.Error("message persistence failed",
			zap.String("inbox_id", inbox.ID),
			zap.Error(err),
		)
		s.backend.metrics.MessagesDropped.WithLabelValues("store_failure").Inc()
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary storage failure",
		}
	}
	s.backend.metrics.MessagesPersisted.Inc()

	for _, n := range s.backend.notifiers {
		n.NotifyNewMessage(inbox.ID, message.ID)
	}
	return nil
}

// readLimited accumulates the payload in chunks so the ceiling is enforced
// as bytes arrive, not after.
func (s *session) readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	var total int64

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > s.backend.maxMessageSize {
				s.backend.metrics.MessagesDropped.WithLabelValues("too_large").Inc()
				return nil, &gosmtp.SMTPError{
					Code:         552,
					EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
					Message:      "message exceeds maximum size",
				}
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *session) drop(reason, addr string) {
	s.backend.log.Debug("message dropped",
		zap.String("reason", reason),
		zap.String("recipient", addr),
	)
	s.backend.metrics.MessagesDropped.WithLabelValues(reason).Inc()
}

// AuthPlain accepts anything; the service is anonymous.
func (s *session) AuthPlain(_, _ string) error {
	return nil
}

// Reset clears the envelope.
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout ends the session.
func (s *session) Logout() error {
	return nil
}
