package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/service"
	"postdrop/backend/internal/storage"
	"postdrop/backend/internal/storage/filesystem"
)

// Handler serves the public inbox API.
type Handler struct {
	inboxes     *service.InboxService
	messages    *service.MessageService
	attachments *service.AttachmentService
	log         *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	inboxes *service.InboxService,
	messages *service.MessageService,
	attachments *service.AttachmentService,
	log *zap.Logger,
) *Handler {
	return &Handler{
		inboxes:     inboxes,
		messages:    messages,
		attachments: attachments,
		log:         log,
	}
}

type createInboxRequest struct {
	Address string `json:"address"`
}

type inboxResponse struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func toInboxResponse(inbox *domain.Inbox) inboxResponse {
	return inboxResponse{
		ID:             inbox.ID,
		Address:        inbox.Address,
		CreatedAt:      inbox.CreatedAt,
		ExpiresAt:      inbox.ExpiresAt,
		LastActivityAt: inbox.LastActivityAt,
	}
}

// CreateInbox allocates an inbox. Without an address in the body a random
// local part is minted on the configured domain.
func (h *Handler) CreateInbox(c *gin.Context) {
	var req createInboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request body")
			return
		}
	}

	var (
		inbox *domain.Inbox
		err   error
	)
	if req.Address == "" {
		inbox, err = h.inboxes.CreateRandom()
	} else {
		inbox, err = h.inboxes.Create(req.Address)
	}
	switch {
	case err == nil:
		Created(c, toInboxResponse(inbox))
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrAddressTooLong):
		BadRequest(c, "invalid address")
	case errors.Is(err, service.ErrDuplicateAddress):
		Conflict(c, "address already in use")
	default:
		h.log.Error("inbox creation failed", zap.Error(err))
		InternalError(c, "inbox creation failed")
	}
}

// GetInbox returns the inbox. An expired inbox reads as absent.
func (h *Handler) GetInbox(c *gin.Context) {
	inbox, ok := h.liveInbox(c)
	if !ok {
		return
	}
	Success(c, toInboxResponse(inbox))
}

// DeleteInbox removes the inbox and everything it owns.
func (h *Handler) DeleteInbox(c *gin.Context) {
	id := c.Param("id")
	inbox, err := h.inboxes.Get(id)
	if errors.Is(err, storage.ErrInboxNotFound) {
		NotFound(c, "inbox not found")
		return
	}
	if err != nil {
		InternalError(c, "inbox lookup failed")
		return
	}

	messages, err := h.messages.List(inbox.ID)
	if err != nil {
		InternalError(c, "inbox delete failed")
		return
	}
	for _, message := range messages {
		if err := h.messages.Delete(inbox.ID, message.ID); err != nil {
			h.log.Error("message cascade failed",
				zap.String("message_id", message.ID),
				zap.Error(err),
			)
			InternalError(c, "inbox delete failed")
			return
		}
	}
	if err := h.inboxes.Delete(inbox.ID); err != nil {
		InternalError(c, "inbox delete failed")
		return
	}
	NoContent(c)
}

type messageSummary struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	ReceivedAt  time.Time `json:"receivedAt"`
	Attachments int       `json:"attachments"`
}

type paginationInfo struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// parsePagination reads the page and limit query parameters. Out-of-range
// or unparseable values fall back to the defaults rather than erroring.
func parsePagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	return page, limit
}

// ListMessages returns one page of the inbox's messages, most recent first.
func (h *Handler) ListMessages(c *gin.Context) {
	inbox, ok := h.liveInbox(c)
	if !ok {
		return
	}
	page, limit := parsePagination(c)

	messages, err := h.messages.List(inbox.ID)
	if err != nil {
		InternalError(c, "message listing failed")
		return
	}

	total := len(messages)
	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	summaries := make([]messageSummary, 0, end-start)
	for _, message := range messages[start:end] {
		rows, err := h.attachments.ListByMessage(message.ID)
		if err != nil {
			InternalError(c, "message listing failed")
			return
		}
		summaries = append(summaries, messageSummary{
			ID:          message.ID,
			From:        message.From,
			Subject:     message.Subject,
			ReceivedAt:  message.ReceivedAt,
			Attachments: len(rows),
		})
	}

	h.touch(inbox.ID)
	Success(c, gin.H{
		"messages": summaries,
		"pagination": paginationInfo{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	})
}

type attachmentSummary struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type messageDetail struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Subject     string              `json:"subject"`
	TextBody    string              `json:"textBody"`
	HTMLBody    string              `json:"htmlBody"`
	ReceivedAt  time.Time           `json:"receivedAt"`
	Attachments []attachmentSummary `json:"attachments"`
}

// GetMessage returns one message with its attachment metadata.
func (h *Handler) GetMessage(c *gin.Context) {
	inbox, ok := h.liveInbox(c)
	if !ok {
		return
	}

	message, err := h.messages.Get(inbox.ID, c.Param("messageId"))
	if errors.Is(err, storage.ErrMessageNotFound) {
		NotFound(c, "message not found")
		return
	}
	if err != nil {
		InternalError(c, "message lookup failed")
		return
	}

	detail := messageDetail{
		ID:          message.ID,
		From:        message.From,
		To:          message.To,
		Subject:     message.Subject,
		TextBody:    message.TextBody,
		HTMLBody:    message.HTMLBody,
		ReceivedAt:  message.ReceivedAt,
		Attachments: make([]attachmentSummary, 0, len(message.Attachments)),
	}
	for _, att := range message.Attachments {
		detail.Attachments = append(detail.Attachments, attachmentSummary{
			ID:          att.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}

	h.touch(inbox.ID)
	Success(c, detail)
}

// DeleteMessage removes one message and its attachments.
func (h *Handler) DeleteMessage(c *gin.Context) {
	inbox, ok := h.liveInbox(c)
	if !ok {
		return
	}

	messageID := c.Param("messageId")
	if _, err := h.messages.Get(inbox.ID, messageID); errors.Is(err, storage.ErrMessageNotFound) {
		NotFound(c, "message not found")
		return
	}
	if err := h.messages.Delete(inbox.ID, messageID); err != nil {
		InternalError(c, "message delete failed")
		return
	}
	NoContent(c)
}

// DownloadAttachment streams the attachment bytes. The blob location is
// containment-checked inside the attachment store on every read.
func (h *Handler) DownloadAttachment(c *gin.Context) {
	inbox, ok := h.liveInbox(c)
	if !ok {
		return
	}

	message, err := h.messages.Get(inbox.ID, c.Param("messageId"))
	if errors.Is(err, storage.ErrMessageNotFound) {
		NotFound(c, "message not found")
		return
	}
	if err != nil {
		InternalError(c, "message lookup failed")
		return
	}

	attachmentID := c.Param("attachmentId")
	var attachment *domain.Attachment
	for _, att := range message.Attachments {
		if att.ID == attachmentID {
			attachment = att
			break
		}
	}
	if attachment == nil {
		NotFound(c, "attachment not found")
		return
	}

	content, err := h.attachments.Read(attachment)
	switch {
	case errors.Is(err, storage.ErrAttachmentNotFound):
		NotFound(c, "attachment not found")
		return
	case errors.Is(err, filesystem.ErrInvalidPath):
		h.log.Error("attachment blob location rejected",
			zap.String("attachment_id", attachment.ID),
			zap.String("location", attachment.BlobLocation),
		)
		NotFound(c, "attachment not found")
		return
	case err != nil:
		InternalError(c, "attachment read failed")
		return
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.Filename))
	c.Data(http.StatusOK, contentType, content)
}

// liveInbox resolves the :id parameter to an unexpired inbox. Expired ones
// are indistinguishable from missing ones.
func (h *Handler) liveInbox(c *gin.Context) (*domain.Inbox, bool) {
	inbox, err := h.inboxes.Get(c.Param("id"))
	if errors.Is(err, storage.ErrInboxNotFound) {
		NotFound(c, "inbox not found")
		return nil, false
	}
	if err != nil {
		InternalError(c, "inbox lookup failed")
		return nil, false
	}
	if !h.inboxes.IsValid(inbox) {
		NotFound(c, "inbox not found")
		return nil, false
	}
	return inbox, true
}

func (h *Handler) touch(inboxID string) {
	if err := h.inboxes.Touch(inboxID); err != nil {
		h.log.Warn("inbox touch failed", zap.String("inbox_id", inboxID), zap.Error(err))
	}
}
