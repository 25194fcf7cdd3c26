package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
	"github.com/timmy/gigescrow/internal/storage"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	previewLength       = 80
)

// ChatService runs two-party conversations.
type ChatService struct {
	store     *repository.Store
	storage   storage.ObjectStorage
	notifier  *NotificationService
	maxUpload int64
	logger    *logger.Logger
}

// NewChatService creates a new chat service. objects may be nil, in which
// case file messages are refused.
func NewChatService(store *repository.Store, objects storage.ObjectStorage, notifier *NotificationService, maxUpload int64, log *logger.Logger) *ChatService {
	return &ChatService{
		store:     store,
		storage:   objects,
		notifier:  notifier,
		maxUpload: maxUpload,
		logger:    log,
	}
}

func (s *ChatService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// GetOrCreateConversation returns the conversation between actor and other,
// scoped to jobID when given, creating it on first use.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, actor, other, jobID string) (*domain.Conversation, error) {
	actor, other = domain.NormalizeAddress(actor), domain.NormalizeAddress(other)
	if actor == "" || other == "" {
		return nil, fmt.Errorf("%w: both participants are required", domain.ErrInvalidInput)
	}
	if actor == other {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrInvalidInput)
	}

	var conv *domain.Conversation
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		if jobID != "" {
			if _, err := r.Jobs.Get(ctx, jobID); err != nil {
				return err
			}
		}
		existing, err := r.Conversations.FindBetween(ctx, actor, other, jobID)
		if err == nil {
			conv = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		for _, addr := range []string{actor, other} {
			if _, err := r.Users.EnsureExists(ctx, addr); err != nil {
				return err
			}
		}
		conv = &domain.Conversation{
			ID:                  uuid.New().String(),
			Participant1Address: actor,
			Participant2Address: other,
			LastMessageAt:       time.Now().UTC(),
		}
		if jobID != "" {
			conv.JobID = &jobID
		}
		return r.Conversations.Create(ctx, conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns actor's conversations, most recently active
// first, each with the other party, a preview and the unread count.
func (s *ChatService) ListConversations(ctx context.Context, actor string) ([]domain.ConversationSummary, error) {
	convs, err := s.store.Conversations.ListForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := domain.ConversationSummary{Conversation: c, OtherAddress: c.Other(actor)}
		if u, err := s.store.Users.Get(ctx, summary.OtherAddress); err == nil {
			summary.OtherUsername = u.Username
		}
		if c.JobID != nil {
			if j, err := s.store.Jobs.Get(ctx, *c.JobID); err == nil {
				summary.JobTitle = j.Title
			}
		}
		last, err := s.store.Conversations.LastMessage(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			summary.LastMessagePreview = preview(last)
		}
		if summary.UnreadCount, err = s.store.Conversations.UnreadCount(ctx, c.ID, actor); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// ListMessages returns a page of messages oldest first and marks the ones
// the other party sent as read.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, actor string, limit int, before time.Time) ([]domain.Message, error) {
	if _, err := s.participant(ctx, conversationID, actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	msgs, err := s.store.Conversations.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, err
	}
	if err := s.store.Conversations.MarkRead(ctx, conversationID, actor); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].AttachmentKey == "" || s.storage == nil {
			continue
		}
		url, err := s.storage.GetURL(ctx, msgs[i].AttachmentKey)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Failed to resolve attachment url")
			continue
		}
		msgs[i].AttachmentURL = url
	}
	return msgs, nil
}

// SendMessage posts a text message.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, sender, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is required", domain.ErrInvalidInput)
	}
	conv, err := s.participant(ctx, conversationID, sender)
	if err != nil {
		return nil, err
	}
	msg := &domain.Message{
		ConversationID: conversationID,
		SenderAddress:  domain.NormalizeAddress(sender),
		Content:        content,
		MessageType:    domain.MessageTypeText,
	}
	return s.post(ctx, conv, msg)
}

// SendFile uploads an attachment and posts it as a file message.
func (s *ChatService) SendFile(ctx context.Context, conversationID, sender, filename, contentType string, body io.Reader, size int64, caption string) (*domain.Message, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", domain.ErrInvalidState)
	}
	if s.maxUpload > 0 && size > s.maxUpload {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.maxUpload)
	}
	conv, err := s.participant(ctx, conversationID, sender)
	if err != nil {
		return nil, err
	}

	key := storage.AttachmentKey(conversationID, filename)
	if err := s.storage.Upload(ctx, key, body, size, contentType); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	msg := &domain.Message{
		ConversationID: conversationID,
		SenderAddress:  domain.NormalizeAddress(sender),
		Content:        caption,
		MessageType:    domain.MessageTypeFile,
		AttachmentKey:  key,
		AttachmentName: filename,
	}
	msg, err = s.post(ctx, conv, msg)
	if err != nil {
		if derr := s.storage.Delete(ctx, key); derr != nil {
			s.log(ctx).WithError(derr).Warnf("Failed to remove orphaned attachment %s", key)
		}
		return nil, err
	}
	if url, err := s.storage.GetURL(ctx, key); err == nil {
		msg.AttachmentURL = url
	}
	return msg, nil
}

func (s *ChatService) post(ctx context.Context, conv *domain.Conversation, msg *domain.Message) (*domain.Message, error) {
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		if err := r.Conversations.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return r.Conversations.Touch(ctx, conv.ID, msg.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	n := domain.Notification{
		UserAddress: conv.Other(msg.SenderAddress),
		Type:        domain.NotificationMessageReceived,
		Title:       "New message",
		Message:     preview(msg),
	}
	if conv.JobID != nil {
		n.RelatedJobID = *conv.JobID
	}
	s.notifier.Notify(ctx, n)
	return msg, nil
}

func (s *ChatService) participant(ctx context.Context, conversationID, actor string) (*domain.Conversation, error) {
	conv, err := s.store.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Includes(actor) {
		return nil, fmt.Errorf("%w: not a participant of this conversation", domain.ErrUnauthorized)
	}
	return conv, nil
}

func preview(m *domain.Message) string {
	text := m.Content
	if m.MessageType == domain.MessageTypeFile && text == "" {
		text = "Sent a file: " + m.AttachmentName
	}
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "…"
	}
	return text
}
