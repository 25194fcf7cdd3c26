package repository

import (
	"context"
	"time"

	"github.com/timmy/gigescrow/internal/domain"
	"gorm.io/gorm"
)

// ConversationRepository handles chat conversations and their messages.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Get retrieves a conversation by ID.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "conversation "+id)
	}
	return &c, nil
}

// FindBetween looks up the conversation between two wallets, scoped to jobID
// when it is non-empty. Participant order does not matter.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - a, b: participant wallet addresses.
//   - jobID: optional job scope.
// Returns:
//   - *domain.Conversation: existing conversation.
//   - error: domain.ErrNotFound when none exists.
func (r *ConversationRepository) FindBetween(ctx context.Context, a, b, jobID string) (*domain.Conversation, error) {
	na, nb := domain.NormalizeAddress(a), domain.NormalizeAddress(b)
	query := r.db.WithContext(ctx).
		Where("(participant1_address = ? AND participant2_address = ?) OR (participant1_address = ? AND participant2_address = ?)",
			na, nb, nb, na)
	if jobID != "" {
		query = query.Where("job_id = ?", jobID)
	} else {
		query = query.Where("job_id IS NULL")
	}
	var c domain.Conversation
	if err := query.First(&c).Error; err != nil {
		return nil, notFound(err, "conversation")
	}
	return &c, nil
}

// Create inserts a conversation.
func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// ListForUser retrieves conversations addr participates in, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, addr string) ([]domain.Conversation, error) {
	norm := domain.NormalizeAddress(addr)
	var out []domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("participant1_address = ? OR participant2_address = ?", norm, norm).
		Order("last_message_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Touch records activity on a conversation.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}

// CreateMessage inserts a message.
func (r *ConversationRepository) CreateMessage(ctx context.Context, m *domain.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages retrieves a conversation's messages in chronological order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - conversationID: conversation ID.
//   - limit: maximum number of messages.
//   - before: only messages strictly older than this; zero means no bound.
// Returns:
//   - []domain.Message: messages oldest first.
//   - error: non-nil if the query fails.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]domain.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}
	var out []domain.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastMessage returns the newest message of a conversation, or nil.
func (r *ConversationRepository) LastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(1).
		Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, nil
	}
	return &m, nil
}

// MarkRead marks the messages others sent in a conversation as read by reader.
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, reader string) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_address <> ? AND is_read = ?",
			conversationID, domain.NormalizeAddress(reader), false).
		Update("is_read", true).Error
}

// UnreadCount counts the messages in a conversation that reader has not read.
func (r *ConversationRepository) UnreadCount(ctx context.Context, conversationID, reader string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_address <> ? AND is_read = ?",
			conversationID, domain.NormalizeAddress(reader), false).
		Count(&count).Error
	return count, err
}
