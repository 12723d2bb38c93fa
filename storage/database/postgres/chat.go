package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/chat"
)

type chatRepository struct {
	db core.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db core.DB) *chatRepository {
	return &chatRepository{db: db}
}

// CreateConversation inserts the conversation and its participant links.
// It opens its own transaction unless the service hands one in.
func (repo *chatRepository) CreateConversation(ctx context.Context, c chat.Conversation, exec ...core.DBExecutor) (chat.Conversation, error) {
	if len(exec) > 0 && exec[0] != nil {
		return repo.createConversation(ctx, c, exec[0])
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Conversation{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	c, err = repo.createConversation(ctx, c, tx)
	if err != nil {
		return chat.Conversation{}, err
	}
	if err = tx.Commit(); err != nil {
		return chat.Conversation{}, errors.Wrap(err, "committing transaction")
	}
	return c, nil
}

func (repo *chatRepository) createConversation(ctx context.Context, c chat.Conversation, ex core.DBExecutor) (chat.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `INSERT INTO conversation (id, created_at) VALUES ($1, $2)`
	if _, err := ex.ExecContext(ctx, query, c.ID, c.CreatedAt); err != nil {
		return chat.Conversation{}, errors.Wrap(err, "creating conversation")
	}

	query = `INSERT INTO conversation_participant (conversation_id, user_id) VALUES ($1, $2)`
	for _, userID := range c.ParticipantIDs {
		if _, err := ex.ExecContext(ctx, query, c.ID, userID); err != nil {
			return chat.Conversation{}, errors.Wrap(err, "adding participant")
		}
	}
	return c, nil
}

func (repo *chatRepository) QueryConversations(ctx context.Context, userID string, exec ...core.DBExecutor) ([]chat.Conversation, error) {
	ex := getExec(repo.db, exec)

	query := `
		SELECT c.id, c.created_at
		FROM conversation c
		JOIN conversation_participant cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1
		ORDER BY c.created_at DESC`

	var conversations []chat.Conversation
	if err := ex.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	if len(conversations) == 0 {
		return conversations, nil
	}

	// fetch all participants in one go
	ids := make([]string, len(conversations))
	for i, c := range conversations {
		ids[i] = c.ID
	}
	query, args, err := sqlx.In(`SELECT conversation_id, user_id FROM conversation_participant WHERE conversation_id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var links []struct {
		ConversationID string `db:"conversation_id"`
		UserID         string `db:"user_id"`
	}
	if err = ex.SelectContext(ctx, &links, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, errors.Wrap(err, "querying participants")
	}

	participants := make(map[string][]string, len(conversations))
	for _, link := range links {
		participants[link.ConversationID] = append(participants[link.ConversationID], link.UserID)
	}
	for i := range conversations {
		conversations[i].ParticipantIDs = participants[conversations[i].ID]
	}
	return conversations, nil
}

func (repo *chatRepository) IsParticipant(ctx context.Context, conversationID, userID string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)

	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM conversation_participant WHERE conversation_id = $1 AND user_id = $2)`
	if err := ex.GetContext(ctx, &ok, query, conversationID, userID); err != nil {
		return false, errors.Wrap(err, "checking participant")
	}
	return ok, nil
}

func (repo *chatRepository) CreateMessage(ctx context.Context, m chat.Message, exec ...core.DBExecutor) (chat.Message, error) {
	ex := getExec(repo.db, exec)

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO message (id, conversation_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := ex.ExecContext(ctx, query, m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt)
	if err != nil {
		if isPqError(err, foreignKeyViolation) {
			return chat.Message{}, chat.ErrNotFound
		}
		return chat.Message{}, errors.Wrap(err, "creating message")
	}
	return m, nil
}

func (repo *chatRepository) QueryMessages(ctx context.Context, conversationID string, exec ...core.DBExecutor) ([]chat.Message, error) {
	ex := getExec(repo.db, exec)

	query := `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM message
		WHERE conversation_id = $1
		ORDER BY created_at`

	var messages []chat.Message
	if err := ex.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	return messages, nil
}
