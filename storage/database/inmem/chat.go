package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/chat"
)

type chatRepository struct {
	db *DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db}
}

func (repo *chatRepository) CreateConversation(ctx context.Context, c chat.Conversation, exec ...core.DBExecutor) (chat.Conversation, error) {
	repo.db.conversation.mutex.Lock()
	defer repo.db.conversation.mutex.Unlock()

	c.ID = uuid.New().String()
	repo.db.conversation.conversations[c.ID] = &c
	return c, nil
}

func (repo *chatRepository) QueryConversations(ctx context.Context, userID string, exec ...core.DBExecutor) ([]chat.Conversation, error) {
	repo.db.conversation.mutex.RLock()
	defer repo.db.conversation.mutex.RUnlock()

	convs := make([]chat.Conversation, 0)
	for _, c := range repo.db.conversation.conversations {
		for _, id := range c.ParticipantIDs {
			if id == userID {
				convs = append(convs, *c)
				break
			}
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].CreatedAt.Before(convs[j].CreatedAt) })
	return convs, nil
}

func (repo *chatRepository) IsParticipant(ctx context.Context, conversationID, userID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.conversation.mutex.RLock()
	defer repo.db.conversation.mutex.RUnlock()

	c, ok := repo.db.conversation.conversations[conversationID]
	if !ok {
		return false, nil
	}
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *chatRepository) CreateMessage(ctx context.Context, m chat.Message, exec ...core.DBExecutor) (chat.Message, error) {
	repo.db.conversation.mutex.Lock()
	defer repo.db.conversation.mutex.Unlock()

	m.ID = uuid.New().String()
	repo.db.conversation.messages[m.ID] = &m
	return m, nil
}

func (repo *chatRepository) QueryMessages(ctx context.Context, conversationID string, exec ...core.DBExecutor) ([]chat.Message, error) {
	repo.db.conversation.mutex.RLock()
	defer repo.db.conversation.mutex.RUnlock()

	msgs := make([]chat.Message, 0)
	for _, m := range repo.db.conversation.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, *m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}
