package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/user"
)

var ErrNotFound = errors.New("conversation not found")

type (
	Repository interface {
		CreateConversation(ctx context.Context, c Conversation, exec ...core.DBExecutor) (Conversation, error)
		// QueryConversations lists the conversations userID takes part in,
		// participants included.
		QueryConversations(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Conversation, error)
		IsParticipant(ctx context.Context, conversationID, userID string, exec ...core.DBExecutor) (bool, error)
		CreateMessage(ctx context.Context, m Message, exec ...core.DBExecutor) (Message, error)
		// QueryMessages returns a conversation's messages ordered by creation time.
		QueryMessages(ctx context.Context, conversationID string, exec ...core.DBExecutor) ([]Message, error)
	}

	Service interface {
		Start(ctx context.Context, actor user.Actor, nc NewConversation) (Conversation, error)
		List(ctx context.Context, actor user.Actor) ([]Conversation, error)
		SendMessage(ctx context.Context, actor user.Actor, conversationID string, nm NewMessage) (Message, error)
		ListMessages(ctx context.Context, actor user.Actor, conversationID string) ([]Message, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

// Start opens a conversation between the actor and the given participants.
// The actor always takes part, whether listed or not.
func (svc *service) Start(ctx context.Context, actor user.Actor, nc NewConversation) (Conversation, error) {
	ids := nc.ParticipantIDs
	found := false
	for _, id := range ids {
		if id == actor.ID {
			found = true
			break
		}
	}
	if !found {
		ids = append([]string{actor.ID}, ids...)
	}

	return svc.repo.CreateConversation(ctx, Conversation{
		CreatedAt:      time.Now().UTC(),
		ParticipantIDs: ids,
	})
}

func (svc *service) List(ctx context.Context, actor user.Actor) ([]Conversation, error) {
	return svc.repo.QueryConversations(ctx, actor.ID)
}

// SendMessage posts to a conversation the actor takes part in; any other
// conversation is reported as not found.
func (svc *service) SendMessage(ctx context.Context, actor user.Actor, conversationID string, nm NewMessage) (Message, error) {
	if err := svc.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return Message{}, err
	}
	return svc.repo.CreateMessage(ctx, Message{
		ConversationID: conversationID,
		SenderID:       actor.ID,
		Content:        nm.Content,
		CreatedAt:      time.Now().UTC(),
	})
}

func (svc *service) ListMessages(ctx context.Context, actor user.Actor, conversationID string) ([]Message, error) {
	if err := svc.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMessages(ctx, conversationID)
}

func (svc *service) requireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := svc.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
