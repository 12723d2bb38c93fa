package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ustawi/core/chat"
	"github.com/trezcool/ustawi/core/user"
	inmemdb "github.com/trezcool/ustawi/storage/database/inmem"
)

func setup(t *testing.T) chat.Service {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	return chat.NewService(inmemdb.NewChatRepository(db))
}

func TestService_Start(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	actor := user.Actor{ID: "sw1", Role: user.RoleSocialWorker}

	t.Run("actor is always included", func(t *testing.T) {
		c, err := svc.Start(ctx, actor, chat.NewConversation{ParticipantIDs: []string{"p1", "p2"}})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, []string{"sw1", "p1", "p2"}, c.ParticipantIDs)
	})

	t.Run("actor is not duplicated", func(t *testing.T) {
		c, err := svc.Start(ctx, actor, chat.NewConversation{ParticipantIDs: []string{"p1", "sw1"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "sw1"}, c.ParticipantIDs)
	})
}

func TestService_messages(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	sw := user.Actor{ID: "sw1", Role: user.RoleSocialWorker}
	participant := user.Actor{ID: "p1", Role: user.RoleParticipant}
	outsider := user.Actor{ID: "p2", Role: user.RoleParticipant}

	c, err := svc.Start(ctx, sw, chat.NewConversation{ParticipantIDs: []string{participant.ID}})
	require.NoError(t, err)

	t.Run("participants can exchange messages", func(t *testing.T) {
		m1, err := svc.SendMessage(ctx, sw, c.ID, chat.NewMessage{Content: "hello"})
		require.NoError(t, err)
		assert.Equal(t, sw.ID, m1.SenderID)

		_, err = svc.SendMessage(ctx, participant, c.ID, chat.NewMessage{Content: "hi"})
		require.NoError(t, err)

		messages, err := svc.ListMessages(ctx, participant, c.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "hello", messages[0].Content)
		assert.Equal(t, "hi", messages[1].Content)
	})

	t.Run("non-participants are reported not found", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, outsider, c.ID, chat.NewMessage{Content: "knock knock"})
		assert.Equal(t, chat.ErrNotFound, err)

		_, err = svc.ListMessages(ctx, outsider, c.ID)
		assert.Equal(t, chat.ErrNotFound, err)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, sw, "nope", chat.NewMessage{Content: "void"})
		assert.Equal(t, chat.ErrNotFound, err)
	})

	t.Run("list only own conversations", func(t *testing.T) {
		conversations, err := svc.List(ctx, outsider)
		require.NoError(t, err)
		assert.Empty(t, conversations)

		conversations, err = svc.List(ctx, participant)
		require.NoError(t, err)
		require.Len(t, conversations, 1)
		assert.Equal(t, c.ID, conversations[0].ID)
	})
}
