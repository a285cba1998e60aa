package app

import (
	"context"
	"testing"

	"presence_chat_service/internal/chat/domain"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.Log = logger.NewNop()
}

func TestChannelUseCase_CreateDirectIdempotent(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockChannelRepository)
	mockPubSub := new(MockPubSub)
	mockRepo.On("FindByID", ctx, mock.Anything).Return(nil, nil).Once()
	mockRepo.On("CreateChannel", ctx, mock.Anything).Return(nil).Once()
	mockPubSub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	uc := NewChannelUseCase(mockRepo, mockPubSub)

	first, created, err := uc.CreateChannel(ctx, domain.ChannelDirect, "", "user-a", []string{"user-a", "user-b"})
	assert.NoError(t, err)
	assert.True(t, created)

	// same pair, reversed order, must come back as the same channel
	second, created, err := uc.CreateChannel(ctx, domain.ChannelDirect, "", "user-b", []string{"user-b", "user-a"})
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	mockRepo.AssertExpectations(t)
}

func TestChannelUseCase_CreateDirectRequiresPair(t *testing.T) {
	uc := NewChannelUseCase(nil, nil)

	_, _, err := uc.CreateChannel(context.Background(), domain.ChannelDirect, "", "user-a", []string{"user-a"})
	assert.Error(t, err)
	assert.Equal(t, errprocess.ReasonBadRequest, errprocess.CodeOf(err))
}

func TestChannelUseCase_CreateGroupNotifiesMembers(t *testing.T) {
	ctx := context.Background()
	members := []string{"user-a", "user-b", "user-c"}

	mockRepo := new(MockChannelRepository)
	mockPubSub := new(MockPubSub)
	mockRepo.On("CreateChannel", ctx, mock.Anything).Return(nil)
	for _, memberID := range members {
		mockPubSub.On("Publish", "chat:user:"+memberID, mock.Anything).Return(nil).Once()
	}

	uc := NewChannelUseCase(mockRepo, mockPubSub)
	ch, created, err := uc.CreateChannel(ctx, domain.ChannelGroup, "design", "user-a", members)

	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ChannelGroup, ch.Kind)
	assert.Equal(t, "design", ch.Name)

	mockPubSub.AssertExpectations(t)
}

func TestChannelUseCase_GetReadsThrough(t *testing.T) {
	ctx := context.Background()

	stored := &domain.Channel{ID: "dm:a:b", Kind: domain.ChannelDirect, Members: []string{"a", "b"}}
	mockRepo := new(MockChannelRepository)
	mockRepo.On("FindByID", ctx, "dm:a:b").Return(stored, nil).Once()

	uc := NewChannelUseCase(mockRepo, nil)

	ch, err := uc.Get(ctx, "dm:a:b")
	assert.NoError(t, err)
	assert.Equal(t, stored, ch)

	// second read is served from memory, FindByID only fires once
	again, err := uc.Get(ctx, "dm:a:b")
	assert.NoError(t, err)
	assert.Equal(t, stored, again)

	mockRepo.AssertExpectations(t)
}

func TestDirectChannelIDOrderIndependent(t *testing.T) {
	assert.Equal(t, domain.DirectChannelID("alice", "bob"), domain.DirectChannelID("bob", "alice"))
	assert.NotEqual(t, domain.DirectChannelID("alice", "bob"), domain.DirectChannelID("alice", "carol"))
}
