package app

import (
	"context"

	"presence_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockChannelRepository Mock ChannelRepository
type MockChannelRepository struct {
	mock.Mock
}

// CreateChannel mock create channel
func (m *MockChannelRepository) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

// FindByID mock find channel by id
func (m *MockChannelRepository) FindByID(ctx context.Context, channelID string) (*domain.Channel, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Channel), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateChannel mock update channel
func (m *MockChannelRepository) UpdateChannel(ctx context.Context, ch *domain.Channel) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

// ListByMember mock list channels of a member
func (m *MockChannelRepository) ListByMember(ctx context.Context, userID string) ([]domain.Channel, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Channel), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// AppendMessage mock append message
func (m *MockMessageRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// UpdateMessage mock update message
func (m *MockMessageRepository) UpdateMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindMessage mock find one message
func (m *MockMessageRepository) FindMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, channelID, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListMessages mock list messages
func (m *MockMessageRepository) ListMessages(ctx context.Context, channelID string, beforeSeq, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, channelID, beforeSeq, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPubSub Mock PubSub
type MockPubSub struct {
	mock.Mock
}

// Publish mock publisher
func (m *MockPubSub) Publish(channel string, payload interface{}) error {
	args := m.Called(channel, payload)
	return args.Error(0)
}

// Subscribe mock subscriber
func (m *MockPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	args := m.Called(channel, handler)
	return args.Error(0)
}
