package app

import (
	"context"
	"time"

	"presence_chat_service/internal/chat/domain"
	"presence_chat_service/internal/chat/repository"
	presencedomain "presence_chat_service/internal/presence/domain"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"

	"github.com/google/uuid"
)

// ChannelUseCase owns the authoritative channel table. All mutations run
// inside the hub turn, so the maps need no locking.
type ChannelUseCase struct {
	channelRepo repository.ChannelRepository
	pubsub      repository.PubSub

	channels map[string]*domain.Channel
}

// NewChannelUseCase init channel use case
func NewChannelUseCase(channelRepo repository.ChannelRepository, pubsub repository.PubSub) *ChannelUseCase {
	return &ChannelUseCase{
		channelRepo: channelRepo,
		pubsub:      pubsub,
		channels:    make(map[string]*domain.Channel),
	}
}

// CreateChannel create a channel. Direct channels are keyed by the member
// pair and idempotent: asking twice returns the same channel, in any
// argument order. Returns the channel and whether it was newly created.
func (uc *ChannelUseCase) CreateChannel(
	ctx context.Context,
	kind domain.ChannelKind,
	name string,
	creatorID string,
	members []string,
) (*domain.Channel, bool, error) {

	switch kind {
	case domain.ChannelDirect:
		if len(members) != 2 {
			return nil, false, errprocess.SetCode(errprocess.ReasonBadRequest, "direct channel must have exactly 2 members")
		}
		id := domain.DirectChannelID(members[0], members[1])
		if existing, err := uc.Get(ctx, id); err != nil {
			return nil, false, err
		} else if existing != nil {
			return existing, false, nil
		}

		ch := &domain.Channel{
			ID:        id,
			Kind:      domain.ChannelDirect,
			Members:   members,
			CreatedBy: creatorID,
			CreatedAt: time.Now().Unix(),
			NextSeq:   1,
		}
		return uc.insert(ctx, ch)

	case domain.ChannelGroup:
		if len(members) == 0 {
			return nil, false, errprocess.SetCode(errprocess.ReasonBadRequest, "group channel needs at least one member")
		}
		ch := &domain.Channel{
			ID:        uuid.New().String(),
			Kind:      domain.ChannelGroup,
			Name:      name,
			Members:   members,
			CreatedBy: creatorID,
			CreatedAt: time.Now().Unix(),
			NextSeq:   1,
		}
		return uc.insert(ctx, ch)
	}

	return nil, false, errprocess.SetCode(errprocess.ReasonBadRequest, "unknown channel kind")
}

func (uc *ChannelUseCase) insert(ctx context.Context, ch *domain.Channel) (*domain.Channel, bool, error) {
	if uc.channelRepo != nil {
		if err := uc.channelRepo.CreateChannel(ctx, ch); err != nil {
			return nil, false, err
		}
	}
	uc.channels[ch.ID] = ch

	if uc.pubsub != nil {
		event := presencedomain.ServerEvent{Event: presencedomain.EventChannelCreated, Data: ch}
		for _, memberID := range ch.Members {
			if err := uc.pubsub.Publish(repository.UserChannel(memberID), event); err != nil {
				logger.Log.Errorf("channel created publish error:", err)
			}
		}
	}
	return ch, true, nil
}

// persist write the channel document through, sequence counter included,
// so a rehydrated channel resumes where the counter left off
func (uc *ChannelUseCase) persist(ctx context.Context, ch *domain.Channel) {
	if uc.channelRepo == nil {
		return
	}
	if err := uc.channelRepo.UpdateChannel(ctx, ch); err != nil {
		logger.Log.Errorf("update channel error:", err)
	}
}

// Get resolve a channel, memory first then read-through from the repository
func (uc *ChannelUseCase) Get(ctx context.Context, channelID string) (*domain.Channel, error) {
	if ch, ok := uc.channels[channelID]; ok {
		return ch, nil
	}
	if uc.channelRepo == nil {
		return nil, nil
	}
	ch, err := uc.channelRepo.FindByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		uc.channels[ch.ID] = ch
	}
	return ch, nil
}

// ListForMember channels the user belongs to, for the channels snapshot on connect
func (uc *ChannelUseCase) ListForMember(ctx context.Context, userID string) ([]domain.Channel, error) {
	if uc.channelRepo != nil {
		return uc.channelRepo.ListByMember(ctx, userID)
	}
	var out []domain.Channel
	for _, ch := range uc.channels {
		if ch.HasMember(userID) {
			out = append(out, *ch)
		}
	}
	return out, nil
}
