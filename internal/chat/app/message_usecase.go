package app

import (
	"context"
	"strings"
	"time"

	"presence_chat_service/internal/chat/domain"
	"presence_chat_service/internal/chat/repository"
	presencedomain "presence_chat_service/internal/presence/domain"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"

	"github.com/google/uuid"
)

// MessageUseCase message operations over the authoritative channel table.
// Sequence numbers are assigned here, inside the hub turn that appends,
// so delivery order per channel is total.
type MessageUseCase struct {
	channelUC *ChannelUseCase
	msgRepo   repository.MessageRepository
	pubsub    repository.PubSub

	// messages per channel for edit/delete/reply resolution
	messages map[string]map[string]*domain.Message
}

// NewMessageUseCase init message use case
func NewMessageUseCase(channelUC *ChannelUseCase, msgRepo repository.MessageRepository, pubsub repository.PubSub) *MessageUseCase {
	return &MessageUseCase{
		channelUC: channelUC,
		msgRepo:   msgRepo,
		pubsub:    pubsub,
		messages:  make(map[string]map[string]*domain.Message),
	}
}

// Send validate, assign the channel sequence, append and fan out.
// Returns the stored message and the member list for notification fan-out.
func (uc *MessageUseCase) Send(
	ctx context.Context,
	channelID, authorID, body, replyToID, pendingID string,
) (*domain.Message, []string, error) {

	ch, err := uc.channelUC.Get(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	if ch == nil {
		return nil, nil, errprocess.SetCode(errprocess.ReasonUnknownChannel, "channel not found: "+channelID)
	}
	if !ch.HasMember(authorID) {
		return nil, nil, errprocess.SetCode(errprocess.ReasonNotMember, "sender is not a channel member")
	}
	if replyToID != "" {
		parent := uc.lookup(ctx, channelID, replyToID)
		if parent == nil {
			return nil, nil, errprocess.SetCode(errprocess.ReasonBadReply, "replyTo does not resolve in this channel")
		}
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		Seq:       ch.NextSeq,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now(),
		ReplyToID: replyToID,
		ReadBy:    []string{authorID},
		PendingID: pendingID,
	}
	ch.NextSeq++
	uc.channelUC.persist(ctx, ch)

	uc.store(msg)
	if uc.msgRepo != nil {
		if err := uc.msgRepo.AppendMessage(ctx, msg); err != nil {
			logger.Log.Errorf("append message error:", err)
		}
	}

	uc.fanOut(ch.Members, presencedomain.EventMessageNew, msg)
	return msg, ch.Members, nil
}

// Edit author-only, stamps editedAt
func (uc *MessageUseCase) Edit(ctx context.Context, channelID, messageID, authorID, body string) (*domain.Message, error) {
	msg, ch, err := uc.resolve(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != authorID {
		return nil, errprocess.SetCode(errprocess.ReasonNotAuthor, "only the author may edit")
	}
	if msg.Deleted {
		return nil, errprocess.SetCode(errprocess.ReasonUnknownMessage, "message was deleted")
	}

	now := time.Now()
	msg.Body = body
	msg.EditedAt = &now

	uc.persist(ctx, msg)
	uc.fanOut(ch.Members, presencedomain.EventMessageEdited, msg)
	return msg, nil
}

// Delete author-only; tombstoned, not removed, so replies keep resolving
func (uc *MessageUseCase) Delete(ctx context.Context, channelID, messageID, authorID string) (*domain.Message, error) {
	msg, ch, err := uc.resolve(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != authorID {
		return nil, errprocess.SetCode(errprocess.ReasonNotAuthor, "only the author may delete")
	}

	msg.Tombstone()

	uc.persist(ctx, msg)
	uc.fanOut(ch.Members, presencedomain.EventMessageDeleted, msg)
	return msg, nil
}

// React toggle one user's emoji on a message
func (uc *MessageUseCase) React(ctx context.Context, channelID, messageID, userID, emoji string) (*domain.Message, error) {
	msg, ch, err := uc.resolve(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if !ch.HasMember(userID) {
		return nil, errprocess.SetCode(errprocess.ReasonNotMember, "reactor is not a channel member")
	}
	if msg.Deleted {
		return nil, errprocess.SetCode(errprocess.ReasonUnknownMessage, "message was deleted")
	}

	toggleReaction(msg, userID, emoji)

	uc.persist(ctx, msg)
	uc.fanOut(ch.Members, presencedomain.EventMessageReacted, msg)
	return msg, nil
}

// MarkRead add userID to the message readBy set
func (uc *MessageUseCase) MarkRead(ctx context.Context, channelID, messageID, userID string) error {
	msg, _, err := uc.resolve(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	for _, id := range msg.ReadBy {
		if id == userID {
			return nil
		}
	}
	msg.ReadBy = append(msg.ReadBy, userID)
	uc.persist(ctx, msg)
	return nil
}

// History page of persisted messages, ascending seq
func (uc *MessageUseCase) History(ctx context.Context, channelID string, beforeSeq, limit int64) ([]domain.Message, error) {
	if uc.msgRepo == nil {
		return uc.memoryHistory(channelID, beforeSeq, limit), nil
	}
	return uc.msgRepo.ListMessages(ctx, channelID, beforeSeq, limit)
}

// ScanMentions @name tokens in a message body that match known usernames.
// usernames maps username -> userId.
func ScanMentions(body string, usernames map[string]string) []string {
	var targets []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(body) {
		if !strings.HasPrefix(word, "@") {
			continue
		}
		name := strings.TrimRight(word[1:], ".,!?:;")
		if userID, ok := usernames[name]; ok && !seen[userID] {
			seen[userID] = true
			targets = append(targets, userID)
		}
	}
	return targets
}

func (uc *MessageUseCase) resolve(ctx context.Context, channelID, messageID string) (*domain.Message, *domain.Channel, error) {
	ch, err := uc.channelUC.Get(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	if ch == nil {
		return nil, nil, errprocess.SetCode(errprocess.ReasonUnknownChannel, "channel not found: "+channelID)
	}
	msg := uc.lookup(ctx, channelID, messageID)
	if msg == nil {
		return nil, nil, errprocess.SetCode(errprocess.ReasonUnknownMessage, "message not found: "+messageID)
	}
	return msg, ch, nil
}

// lookup memory first, then read-through from the repository so messages
// persisted before a restart stay editable and replyable
func (uc *MessageUseCase) lookup(ctx context.Context, channelID, messageID string) *domain.Message {
	if byID, ok := uc.messages[channelID]; ok {
		if msg, ok := byID[messageID]; ok {
			return msg
		}
	}
	if uc.msgRepo == nil {
		return nil
	}
	msg, err := uc.msgRepo.FindMessage(ctx, channelID, messageID)
	if err != nil {
		logger.Log.Errorf("find message error:", err)
		return nil
	}
	if msg != nil {
		uc.store(msg)
	}
	return msg
}

func (uc *MessageUseCase) store(msg *domain.Message) {
	byID, ok := uc.messages[msg.ChannelID]
	if !ok {
		byID = make(map[string]*domain.Message)
		uc.messages[msg.ChannelID] = byID
	}
	byID[msg.ID] = msg
}

func (uc *MessageUseCase) persist(ctx context.Context, msg *domain.Message) {
	if uc.msgRepo == nil {
		return
	}
	if err := uc.msgRepo.UpdateMessage(ctx, msg); err != nil {
		logger.Log.Errorf("update message error:", err)
	}
}

func (uc *MessageUseCase) fanOut(members []string, event presencedomain.Event, msg *domain.Message) {
	if uc.pubsub == nil {
		return
	}
	frame := presencedomain.ServerEvent{Event: event, Data: msg}
	for _, memberID := range members {
		if err := uc.pubsub.Publish(repository.UserChannel(memberID), frame); err != nil {
			logger.Log.Errorf("message fan-out publish error:", err)
		}
	}
}

func (uc *MessageUseCase) memoryHistory(channelID string, beforeSeq, limit int64) []domain.Message {
	byID := uc.messages[channelID]
	var page []domain.Message
	for _, m := range byID {
		if beforeSeq > 0 && m.Seq >= beforeSeq {
			continue
		}
		page = append(page, *m)
	}
	sortMessages(page)
	if limit > 0 && int64(len(page)) > limit {
		page = page[int64(len(page))-limit:]
	}
	return page
}

func sortMessages(msgs []domain.Message) {
	// insertion sort by (createdAt, seq); history pages are small
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].Before(&msgs[j-1]); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}

func toggleReaction(msg *domain.Message, userID, emoji string) {
	for i, r := range msg.Reactions {
		if r.Emoji != emoji {
			continue
		}
		for j, u := range r.Users {
			if u == userID {
				msg.Reactions[i].Users = append(r.Users[:j], r.Users[j+1:]...)
				if len(msg.Reactions[i].Users) == 0 {
					msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
				}
				return
			}
		}
		msg.Reactions[i].Users = append(r.Users, userID)
		return
	}
	msg.Reactions = append(msg.Reactions, domain.Reaction{Emoji: emoji, Users: []string{userID}})
}
