package repository

import (
	"context"

	"presence_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository append/query contract for persisted channel history;
// the authoritative in-memory state lives in the hub, this is write-through
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg *domain.Message) error
	UpdateMessage(ctx context.Context, msg *domain.Message) error
	FindMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error)
	ListMessages(ctx context.Context, channelID string, beforeSeq int64, limit int64) ([]domain.Message, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create new mongo message repository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll: db.Collection("messages"),
	}
}

// AppendMessage insert one message document
func (r *messageRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

// UpdateMessage overwrite the stored message (edit, tombstone, reactions, read marks)
func (r *messageRepository) UpdateMessage(ctx context.Context, msg *domain.Message) error {
	filter := bson.M{"_id": msg.ID}
	update := bson.M{"$set": msg}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}

// FindMessage find one message by id within the channel
func (r *messageRepository) FindMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID, "channel_id": channelID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListMessages page backwards from beforeSeq (0 means from the tail),
// returned in ascending seq order
func (r *messageRepository) ListMessages(ctx context.Context, channelID string, beforeSeq int64, limit int64) ([]domain.Message, error) {
	filter := bson.M{"channel_id": channelID}
	if beforeSeq > 0 {
		filter["seq"] = bson.M{"$lt": beforeSeq}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var page []domain.Message
	if err := cur.All(ctx, &page); err != nil {
		return nil, err
	}

	// reverse into ascending order
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}
