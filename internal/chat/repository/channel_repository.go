package repository

import (
	"context"

	"presence_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ChannelRepository definition channel persistence
type ChannelRepository interface {
	CreateChannel(ctx context.Context, ch *domain.Channel) error
	FindByID(ctx context.Context, channelID string) (*domain.Channel, error)
	UpdateChannel(ctx context.Context, ch *domain.Channel) error
	ListByMember(ctx context.Context, userID string) ([]domain.Channel, error)
}

type channelRepository struct {
	coll *mongo.Collection
}

// NewMongoChannelRepository create new mongo channel repository
func NewMongoChannelRepository(db *mongo.Database) ChannelRepository {
	return &channelRepository{
		coll: db.Collection("channels"),
	}
}

// CreateChannel insert channel document
func (r *channelRepository) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	_, err := r.coll.InsertOne(ctx, ch)
	return err
}

// FindByID find channel by id
func (r *channelRepository) FindByID(ctx context.Context, channelID string) (*domain.Channel, error) {
	var ch domain.Channel
	err := r.coll.FindOne(ctx, bson.M{"_id": channelID}).Decode(&ch)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

// UpdateChannel update channel document
func (r *channelRepository) UpdateChannel(ctx context.Context, ch *domain.Channel) error {
	filter := bson.M{"_id": ch.ID}
	update := bson.M{"$set": ch}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}

// ListByMember list channels containing userID
func (r *channelRepository) ListByMember(ctx context.Context, userID string) ([]domain.Channel, error) {
	cur, err := r.coll.Find(ctx, bson.M{"members": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var channels []domain.Channel
	if err := cur.All(ctx, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}
