package repository

import (
	"context"
	"encoding/json"
	"time"

	"presence_chat_service/internal/presence/domain"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// PresenceRepository cross-node presence mirror. The in-memory table stays
// authoritative for the local node; the mirror exists for REST reads and
// for other services that only speak Redis.
type PresenceRepository interface {
	// Upsert write the user's presence with a TTL so a dead node's
	// entries expire on their own
	Upsert(ctx context.Context, user domain.PresenceUser) error
	// Remove drop the user on clean disconnect
	Remove(ctx context.Context, userID string) error
	// Get one user's mirrored presence, offline when absent or expired
	Get(ctx context.Context, userID string) (*domain.PresenceUser, error)
	// ListOnline every mirrored user across all nodes
	ListOnline(ctx context.Context) ([]domain.PresenceUser, error)
}

// RedisPresenceRepo implement PresenceRepository
type RedisPresenceRepo struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisPresenceRepo create RedisPresenceRepo
func NewRedisPresenceRepo(client redis.UniversalClient, ttl time.Duration) *RedisPresenceRepo {
	return &RedisPresenceRepo{client: client, ttl: ttl}
}

// Upsert pipeline: presence key with TTL plus membership in the online set
func (r *RedisPresenceRepo) Upsert(ctx context.Context, user domain.PresenceUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return errprocess.Set("marshal presence: " + err.Error())
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+user.UserID, data, r.ttl)
	pipe.SAdd(ctx, onlineSetKey, user.UserID)
	// the set outlives individual keys so ListOnline can prune stragglers
	pipe.Expire(ctx, onlineSetKey, r.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return errprocess.Set("upsert presence: " + err.Error())
	}
	return nil
}

// Remove pipeline: delete the key and leave the online set
func (r *RedisPresenceRepo) Remove(ctx context.Context, userID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.SRem(ctx, onlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errprocess.Set("remove presence: " + err.Error())
	}
	return nil
}

// Get nil error with an offline record when the key expired
func (r *RedisPresenceRepo) Get(ctx context.Context, userID string) (*domain.PresenceUser, error) {
	data, err := r.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == redis.Nil {
		return &domain.PresenceUser{UserID: userID, Status: domain.StatusOffline}, nil
	}
	if err != nil {
		return nil, errprocess.Set("get presence: " + err.Error())
	}

	var user domain.PresenceUser
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, errprocess.Set("unmarshal presence: " + err.Error())
	}
	return &user, nil
}

// ListOnline read the online set and fetch every key in one pipeline,
// pruning set members whose key already expired
func (r *RedisPresenceRepo) ListOnline(ctx context.Context) ([]domain.PresenceUser, error) {
	userIDs, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, errprocess.Set("list online: " + err.Error())
	}
	if len(userIDs) == 0 {
		return []domain.PresenceUser{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.Get(ctx, presenceKeyPrefix+userID)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errprocess.Set("list online fetch: " + err.Error())
	}

	users := make([]domain.PresenceUser, 0, len(userIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			expired = append(expired, userIDs[i])
			continue
		}
		if err != nil {
			logger.Log.Errorf("presence fetch error:", err)
			continue
		}
		var user domain.PresenceUser
		if err := json.Unmarshal([]byte(data), &user); err != nil {
			logger.Log.Errorf("presence decode error:", err)
			continue
		}
		users = append(users, user)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, onlineSetKey, expired...).Err(); err != nil {
			logger.Log.Errorf("online set prune error:", err)
		}
	}
	return users, nil
}
