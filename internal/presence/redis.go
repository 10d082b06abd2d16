package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps typing indicators in one hash per conversation
// (field = participant key, value = unix millis) and presence in one hash
// per participant. The key TTLs are storage hygiene only; the service's
// read-time decay is what decides liveness.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func typingKey(conversationID int) string {
	return fmt.Sprintf("typing:%d", conversationID)
}

func presenceKey(p identity.Participant) string {
	return "presence:" + p.String()
}

func (s *RedisStore) UpsertTyping(ctx context.Context, conversationID int, p identity.Participant, at time.Time) error {
	key := typingKey(conversationID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, p.String(), at.UnixMilli())
	pipe.Expire(ctx, key, time.Minute)
	_, err := pipe.Exec(ctx)
	return apperr.Persistence(err, "upsert typing")
}

func (s *RedisStore) DeleteTyping(ctx context.Context, conversationID int, p identity.Participant) error {
	err := s.client.HDel(ctx, typingKey(conversationID), p.String()).Err()
	return apperr.Persistence(err, "delete typing")
}

func (s *RedisStore) Typing(ctx context.Context, conversationID int) ([]TypingRow, error) {
	fields, err := s.client.HGetAll(ctx, typingKey(conversationID)).Result()
	if err != nil {
		return nil, apperr.Persistence(err, "read typing")
	}

	rows := make([]TypingRow, 0, len(fields))
	for field, raw := range fields {
		p, perr := identity.Parse(field)
		if perr != nil {
			continue
		}
		millis, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		rows = append(rows, TypingRow{Participant: p, StartedAt: time.UnixMilli(millis)})
	}
	return rows, nil
}

func (s *RedisStore) PurgeTyping(ctx context.Context, conversationID int, olderThan time.Time) error {
	key := typingKey(conversationID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return apperr.Persistence(err, "purge typing")
	}

	var stale []string
	for field, raw := range fields {
		millis, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || time.UnixMilli(millis).Before(olderThan) {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	err = s.client.HDel(ctx, key, stale...).Err()
	return apperr.Persistence(err, "purge typing")
}

func (s *RedisStore) UpsertPresence(ctx context.Context, rec Record) error {
	key := presenceKey(rec.Participant)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":    string(rec.Status),
		"last_seen": rec.LastSeen.UnixMilli(),
	})
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return apperr.Persistence(err, "upsert presence")
}

func (s *RedisStore) GetPresence(ctx context.Context, p identity.Participant) (Record, error) {
	fields, err := s.client.HGetAll(ctx, presenceKey(p)).Result()
	if err != nil {
		return Record{}, apperr.Persistence(err, "read presence")
	}
	if len(fields) == 0 {
		return Record{}, apperr.ErrNotFound
	}

	millis, perr := strconv.ParseInt(fields["last_seen"], 10, 64)
	if perr != nil {
		return Record{}, apperr.ErrNotFound
	}
	return Record{
		Participant: p,
		Status:      Status(fields["status"]),
		LastSeen:    time.UnixMilli(millis),
	}, nil
}
