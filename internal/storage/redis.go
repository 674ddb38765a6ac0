package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"secret-santa-bot/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	participantPrefix = "participant:"
	assignmentsKey    = "assignments"

	fieldName = "name"
	fieldWish = "wish"
)

// Redis keeps one hash per participant and a single hash for the draw,
// so the draw can be replaced in one MULTI/EXEC block.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, host, port, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: rdb}, nil
}

func participantKey(userID int64) string {
	return fmt.Sprintf("%s%d", participantPrefix, userID)
}

func (s *Redis) SaveParticipant(ctx context.Context, userID int64, name string) error {
	if err := s.client.HSet(ctx, participantKey(userID), fieldName, name).Err(); err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

func (s *Redis) GetParticipant(ctx context.Context, userID int64) (*domain.Participant, error) {
	fields, err := s.client.HGetAll(ctx, participantKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if _, ok := fields[fieldName]; !ok {
		return nil, nil
	}
	return &domain.Participant{
		UserID: userID,
		Name:   fields[fieldName],
		Wish:   fields[fieldWish],
	}, nil
}

func (s *Redis) GetAllParticipants(ctx context.Context) ([]*domain.Participant, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, participantPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get participant keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	participants := make([]*domain.Participant, 0, len(keys))
	for i, key := range keys {
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, participantPrefix), 10, 64)
		if err != nil {
			continue
		}
		fields := cmds[i].Val()
		if _, ok := fields[fieldName]; !ok {
			continue
		}
		participants = append(participants, &domain.Participant{
			UserID: userID,
			Name:   fields[fieldName],
			Wish:   fields[fieldWish],
		})
	}

	return participants, nil
}

func (s *Redis) DeleteParticipant(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, participantKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return nil
}

const maxWatchRetries = 5

// SaveWish writes the wish only if the participant still has a name. The
// check and the write run under WATCH on the participant key.
func (s *Redis) SaveWish(ctx context.Context, userID int64, wish string) error {
	key := participantKey(userID)
	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, key, fieldName).Result()
		if err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if !exists {
			return domain.ErrParticipantNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldWish, wish)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
			return fmt.Errorf("failed to save wish: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to save wish: %w", redis.TxFailedErr)
}

func (s *Redis) GetAllAssignments(ctx context.Context) (map[int64]int64, error) {
	fields, err := s.client.HGetAll(ctx, assignmentsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}

	assignments := make(map[int64]int64, len(fields))
	for giver, receiver := range fields {
		giverID, err := strconv.ParseInt(giver, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse giver ID %q: %w", giver, err)
		}
		receiverID, err := strconv.ParseInt(receiver, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse receiver ID %q: %w", receiver, err)
		}
		assignments[giverID] = receiverID
	}

	return assignments, nil
}

func (s *Redis) ReplaceAssignments(ctx context.Context, assignments []domain.Assignment) error {
	values := make([]interface{}, 0, len(assignments)*2)
	for _, a := range assignments {
		values = append(values, strconv.FormatInt(a.GiverID, 10), strconv.FormatInt(a.ReceiverID, 10))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, assignmentsKey)
		if len(values) > 0 {
			pipe.HSet(ctx, assignmentsKey, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save assignments: %w", err)
	}
	return nil
}

func (s *Redis) DeleteAllAssignments(ctx context.Context) error {
	if err := s.client.Del(ctx, assignmentsKey).Err(); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	return nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}
