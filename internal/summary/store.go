package summary

import (
	"context"
	"errors"
	"time"

	"fund-manager/internal/messaging"
	"fund-manager/internal/models"
	"fund-manager/pkg/cache"
)

const (
	DefaultKey     = "fundmanager:summary"
	DefaultChannel = "fundmanager:summary:updates"
)

// Store persists the summary and announces every new version
type Store interface {
	Save(ctx context.Context, summary models.FundSummaryData) error
	Load(ctx context.Context) (models.FundSummaryData, error)
	Publish(ctx context.Context, summary models.FundSummaryData) error
}

// RedisStore keeps the summary as JSON under one key and publishes updates
// on a channel
type RedisStore struct {
	client  *cache.RedisClient
	key     string
	channel string
	ttl     time.Duration
}

func NewRedisStore(client *cache.RedisClient, key, channel string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisStore{client: client, key: key, channel: channel, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, summary models.FundSummaryData) error {
	return s.client.Set(ctx, s.key, summary, s.ttl)
}

// Load returns the stored summary, or an empty one when nothing is stored
func (s *RedisStore) Load(ctx context.Context) (models.FundSummaryData, error) {
	var summary models.FundSummaryData
	if err := s.client.Get(ctx, s.key, &summary); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return models.FundSummaryData{}, nil
		}
		return models.FundSummaryData{}, err
	}
	return summary, nil
}

func (s *RedisStore) Publish(ctx context.Context, summary models.FundSummaryData) error {
	return s.client.Publish(ctx, s.channel, summary)
}

// Subscribe streams every published summary until ctx ends. Payloads that do
// not decode are skipped.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan models.FundSummaryData, error) {
	raw, err := s.client.Subscribe(ctx, s.channel)
	if err != nil {
		return nil, err
	}

	out := make(chan models.FundSummaryData)
	go func() {
		defer close(out)
		for payload := range raw {
			summary, err := messaging.DecodeStrict[models.FundSummaryData](payload)
			if err != nil {
				continue
			}
			select {
			case out <- summary:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
