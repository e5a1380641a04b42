package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/holidayvote/bridge/internal/model"
)

const (
	redisSnapshotKey = "bridge:tally"
	redisAuditKey    = "bridge:audit"
)

// RedisPersister is the alternative durable backend for deployments that
// already run Redis: the snapshot lives in a hash keyed by candidate id and
// audit records are appended to a list as JSON.
type RedisPersister struct {
	client *redis.Client
}

func NewRedisPersister(ctx context.Context, addr string) (*RedisPersister, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)

	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &RedisPersister{client: c}, nil
}

func (p *RedisPersister) LoadSnapshot(ctx context.Context) (model.Tally, bool, error) {
	fields, err := p.client.HGetAll(ctx, redisSnapshotKey).Result()
	if err != nil {
		return nil, false, fmt.Errorf("error getting snapshot from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	tally := make(model.Tally, len(fields))
	for idStr, countStr := range fields {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, false, fmt.Errorf("error parsing candidate id: %w", err)
		}
		count, err := strconv.Atoi(countStr)
		if err != nil {
			return nil, false, fmt.Errorf("error converting count to int: %w", err)
		}
		tally[model.CandidateID(id)] = count
	}

	return tally, true, nil
}

func (p *RedisPersister) SaveSnapshot(ctx context.Context, tally model.Tally) error {
	fields := make(map[string]any, len(tally))
	for id, count := range tally {
		fields[strconv.Itoa(int(id))] = count
	}
	if err := p.client.HSet(ctx, redisSnapshotKey, fields).Err(); err != nil {
		return fmt.Errorf("error saving snapshot to redis: %w", err)
	}
	return nil
}

func (p *RedisPersister) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error encoding audit record: %w", err)
	}
	if err := p.client.RPush(ctx, redisAuditKey, data).Err(); err != nil {
		return fmt.Errorf("error appending audit record to redis: %w", err)
	}
	return nil
}

func (p *RedisPersister) AuditCount(ctx context.Context) (int, error) {
	n, err := p.client.LLen(ctx, redisAuditKey).Result()
	if err != nil {
		return 0, fmt.Errorf("error counting audit records: %w", err)
	}
	return int(n), nil
}

func (p *RedisPersister) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("error closing redis client: %w", err)
	}
	return nil
}
