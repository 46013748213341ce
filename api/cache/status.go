package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mangatint/api/dto"
)

const (
	statusKeyPrefix = "batch:status:"

	// Progress moves every page, so entries expire after a poll interval.
	statusTTL = 2 * time.Second
)

// StatusCache keeps recent batch snapshots in redis so progress polling
// does not hammer the job store.
type StatusCache struct {
	client *redis.Client
}

func Connect(addr string) (*StatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &StatusCache{client: client}, nil
}

func (sc *StatusCache) Get(ctx context.Context, jobID string) (*dto.JobResponse, error) {
	data, err := sc.client.Get(ctx, statusKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, err
	}

	var resp dto.JobResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (sc *StatusCache) Set(ctx context.Context, resp *dto.JobResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return sc.client.Set(ctx, statusKeyPrefix+resp.ID, data, statusTTL).Err()
}

func (sc *StatusCache) Invalidate(ctx context.Context, jobID string) error {
	return sc.client.Del(ctx, statusKeyPrefix+jobID).Err()
}

func (sc *StatusCache) Close() error {
	return sc.client.Close()
}
