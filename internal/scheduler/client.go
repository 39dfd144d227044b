package scheduler

import (
	"context"
	"fmt"

	"opticai_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// InsightsScheduler is the narrow interface handlers use to enqueue
// background insight generation.
type InsightsScheduler interface {
	EnqueueInsightsGenerate(ctx context.Context, payload InsightsGeneratePayload) error
	EnqueueInsightsGeneratePart(ctx context.Context, payload InsightsGeneratePartPayload) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueInsightsGenerate(ctx context.Context, payload InsightsGeneratePayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewInsightsGenerateTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func (c *Client) EnqueueInsightsGeneratePart(ctx context.Context, payload InsightsGeneratePartPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewInsightsGeneratePartTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
