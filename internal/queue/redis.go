package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "tubefetch:"

type RedisOptions struct {
	// Prefix namespaces every key.
	Prefix string
	// ResultTTL bounds how long an unread result or cancel marker lives.
	ResultTTL time.Duration
	// PollInterval is the server-side block timeout for BRPOP/BLPOP.
	PollInterval time.Duration
}

// RedisQueue shares jobs between processes. Jobs live in one list,
// each result in its own list so Await is a blocking pop.
type RedisQueue struct {
	client *redis.Client
	opts   RedisOptions
}

func NewRedisQueue(client *redis.Client, opts RedisOptions) *RedisQueue {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 24 * time.Hour
	}
	if opts.PollInterval < time.Second {
		opts.PollInterval = time.Second
	}
	return &RedisQueue{client: client, opts: opts}
}

// NewRedisQueueWithURL connects using a redis:// URL.
func NewRedisQueueWithURL(ctx context.Context, url string, opts RedisOptions) (*RedisQueue, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	// blocking pops must give up when the caller's context ends
	redisOpts.ContextTimeoutEnabled = true

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisQueue(client, opts), nil
}

func (q *RedisQueue) jobsKey() string             { return q.opts.Prefix + "jobs" }
func (q *RedisQueue) resultKey(id string) string { return q.opts.Prefix + "result:" + id }
func (q *RedisQueue) cancelKey(id string) string { return q.opts.Prefix + "cancel:" + id }

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.jobsKey(), data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		res, err := q.client.BRPop(ctx, q.opts.PollInterval, q.jobsKey()).Result()
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrClosed
			}
			return Job{}, err
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("malformed job in queue: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Complete(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.resultKey(res.JobID), data)
	pipe.Expire(ctx, q.resultKey(res.JobID), q.opts.ResultTTL)
	pipe.Del(ctx, q.cancelKey(res.JobID))
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Await(ctx context.Context, jobID string) (Result, error) {
	for {
		res, err := q.client.BLPop(ctx, q.opts.PollInterval, q.resultKey(jobID)).Result()
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return Result{}, ErrClosed
			}
			return Result{}, err
		}

		var out Result
		if err := json.Unmarshal([]byte(res[1]), &out); err != nil {
			return Result{}, fmt.Errorf("malformed result for %s: %w", jobID, err)
		}
		return out, nil
	}
}

func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	return q.client.Set(ctx, q.cancelKey(jobID), 1, q.opts.ResultTTL).Err()
}

func (q *RedisQueue) Cancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := q.client.Exists(ctx, q.cancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Depth reports how many jobs are waiting.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.jobsKey()).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
