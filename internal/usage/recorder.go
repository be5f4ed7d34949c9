package usage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/s33g/llm-probe/internal/config"
	"github.com/s33g/llm-probe/internal/llm"
)

// Recorder tracks token usage per model and day in Redis. Long-running
// monitor runs use it to keep a view of what repeated probing costs.
type Recorder struct {
	rdb       *redis.Client
	keys      *Keys
	retention time.Duration
}

// NewRecorder creates a new usage recorder from configuration
func NewRecorder(cfg config.UsageConfig) (*Recorder, error) {
	// Get password from environment if specified
	password := ""
	if cfg.Redis.PasswordEnv != "" {
		password = os.Getenv(cfg.Redis.PasswordEnv)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: password,
		DB:       cfg.Redis.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Recorder{
		rdb:       rdb,
		keys:      NewKeys(cfg.Redis.KeyPrefix),
		retention: cfg.Retention(),
	}, nil
}

// Close closes the Redis connection
func (r *Recorder) Close() error {
	return r.rdb.Close()
}

// Record adds the metrics of one completed request to the model's daily
// counters. Counters expire after the configured retention window.
func (r *Recorder) Record(ctx context.Context, model string, metrics llm.UsageMetrics) error {
	key := r.keys.Usage(model, time.Now().UTC().Format("2006-01-02"))

	pipe := r.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, "input_tokens", int64(metrics.InputTokens))
	pipe.HIncrBy(ctx, key, "output_tokens", int64(metrics.OutputTokens))
	pipe.HIncrBy(ctx, key, "requests", 1)
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Totals holds accumulated counters for one model and day
type Totals struct {
	InputTokens  int64
	OutputTokens int64
	Requests     int64
}

// DailyTotals returns the accumulated counters for a model on a given day
// (date formatted as 2006-01-02)
func (r *Recorder) DailyTotals(ctx context.Context, model, date string) (*Totals, error) {
	fields, err := r.rdb.HGetAll(ctx, r.keys.Usage(model, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}

	totals := &Totals{}
	totals.InputTokens, _ = strconv.ParseInt(fields["input_tokens"], 10, 64)
	totals.OutputTokens, _ = strconv.ParseInt(fields["output_tokens"], 10, 64)
	totals.Requests, _ = strconv.ParseInt(fields["requests"], 10, 64)
	return totals, nil
}
