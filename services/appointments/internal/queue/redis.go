package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	otelx "github.com/sytefy/backend/libs/otel"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

// RedisBroker layout under prefix:
//
//	<prefix>:job:<id>  job JSON
//	<prefix>:due       ZSET of pending ids scored by fire time (unix ms)
//	<prefix>:running   ZSET of claimed ids scored by lease expiry (unix ms)
//	<prefix>:dead      LIST of buried job JSON
type RedisBroker struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisBroker(rdb redis.UniversalClient, prefix string) *RedisBroker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "reminders"
	}
	return &RedisBroker{rdb: rdb, prefix: prefix, now: time.Now}
}

func (b *RedisBroker) Name() string { return "redis" }

func (b *RedisBroker) jobKey(id string) string { return b.prefix + ":job:" + id }
func (b *RedisBroker) dueKey() string          { return b.prefix + ":due" }
func (b *RedisBroker) runningKey() string      { return b.prefix + ":running" }
func (b *RedisBroker) deadKey() string         { return b.prefix + ":dead" }

func (b *RedisBroker) Enqueue(ctx context.Context, reminder model.Reminder) (string, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	job := Job{
		TaskID:        uuid.NewString(),
		AppointmentID: reminder.AppointmentID,
		Channels:      reminder.Channels,
		RemindAt:      reminder.RemindAt.UTC(),
		Payload:       reminder.Payload,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, b.jobKey(job.TaskID), raw, 0)
		p.ZAdd(ctx, b.dueKey(), redis.Z{Score: float64(job.RemindAt.UnixMilli()), Member: job.TaskID})
		return nil
	})
	if err != nil {
		return "", err
	}
	return job.TaskID, nil
}

// Revoke drops a job that is still waiting. Claimed jobs are left alone.
func (b *RedisBroker) Revoke(ctx context.Context, taskID string) error {
	removed, err := b.rdb.ZRem(ctx, b.dueKey(), taskID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	return b.rdb.Del(ctx, b.jobKey(taskID)).Err()
}

// claimScript moves due ids (and running ids whose lease expired) into the
// running set with a fresh lease, returning the claimed ids.
var claimScript = redis.NewScript(`
local due = KEYS[1]
local running = KEYS[2]
local now = tonumber(ARGV[1])
local lease_until = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local out = {}
local expired = redis.call("ZRANGEBYSCORE", running, "-inf", now, "LIMIT", 0, limit)
for _, id in ipairs(expired) do
  redis.call("ZADD", running, lease_until, id)
  table.insert(out, id)
end
local remaining = limit - #out
if remaining > 0 then
  local ids = redis.call("ZRANGEBYSCORE", due, "-inf", now, "LIMIT", 0, remaining)
  for _, id in ipairs(ids) do
    redis.call("ZREM", due, id)
    redis.call("ZADD", running, lease_until, id)
    table.insert(out, id)
  end
end
return out
`)

func (b *RedisBroker) Claim(ctx context.Context, limit int, lease time.Duration) ([]Job, error) {
	now := b.now()
	ids, err := claimScript.Run(ctx, b.rdb,
		[]string{b.dueKey(), b.runningKey()},
		now.UnixMilli(), now.Add(lease).UnixMilli(), limit,
	).StringSlice()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.jobKey(id)
	}
	raws, err := b.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(ids))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			// revoked or completed between claim and fetch
			b.rdb.ZRem(ctx, b.runningKey(), ids[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		job.Attempts++
		if err := b.save(ctx, job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// extendScript refreshes a running id's lease while the stored attempt count
// still matches the caller's claim.
var extendScript = redis.NewScript(`
local running = KEYS[1]
local job_key = KEYS[2]
local id = ARGV[1]
local lease_until = tonumber(ARGV[2])
local attempts = tonumber(ARGV[3])
if not redis.call("ZSCORE", running, id) then
  return 0
end
local raw = redis.call("GET", job_key)
if not raw then
  return 0
end
if cjson.decode(raw)["attempts"] ~= attempts then
  return 0
end
redis.call("ZADD", running, "XX", lease_until, id)
return 1
`)

func (b *RedisBroker) Extend(ctx context.Context, job Job, lease time.Duration) error {
	ok, err := extendScript.Run(ctx, b.rdb,
		[]string{b.runningKey(), b.jobKey(job.TaskID)},
		job.TaskID, b.now().Add(lease).UnixMilli(), job.Attempts,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (b *RedisBroker) Complete(ctx context.Context, job Job) error {
	_, err := b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, b.runningKey(), job.TaskID)
		p.Del(ctx, b.jobKey(job.TaskID))
		return nil
	})
	return err
}

func (b *RedisBroker) Retry(ctx context.Context, job Job, nextRunAt time.Time, lastErr string) error {
	exists, err := b.rdb.Exists(ctx, b.jobKey(job.TaskID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return b.rdb.ZRem(ctx, b.runningKey(), job.TaskID).Err()
	}
	job.LastError = lastErr
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, b.runningKey(), job.TaskID)
		p.Set(ctx, b.jobKey(job.TaskID), raw, 0)
		p.ZAdd(ctx, b.dueKey(), redis.Z{Score: float64(nextRunAt.UnixMilli()), Member: job.TaskID})
		return nil
	})
	return err
}

func (b *RedisBroker) Bury(ctx context.Context, job Job, lastErr string) error {
	job.LastError = lastErr
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, b.runningKey(), job.TaskID)
		p.Del(ctx, b.jobKey(job.TaskID))
		p.LPush(ctx, b.deadKey(), raw)
		return nil
	})
	return err
}

func (b *RedisBroker) save(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.rdb.Set(ctx, b.jobKey(job.TaskID), raw, 0).Err()
}

func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
