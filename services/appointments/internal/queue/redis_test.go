package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

func newRedisBroker(t *testing.T, now time.Time) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := NewRedisBroker(rdb, "test")
	b.now = func() time.Time { return now }
	return b, mr
}

func TestRedisClaimOnlyDueJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b, _ := newRedisBroker(t, now)
	ctx := context.Background()

	dueID, err := b.Enqueue(ctx, model.Reminder{AppointmentID: 1, RemindAt: now.Add(-time.Minute), Channels: []string{"log"}, Payload: map[string]any{"title": "A"}})
	require.NoError(t, err)
	_, err = b.Enqueue(ctx, model.Reminder{AppointmentID: 2, RemindAt: now.Add(time.Hour), Channels: []string{"log"}})
	require.NoError(t, err)

	jobs, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, dueID, jobs[0].TaskID)
	require.Equal(t, int64(1), jobs[0].AppointmentID)
	require.Equal(t, 1, jobs[0].Attempts)
	require.Equal(t, "A", jobs[0].Payload["title"])

	again, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestRedisRevokePendingJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b, mr := newRedisBroker(t, now)
	ctx := context.Background()

	id, err := b.Enqueue(ctx, model.Reminder{AppointmentID: 1, RemindAt: now.Add(-time.Minute), Channels: []string{"log"}})
	require.NoError(t, err)
	require.NoError(t, b.Revoke(ctx, id))
	require.False(t, mr.Exists("test:job:"+id))

	jobs, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, jobs)

	require.NoError(t, b.Revoke(ctx, "unknown"))
}

func TestRedisExpiredLeaseIsReclaimed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b, _ := newRedisBroker(t, now)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, model.Reminder{AppointmentID: 1, RemindAt: now.Add(-time.Minute), Channels: []string{"log"}})
	require.NoError(t, err)
	jobs, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	jobs, err = b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, 2, jobs[0].Attempts)
}

func TestRedisRetryCompleteBury(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b, mr := newRedisBroker(t, now)
	ctx := context.Background()

	id, err := b.Enqueue(ctx, model.Reminder{AppointmentID: 1, RemindAt: now.Add(-time.Minute), Channels: []string{"log"}})
	require.NoError(t, err)
	jobs, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, b.Retry(ctx, jobs[0], now.Add(30*time.Second), "boom"))
	jobs, err = b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, jobs)

	b.now = func() time.Time { return now.Add(time.Minute) }
	jobs, err = b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "boom", jobs[0].LastError)
	require.Equal(t, 2, jobs[0].Attempts)

	require.NoError(t, b.Bury(ctx, jobs[0], "still failing"))
	require.False(t, mr.Exists("test:job:"+id))
	dead, err := mr.List("test:dead")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var buried Job
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &buried))
	require.Equal(t, id, buried.TaskID)
	require.Equal(t, "still failing", buried.LastError)

	other, err := b.Enqueue(ctx, model.Reminder{AppointmentID: 2, RemindAt: now, Channels: []string{"log"}})
	require.NoError(t, err)
	jobs, err = b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, b.Complete(ctx, jobs[0]))
	require.False(t, mr.Exists("test:job:"+other))
}

func TestOpenSelectsBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	opened, err := Open(ctx, Config{Backend: "redis", RedisAddr: mr.Addr(), Prefix: "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, "redis", opened.Broker.Name())
	require.NoError(t, opened.Ready(ctx))
	require.NoError(t, opened.Close())

	opened, err = Open(ctx, Config{Backend: "postgres"}, nil)
	require.NoError(t, err)
	require.Equal(t, "postgres", opened.Broker.Name())

	_, err = Open(ctx, Config{Backend: "sqs"}, nil)
	require.Error(t, err)
}

func TestRedisExtendLease(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b, mr := newRedisBroker(t, now)
	ctx := context.Background()

	_, err := b.Enqueue(ctx, model.Reminder{AppointmentID: 1, RemindAt: now.Add(-time.Minute), Channels: []string{"log"}})
	require.NoError(t, err)
	jobs, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	job := jobs[0]

	b.now = func() time.Time { return now.Add(50 * time.Second) }
	require.NoError(t, b.Extend(ctx, job, time.Minute))
	score, err := mr.ZScore("test:running", job.TaskID)
	require.NoError(t, err)
	require.Equal(t, float64(now.Add(110*time.Second).UnixMilli()), score)

	// the renewed lease keeps the job away from other claimers
	b.now = func() time.Time { return now.Add(90 * time.Second) }
	again, err := b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, again)

	// once reclaimed after expiry, the old claim can no longer extend
	b.now = func() time.Time { return now.Add(3 * time.Minute) }
	again, err = b.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.ErrorIs(t, b.Extend(ctx, job, time.Minute), ErrLeaseLost)
	require.NoError(t, b.Extend(ctx, again[0], time.Minute))

	require.NoError(t, b.Complete(ctx, again[0]))
	require.ErrorIs(t, b.Extend(ctx, again[0], time.Minute), ErrLeaseLost)
}
