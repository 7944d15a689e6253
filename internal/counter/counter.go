// Package counter implements the per-workspace click counter. Every
// workspace's state lives in one Redis hash, and every mutation goes
// through a Lua script so a workspace's own increments are always
// serialized against each other — Redis executes the script atomically,
// giving the per-key exclusivity the spec requires without an external
// lock or actor, following the same script-per-key idiom as the teacher's
// token-bucket rate limiter.
//
// The Free and Pro counters are independent fields in the same hash
// (free_tracked_clicks/month_key, pro_tracked_clicks/period_start/
// period_end): a workspace that changes plan mid-month never migrates or
// merges totals between the two (spec.md §3).
package counter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "counter:workspace:"

// hashTTL is generous relative to a billing period; the hash is rebuilt
// from catalog/billing state if it ever expires early, so this is a safety
// net rather than a correctness requirement.
const hashTTL = 400 * 24 * time.Hour

// ErrCapExceeded is returned by IncrementFreeIfUnderCap when the workspace
// has already used its monthly allotment for the given month key.
var ErrCapExceeded = errors.New("counter: monthly cap exceeded")

// incrementFreeScript runs the Free month-reset check, then increments and
// compares against cap in the same round trip. It only ever touches
// month_key/free_tracked_clicks.
var incrementFreeScript = redis.NewScript(`
	local key = KEYS[1]
	local month_key = ARGV[1]
	local cap = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local stored_month = redis.call('HGET', key, 'month_key')
	if stored_month ~= month_key then
		redis.call('HSET', key, 'month_key', month_key, 'free_tracked_clicks', 0)
	end

	local tracked = tonumber(redis.call('HGET', key, 'free_tracked_clicks')) or 0
	if tracked >= cap then
		redis.call('EXPIRE', key, ttl)
		return {0, tracked}
	end

	tracked = tracked + 1
	redis.call('HSET', key, 'free_tracked_clicks', tracked)
	redis.call('EXPIRE', key, ttl)
	return {1, tracked}
`)

// getFreeUsageScript runs the same month-reset check as the increment
// script but never increments, so GetFreeUsage can be called freely
// without perturbing the count.
var getFreeUsageScript = redis.NewScript(`
	local key = KEYS[1]
	local month_key = ARGV[1]
	local ttl = tonumber(ARGV[2])

	local stored_month = redis.call('HGET', key, 'month_key')
	if stored_month ~= month_key then
		redis.call('HSET', key, 'month_key', month_key, 'free_tracked_clicks', 0)
		redis.call('EXPIRE', key, ttl)
		return 0
	end

	local tracked = tonumber(redis.call('HGET', key, 'free_tracked_clicks')) or 0
	redis.call('EXPIRE', key, ttl)
	return tracked
`)

// setProPeriodScript overwrites the stored Pro period and resets
// pro_tracked_clicks to 0 only when (start,end) differs from what's
// stored; otherwise it is a no-op, so replaying the same period never
// erases clicks already counted against it.
var setProPeriodScript = redis.NewScript(`
	local key = KEYS[1]
	local start = ARGV[1]
	local end_ = ARGV[2]
	local ttl = tonumber(ARGV[3])

	local stored_start = redis.call('HGET', key, 'period_start')
	local stored_end = redis.call('HGET', key, 'period_end')

	if stored_start == start and stored_end == end_ then
		local tracked = tonumber(redis.call('HGET', key, 'pro_tracked_clicks')) or 0
		redis.call('EXPIRE', key, ttl)
		return tracked
	end

	redis.call('HSET', key, 'period_start', start, 'period_end', end_, 'pro_tracked_clicks', 0)
	redis.call('EXPIRE', key, ttl)
	return 0
`)

// Counter is the Redis-backed per-workspace click counter.
type Counter struct {
	client *redis.Client
}

// New wraps an existing Redis client as a Counter.
func New(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// IncrementFreeIfUnderCap runs the Free month-reset check and, if
// free_tracked_clicks is under cap, increments and persists it. Returns
// ErrCapExceeded (not an error the caller needs to retry) once the
// workspace has reached cap for monthKey.
func (c *Counter) IncrementFreeIfUnderCap(ctx context.Context, workspaceID, monthKey string, cap int64) (int64, error) {
	key := keyPrefix + workspaceID
	res, err := incrementFreeScript.Run(ctx, c.client, []string{key}, monthKey, cap, int(hashTTL.Seconds())).Int64Slice()
	if err != nil {
		return 0, err
	}
	incremented, tracked := res[0], res[1]
	if incremented == 0 {
		return tracked, ErrCapExceeded
	}
	return tracked, nil
}

// IncrementPro increments a Pro-plan workspace's pro_tracked_clicks and
// returns the new total. Pro workspaces are never refused at the counter;
// overage is settled by the Billing Reporter. The plan period itself is
// only ever changed by SetProPeriod, never by this call.
func (c *Counter) IncrementPro(ctx context.Context, workspaceID string) (int64, error) {
	key := keyPrefix + workspaceID
	return c.client.HIncrBy(ctx, key, "pro_tracked_clicks", 1).Result()
}

// SetProPeriod overwrites the stored Pro period when (start,end) differs
// from what's currently stored, resetting pro_tracked_clicks to 0. If the
// pair is unchanged it is a no-op, so
// SetProPeriod(a,b); IncrementPro×k; SetProPeriod(a,b) leaves
// pro_tracked_clicks = k (spec.md I5). Returns the post-call tracked count.
func (c *Counter) SetProPeriod(ctx context.Context, workspaceID string, start, end time.Time) (int64, error) {
	key := keyPrefix + workspaceID
	return setProPeriodScript.Run(
		ctx, c.client, []string{key},
		strconv.FormatInt(start.Unix(), 10),
		strconv.FormatInt(end.Unix(), 10),
		int(hashTTL.Seconds()),
	).Int64()
}

// FreeUsage is the Free-plan counter state returned by GetFreeUsage.
type FreeUsage struct {
	MonthKey string
	Tracked  int64
}

// GetFreeUsage runs the same month-reset check IncrementFreeIfUnderCap
// does, then returns the resulting state without incrementing it.
func (c *Counter) GetFreeUsage(ctx context.Context, workspaceID, monthKey string) (FreeUsage, error) {
	key := keyPrefix + workspaceID
	tracked, err := getFreeUsageScript.Run(ctx, c.client, []string{key}, monthKey, int(hashTTL.Seconds())).Int64()
	if err != nil {
		return FreeUsage{}, err
	}
	return FreeUsage{MonthKey: monthKey, Tracked: tracked}, nil
}

// ProUsage is the Pro-plan counter state returned by GetProUsage.
type ProUsage struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Tracked     int64
}

// hashState is the raw hash shape read back for GetProUsage.
type hashState struct {
	PeriodStart string `redis:"period_start"`
	PeriodEnd   string `redis:"period_end"`
	ProTracked  string `redis:"pro_tracked_clicks"`
}

// GetProUsage returns the stored Pro period and tracked count with no
// implicit reset — unlike GetFreeUsage, Pro period resets are driven
// exclusively by SetProPeriod (spec.md §4.3, §4.9's "the counter's own
// stored period, not just the catalog's" check).
func (c *Counter) GetProUsage(ctx context.Context, workspaceID string) (ProUsage, error) {
	key := keyPrefix + workspaceID
	var s hashState
	if err := c.client.HGetAll(ctx, key).Scan(&s); err != nil {
		return ProUsage{}, err
	}

	var usage ProUsage
	if s.PeriodStart != "" {
		if secs, err := strconv.ParseInt(s.PeriodStart, 10, 64); err == nil {
			usage.PeriodStart = time.Unix(secs, 0).UTC()
		}
	}
	if s.PeriodEnd != "" {
		if secs, err := strconv.ParseInt(s.PeriodEnd, 10, 64); err == nil {
			usage.PeriodEnd = time.Unix(secs, 0).UTC()
		}
	}
	if s.ProTracked != "" {
		tracked, err := strconv.ParseInt(s.ProTracked, 10, 64)
		if err != nil {
			return ProUsage{}, err
		}
		usage.Tracked = tracked
	}
	return usage, nil
}
