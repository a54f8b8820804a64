// Package admission implements the admission/autoscaler layer: sliding
// window rate limits per client, global spike detection, and a daily
// per-client token budget, graded into the FallbackLevels the routing
// manager acts on before a request ever reaches the decision engine.
package admission

import (
	"context"
	"strconv"
	"time"

	"github.com/arcrelay/gateway/internal/statestore"
	"github.com/arcrelay/gateway/internal/telemetry"
	gwerrors "github.com/arcrelay/gateway/pkg/errors"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Config holds the configurable thresholds for admission control.
type Config struct {
	RequestsPerMinute  int
	RequestsPerHour    int
	CheapModel         string
	SpikeMultiplier    float64
	SpikeWindowSeconds int
	DailyTokenBudget   int64
}

// DefaultConfig mirrors the routing subsystem's original defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute:  100,
		RequestsPerHour:    1000,
		CheapModel:         "cheap-default",
		SpikeMultiplier:    4.0,
		SpikeWindowSeconds: 60,
		DailyTokenBudget:   1_000_000,
	}
}

const (
	minuteWindow = 60 * time.Second
	hourWindow   = time.Hour
	tokenTTL     = 7 * 24 * time.Hour
)

// cheapModelThreshold is the per-minute utilization fraction that
// triggers CHEAP_MODEL grading even without breaching the hard limit.
const cheapModelThreshold = 0.8

// Controller grades each incoming request into a FallbackLevel using
// shared sliding-window counters so replicas agree on the same limits.
type Controller struct {
	store     statestore.Store
	telemetry *telemetry.Store
	cfg       Config
	emergency bool // operator-toggled process-level emergency flag
}

// New creates an admission controller.
func New(store statestore.Store, telemetryStore *telemetry.Store, cfg Config) *Controller {
	return &Controller{store: store, telemetry: telemetryStore, cfg: cfg}
}

// SetEmergency toggles the process-level emergency flag an operator
// can flip to force EMERGENCY grading for every request.
func (c *Controller) SetEmergency(on bool) { c.emergency = on }

// Decision is the outcome of admission for one request.
type Decision struct {
	Level      gateway.FallbackLevel
	RetryAfter float64 // seconds; populated only for DENY
	CheapModel string  // populated for CHEAP_MODEL and EMERGENCY
}

// Check grades one request for clientKey. It records the request
// against the minute/hour windows only when it will be allowed to
// proceed (NORMAL or CHEAP_MODEL); EMERGENCY and DENY do not consume
// a slot since the request is redirected or rejected.
func (c *Controller) Check(ctx context.Context, clientKey, requestPath string) (Decision, error) {
	if c.emergency {
		return Decision{Level: gateway.LevelEmergency, CheapModel: c.cfg.CheapModel}, nil
	}

	minuteKey := statestore.RateLimitMinuteKey(clientKey, requestPath)
	hourKey := statestore.RateLimitHourKey(clientKey, requestPath)

	hourCount, err := readCount(ctx, c.store, hourKey)
	if err != nil {
		return Decision{}, err
	}
	if hourCount >= int64(c.cfg.RequestsPerHour) {
		return Decision{Level: gateway.LevelDeny, RetryAfter: hourWindow.Seconds()}, nil
	}

	minuteCount, err := readCount(ctx, c.store, minuteKey)
	if err != nil {
		return Decision{}, err
	}

	level := gateway.LevelNormal
	switch {
	case minuteCount >= int64(c.cfg.RequestsPerMinute):
		level = gateway.LevelEmergency
	case float64(minuteCount) >= float64(c.cfg.RequestsPerMinute)*cheapModelThreshold:
		level = gateway.LevelCheapModel
	}

	if c.telemetry.DetectSpike("global", c.cfg.SpikeMultiplier, c.cfg.SpikeWindowSeconds) {
		level = raiseOneNotch(level)
	}

	if level == gateway.LevelEmergency {
		return Decision{Level: level, CheapModel: c.cfg.CheapModel}, nil
	}

	if err := incrWithTTL(ctx, c.store, minuteKey, minuteWindow); err != nil {
		return Decision{}, err
	}
	if err := incrWithTTL(ctx, c.store, hourKey, hourWindow); err != nil {
		return Decision{}, err
	}
	c.telemetry.RecordRequest("global", 0, true)

	if level == gateway.LevelCheapModel {
		return Decision{Level: level, CheapModel: c.cfg.CheapModel}, nil
	}
	return Decision{Level: gateway.LevelNormal}, nil
}

func raiseOneNotch(level gateway.FallbackLevel) gateway.FallbackLevel {
	switch level {
	case gateway.LevelNormal:
		return gateway.LevelCheapModel
	case gateway.LevelCheapModel:
		return gateway.LevelEmergency
	default:
		return level
	}
}

// readCount parses a counter key's current value, treating an absent
// key as zero.
func readCount(ctx context.Context, store statestore.Store, key string) (int64, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// incrWithTTL creates the counter at "0" with ttl if absent (so the
// window expires even under a low-traffic key), then increments it.
func incrWithTTL(ctx context.Context, store statestore.Store, key string, ttl time.Duration) error {
	if _, err := store.SetNX(ctx, key, "0", ttl); err != nil {
		return err
	}
	_, err := store.Incr(ctx, key, 1)
	return err
}

// CheckTokenBudget debits tokensUsed from clientKey's daily budget,
// returning DENY with a retry-after to the next UTC day if the budget
// is already exhausted. Call after a successful completion so only
// consumed tokens count against the budget.
func (c *Controller) CheckTokenBudget(ctx context.Context, clientKey string, tokensUsed int64) (Decision, error) {
	key := statestore.TokenBudgetKey(clientKey, time.Now().UTC().Format("2006-01-02"))

	used, err := readCount(ctx, c.store, key)
	if err != nil {
		return Decision{}, err
	}

	if used >= c.cfg.DailyTokenBudget {
		return Decision{Level: gateway.LevelDeny, RetryAfter: secondsUntilNextUTCDay()}, nil
	}

	if tokensUsed > 0 {
		if _, err := c.store.SetNX(ctx, key, "0", tokenTTL); err != nil {
			return Decision{}, err
		}
		if _, err := c.store.Incr(ctx, key, tokensUsed); err != nil {
			return Decision{}, err
		}
	}
	return Decision{Level: gateway.LevelNormal}, nil
}

func secondsUntilNextUTCDay() float64 {
	now := time.Now().UTC()
	nextDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return nextDay.Sub(now).Seconds()
}

// RateLimitExceededError builds the standardized denial error for a
// DENY decision.
func RateLimitExceededError(d Decision) error {
	return gwerrors.NewRateLimitExceeded(d.RetryAfter)
}
