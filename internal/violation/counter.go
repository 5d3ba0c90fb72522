// Package violation counts off-platform attempts per user and decides when a
// sender is suspended.
package violation

import (
	"context"
	"fmt"
	"time"
)

// KeyPrefix is the storage key prefix for violation counters.
const KeyPrefix = "chat_violations_"

// DefaultSuspendAfter is the count at which a sender is suspended: the first
// violation only warns, the second suspends.
const DefaultSuspendAfter = 2

// Scope decides whether counters are shared across chat channels.
type Scope string

const (
	// ScopeGlobal keeps one counter per user for every chat.
	ScopeGlobal Scope = "global"
	// ScopeChannel keeps one counter per user and channel class.
	ScopeChannel Scope = "channel"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeChannel:
		return true
	}
	return false
}

// Store is the persistence capability behind a Counter. Increment must be
// atomic per key. A positive ttl makes the counter expire ttl after its most
// recent increment.
type Store interface {
	Get(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Record is a read-only view of one counter.
type Record struct {
	Key          string `json:"key"`
	UserID       string `json:"user_id"`
	Channel      string `json:"channel,omitempty"`
	Count        int64  `json:"count"`
	SuspendAfter int64  `json:"suspend_after"`
	Suspended    bool   `json:"suspended"`
}

// Options configures a Counter.
type Options struct {
	Scope        Scope
	SuspendAfter int64
	// Decay expires a counter this long after the last violation. Zero keeps
	// counters until they are reset.
	Decay time.Duration
}

// Counter applies the warning/suspension policy on top of a Store.
type Counter struct {
	store        Store
	scope        Scope
	suspendAfter int64
	decay        time.Duration
}

// NewCounter returns a Counter backed by store.
func NewCounter(store Store, opts Options) *Counter {
	if !opts.Scope.IsValid() {
		opts.Scope = ScopeGlobal
	}
	if opts.SuspendAfter <= 0 {
		opts.SuspendAfter = DefaultSuspendAfter
	}
	return &Counter{
		store:        store,
		scope:        opts.Scope,
		suspendAfter: opts.SuspendAfter,
		decay:        opts.Decay,
	}
}

// SuspendAfter returns the count at which senders are suspended.
func (c *Counter) SuspendAfter() int64 { return c.suspendAfter }

// Scope returns the configured counter scope.
func (c *Counter) Scope() Scope { return c.scope }

// Key returns the storage key for userID in channel. channel is ignored under
// ScopeGlobal.
func (c *Counter) Key(userID, channel string) string {
	if c.scope == ScopeChannel && channel != "" {
		return KeyPrefix + channel + "_" + userID
	}
	return KeyPrefix + userID
}

// RecordViolation increments the counter and returns the new count.
func (c *Counter) RecordViolation(ctx context.Context, userID, channel string) (int64, error) {
	count, err := c.store.Increment(ctx, c.Key(userID, channel), c.decay)
	if err != nil {
		return 0, fmt.Errorf("record violation for %s: %w", userID, err)
	}
	return count, nil
}

// IsDisabled reports whether userID is suspended in channel.
func (c *Counter) IsDisabled(ctx context.Context, userID, channel string) (bool, error) {
	count, err := c.store.Get(ctx, c.Key(userID, channel))
	if err != nil {
		return false, fmt.Errorf("read violations for %s: %w", userID, err)
	}
	return c.suspended(count), nil
}

// Status returns the counter of userID in channel.
func (c *Counter) Status(ctx context.Context, userID, channel string) (Record, error) {
	key := c.Key(userID, channel)
	count, err := c.store.Get(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("read violations for %s: %w", userID, err)
	}

	rec := Record{
		Key:          key,
		UserID:       userID,
		Count:        count,
		SuspendAfter: c.suspendAfter,
		Suspended:    c.suspended(count),
	}
	if c.scope == ScopeChannel {
		rec.Channel = channel
	}
	return rec, nil
}

// Reset clears the counter of userID in channel.
func (c *Counter) Reset(ctx context.Context, userID, channel string) error {
	if err := c.store.Reset(ctx, c.Key(userID, channel)); err != nil {
		return fmt.Errorf("reset violations for %s: %w", userID, err)
	}
	return nil
}

func (c *Counter) suspended(count int64) bool {
	return count >= c.suspendAfter
}
