package violation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestCounter_Escalation(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(NewMemoryStore(), Options{})

	disabled, err := c.IsDisabled(ctx, "u1", "unified")
	if err != nil || disabled {
		t.Fatalf("fresh user: disabled=%v err=%v", disabled, err)
	}

	count, err := c.RecordViolation(ctx, "u1", "unified")
	if err != nil {
		t.Fatalf("RecordViolation() error = %v", err)
	}
	if count != 1 {
		t.Errorf("first violation count = %d, want 1", count)
	}
	if disabled, _ := c.IsDisabled(ctx, "u1", "unified"); disabled {
		t.Error("suspended after the first violation")
	}

	count, _ = c.RecordViolation(ctx, "u1", "unified")
	if count != 2 {
		t.Errorf("second violation count = %d, want 2", count)
	}
	if disabled, _ := c.IsDisabled(ctx, "u1", "unified"); !disabled {
		t.Error("not suspended after the second violation")
	}

	if err := c.Reset(ctx, "u1", "unified"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if disabled, _ := c.IsDisabled(ctx, "u1", "unified"); disabled {
		t.Error("still suspended after Reset")
	}
}

func TestCounter_Key(t *testing.T) {
	tests := []struct {
		scope   Scope
		channel string
		want    string
	}{
		{ScopeGlobal, "exchange", "chat_violations_u1"},
		{ScopeChannel, "exchange", "chat_violations_exchange_u1"},
		{ScopeChannel, "", "chat_violations_u1"},
		{Scope("bogus"), "exchange", "chat_violations_u1"},
	}
	for _, tt := range tests {
		c := NewCounter(NewMemoryStore(), Options{Scope: tt.scope})
		if got := c.Key("u1", tt.channel); got != tt.want {
			t.Errorf("Key(scope=%q, channel=%q) = %q, want %q", tt.scope, tt.channel, got, tt.want)
		}
	}
}

func TestCounter_GlobalScopeSharesAcrossChannels(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(NewMemoryStore(), Options{Scope: ScopeGlobal})

	c.RecordViolation(ctx, "u1", "unified")
	c.RecordViolation(ctx, "u1", "exchange")

	if disabled, _ := c.IsDisabled(ctx, "u1", "unified"); !disabled {
		t.Error("global scope did not combine channels")
	}
}

func TestCounter_ChannelScopeIsolates(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(NewMemoryStore(), Options{Scope: ScopeChannel})

	c.RecordViolation(ctx, "u1", "unified")
	c.RecordViolation(ctx, "u1", "exchange")

	rec, err := c.Status(ctx, "u1", "unified")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if rec.Count != 1 || rec.Suspended || rec.Channel != "unified" {
		t.Errorf("Status() = %+v, want count 1 in unified", rec)
	}
}

func TestCounter_CustomThreshold(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(NewMemoryStore(), Options{SuspendAfter: 3})

	for i := 0; i < 2; i++ {
		c.RecordViolation(ctx, "u1", "")
	}
	if disabled, _ := c.IsDisabled(ctx, "u1", ""); disabled {
		t.Error("suspended below threshold")
	}
	c.RecordViolation(ctx, "u1", "")
	if disabled, _ := c.IsDisabled(ctx, "u1", ""); !disabled {
		t.Error("not suspended at threshold")
	}
}

type failingStore struct{ err error }

func (s failingStore) Get(context.Context, string) (int64, error) { return 0, s.err }
func (s failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, s.err
}
func (s failingStore) Reset(context.Context, string) error { return s.err }

func TestCounter_WrapsStoreErrors(t *testing.T) {
	boom := errors.New("store down")
	c := NewCounter(failingStore{err: boom}, Options{})
	ctx := context.Background()

	if _, err := c.RecordViolation(ctx, "u1", ""); !errors.Is(err, boom) {
		t.Errorf("RecordViolation() error = %v", err)
	}
	if _, err := c.IsDisabled(ctx, "u1", ""); !errors.Is(err, boom) {
		t.Errorf("IsDisabled() error = %v", err)
	}
	if err := c.Reset(ctx, "u1", ""); !errors.Is(err, boom) {
		t.Errorf("Reset() error = %v", err)
	}
}

func TestMemoryStore_Decay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	store.Increment(ctx, "k", time.Hour)
	now = now.Add(30 * time.Minute)
	if n, _ := store.Increment(ctx, "k", time.Hour); n != 2 {
		t.Fatalf("count within window = %d, want 2", n)
	}

	// The window restarts on every increment.
	now = now.Add(59 * time.Minute)
	if n, _ := store.Get(ctx, "k"); n != 2 {
		t.Errorf("count before expiry = %d, want 2", n)
	}

	now = now.Add(time.Minute)
	if n, _ := store.Get(ctx, "k"); n != 0 {
		t.Errorf("count after expiry = %d, want 0", n)
	}
	if n, _ := store.Increment(ctx, "k", time.Hour); n != 1 {
		t.Errorf("count after restart = %d, want 1", n)
	}
}

func TestMemoryStore_NoDecay(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	store.Increment(ctx, "k", 0)
	now = now.Add(365 * 24 * time.Hour)
	if n, _ := store.Get(ctx, "k"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestIncrementUpdate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	withTTL := incrementUpdate(now, time.Hour)
	set := withTTL["$set"].(bson.M)
	if got := set["expires_at"]; got != now.Add(time.Hour) {
		t.Errorf("expires_at = %v, want %v", got, now.Add(time.Hour))
	}
	if _, ok := withTTL["$unset"]; ok {
		t.Error("$unset present with a ttl")
	}

	noTTL := incrementUpdate(now, 0)
	if _, ok := noTTL["$set"].(bson.M)["expires_at"]; ok {
		t.Error("expires_at set without a ttl")
	}
	if _, ok := noTTL["$unset"]; !ok {
		t.Error("$unset missing without a ttl")
	}
}
