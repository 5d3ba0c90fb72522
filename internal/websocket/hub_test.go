package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"venty/internal/config"
)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{
		PingPeriod:     time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func receive(t *testing.T, c *Client) *WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestHub_PublishReachesOnlyRoom(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	alice := NewClient(nil, hub, "alice", "conv-1")
	bob := NewClient(nil, hub, "bob", "conv-1")
	other := NewClient(nil, hub, "carol", "conv-2")
	for _, c := range []*Client{alice, bob, other} {
		if !hub.Join(c) {
			t.Fatal("Join() = false")
		}
		if got := receive(t, c); got.Type != MessageTypeSubscribed {
			t.Fatalf("first message = %s, want subscribed", got.Type)
		}
	}

	hub.Publish("conv-1", "agreement", map[string]interface{}{"status": "pending"})

	for _, c := range []*Client{alice, bob} {
		got := receive(t, c)
		if got.Type != MessageTypeAgreement || got.ConversationID != "conv-1" {
			t.Errorf("%s got %+v", c.UserID, got)
		}
	}
	select {
	case data := <-other.Send:
		t.Errorf("other room received %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_TypingSkipsSender(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	alice := NewClient(nil, hub, "alice", "conv-1")
	bob := NewClient(nil, hub, "bob", "conv-1")
	for _, c := range []*Client{alice, bob} {
		hub.Join(c)
		receive(t, c)
	}

	msg, err := ParseClientMessage([]byte(`{"type":"typing","content":"ignored"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	alice.handleMessage(msg)

	got := receive(t, bob)
	if got.Type != MessageTypeTyping || got.From != "alice" || got.Content != "" {
		t.Errorf("bob got %+v", got)
	}
	select {
	case data := <-alice.Send:
		t.Errorf("sender received own typing event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_LeaveAndShutdown(t *testing.T) {
	hub, cancel := newTestHub(t)

	c := NewClient(nil, hub, "alice", "conv-1")
	hub.Join(c)
	receive(t, c)
	if hub.RoomSize("conv-1") != 1 {
		t.Fatalf("RoomSize = %d", hub.RoomSize("conv-1"))
	}

	hub.Leave(c)
	if _, ok := <-c.Send; ok {
		t.Fatal("send channel still open after Leave")
	}
	if hub.RoomSize("conv-1") != 0 || hub.ClientCount() != 0 {
		t.Fatalf("room not cleaned up")
	}

	cancel()
	late := NewClient(nil, hub, "bob", "conv-1")
	deadline := time.After(time.Second)
	for hub.Join(late) {
		select {
		case <-deadline:
			t.Fatal("Join kept succeeding after shutdown")
		default:
		}
	}
	hub.Leave(late)
}

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{`{"type":"heartbeat"}`, false},
		{`{"type":"stop_typing"}`, false},
		{`{"type":"message","content":"call me"}`, true},
		{`{}`, true},
		{`not json`, true},
	}
	for _, tt := range tests {
		if _, err := ParseClientMessage([]byte(tt.raw)); (err != nil) != tt.wantErr {
			t.Errorf("ParseClientMessage(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}
