package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, Format: JSONFormat})
	l.SetOutput(&buf)

	l.WithField("conversation_id", "c1").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "hello" || entry["conversation_id"] != "c1" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[LogLevel]logrus.Level{
		DebugLevel:       logrus.DebugLevel,
		WarnLevel:        logrus.WarnLevel,
		ErrorLevel:       logrus.ErrorLevel,
		LogLevel("loud"): logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	var buf bytes.Buffer
	orig := get().Out
	SetOutput(&buf)
	defer SetOutput(orig)

	LogSecurityEvent("policy_warning", "u1", "", map[string]interface{}{"matched_term": "whatsapp"})
	if !bytes.Contains(buf.Bytes(), []byte("whatsapp")) {
		t.Errorf("security event not written: %q", buf.String())
	}
}
