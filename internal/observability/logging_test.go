package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn record missing")
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	logger.Info("hello", "room", "lobby")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if record["msg"] != "hello" || record["room"] != "lobby" {
		t.Errorf("record = %v", record)
	}
}

func TestNewMetricsForCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsFor(reg)

	m.MessageCounter.WithLabelValues("lobby", "inbound").Inc()
	m.MessageCounter.WithLabelValues("lobby", "inbound").Inc()
	m.OnlineUsers.WithLabelValues("lobby").Set(3)

	if got := testutil.ToFloat64(m.MessageCounter.WithLabelValues("lobby", "inbound")); got != 2 {
		t.Errorf("messages = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OnlineUsers.WithLabelValues("lobby")); got != 3 {
		t.Errorf("online users = %v, want 3", got)
	}
}
