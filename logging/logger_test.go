package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newBufferLogger(level LogLevel) (*AgentChatLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	cfg.Level = level
	cfg.AddSource = false
	return NewLogger(cfg), buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestAgentChatLogger_KeyValueArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)

	l.WithComponent("agent").WithPeer("bob", "chat-1").Info("agent.reply.generated", "turn", 3, "final", true)

	entry := decodeLine(t, buf)
	assert.Equal(t, "agent.reply.generated", entry["msg"])
	assert.Equal(t, "agent", entry["component"])
	assert.Equal(t, "bob", entry["peer"])
	assert.Equal(t, "chat-1", entry["chat_id"])
	assert.Equal(t, float64(3), entry["turn"])
	assert.Equal(t, true, entry["final"])
}

func TestAgentChatLogger_LevelFilter(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestAgentChatLogger_BadKey(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.Info("odd", "key")

	entry := decodeLine(t, buf)
	assert.Equal(t, "key", entry["!BADKEY"])
}

func TestAgentChatLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.LogToolCall("add", 5*time.Millisecond, false, errors.New("boom"))
	entry := decodeLine(t, buf)
	assert.Equal(t, "tool.call.failed", entry["msg"])
	assert.Equal(t, "add", entry["tool_name"])
	assert.Equal(t, "boom", entry["error"])

	buf.Reset()
	l.LogLLMCall("gpt-4o-mini", 42, time.Second, true, nil)
	entry = decodeLine(t, buf)
	assert.Equal(t, "model.call.completed", entry["msg"])
	assert.Equal(t, float64(42), entry["token_count"])

	buf.Reset()
	l.LogChat("group", 4, time.Second, true, nil)
	entry = decodeLine(t, buf)
	assert.Equal(t, "chat.completed", entry["msg"])
	assert.Equal(t, float64(4), entry["turns"])
}

func TestAgentChatLogger_WithContextDoesNotLeak(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo)
	_ = base.WithContext("agent", "alice")

	base.Info("plain")
	entry := decodeLine(t, buf)
	_, ok := entry["agent"]
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNewLogger_ComponentAndCustomAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(&LoggerConfig{
		Level:       LogLevelInfo,
		Output:      buf,
		Component:   "groupchat",
		CustomAttrs: map[string]any{"service": "agentchat"},
	})

	l.Info("groupchat.speaker.selected")

	entry := decodeLine(t, buf)
	assert.Equal(t, "groupchat", entry["component"])
	assert.Equal(t, "agentchat", entry["service"])
}

func TestSlogAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, nil)))

	l.Warn("agent.reply.empty", "agent", "assistant")

	entry := decodeLine(t, buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "assistant", entry["agent"])
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Info("tool.call.success", "tool", "add", "duration_ms", 3)
	l.Error("tool.call.error", "tool", "add")

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "tool.call.success", first.Message)
	assert.Equal(t, "add", first.ContextMap()["tool"])
	assert.Equal(t, zap.ErrorLevel, logs.All()[1].Level)
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x", "k", "v")
		l.Warn("x")
		l.Error("x")
	})
}
