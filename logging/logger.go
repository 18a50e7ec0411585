package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a user facing level decoupled from slog and zap.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configured level name to a LogLevel. Unknown names
// yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal logging interface for agentchat.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentChatLogger{logger: logger}
}

// AgentChatLogger is the slog based Logger of agentchat. With* methods
// return derived loggers and leave the receiver untouched. It also
// implements the chat, model and tool call recorders the runtime looks for.
type AgentChatLogger struct {
	logger *slog.Logger
}

// LoggerConfig configures construction of an AgentChatLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a JSON info level configuration writing to
// stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// NewLogger builds an AgentChatLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *AgentChatLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With("component", cfg.Component)
	}
	for k, v := range cfg.CustomAttrs {
		logger = logger.With(k, v)
	}

	return &AgentChatLogger{logger: logger}
}

// NewSlogLogger creates an AgentChatLogger with the given level, format
// ("json" or "text") and source annotation.
func NewSlogLogger(level LogLevel, format string, addSource bool) *AgentChatLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// WithContext returns a logger attaching key/value to every entry.
func (l *AgentChatLogger) WithContext(key string, value any) *AgentChatLogger {
	return &AgentChatLogger{logger: l.logger.With(key, value)}
}

// WithComponent sets the logical component (agent, stage, groupchat, ...).
func (l *AgentChatLogger) WithComponent(c string) *AgentChatLogger {
	return l.WithContext("component", c)
}

// WithPeer attaches the conversation peer and chat identifier.
func (l *AgentChatLogger) WithPeer(peer, chatID string) *AgentChatLogger {
	return &AgentChatLogger{logger: l.logger.With("peer", peer, "chat_id", chatID)}
}

// Debug logs at debug level.
func (l *AgentChatLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *AgentChatLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warn level.
func (l *AgentChatLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *AgentChatLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogToolCall records execution details for a tool invocation.
func (l *AgentChatLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	l.outcome("tool.call", success, err, slog.String("tool_name", tool), slog.Duration("duration", dur))
}

// LogLLMCall records model call latency, token usage and success.
func (l *AgentChatLogger) LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error) {
	l.outcome("model.call", success, err,
		slog.String("model", model), slog.Int("token_count", tokens), slog.Duration("duration", dur))
}

// LogChat records the outcome of a finished two-agent or group conversation.
func (l *AgentChatLogger) LogChat(kind string, turns int, dur time.Duration, success bool, err error) {
	l.outcome("chat", success, err,
		slog.String("chat_type", kind), slog.Int("turns", turns), slog.Duration("duration", dur))
}

// outcome logs "<event>.completed" at info or "<event>.failed" at error.
func (l *AgentChatLogger) outcome(event string, success bool, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Bool("success", success))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	level, msg := slog.LevelInfo, event+".completed"
	if !success {
		level, msg = slog.LevelError, event+".failed"
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
