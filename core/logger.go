package core

import "github.com/hupe1980/agentchat/logging"

// runLogger prefixes every record of a run with its chat id so interleaved
// chats can be told apart.
type runLogger struct {
	logger logging.Logger
	attrs  []any
}

func newRunLogger(l logging.Logger, chatID string) *runLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}

	rl := &runLogger{logger: l}
	if chatID != "" {
		rl.attrs = []any{"chat_id", chatID}
	}

	return rl
}

func (l *runLogger) with(args []any) []any {
	if len(l.attrs) == 0 {
		return args
	}
	return append(append(make([]any, 0, len(l.attrs)+len(args)), l.attrs...), args...)
}

// Logger returns the logger the run was created with.
func (l *runLogger) Logger() logging.Logger { return l.logger }

// LogDebug logs at debug level.
func (l *runLogger) LogDebug(msg string, args ...any) { l.logger.Debug(msg, l.with(args)...) }

// LogInfo logs at info level.
func (l *runLogger) LogInfo(msg string, args ...any) { l.logger.Info(msg, l.with(args)...) }

// LogWarn logs at warn level.
func (l *runLogger) LogWarn(msg string, args ...any) { l.logger.Warn(msg, l.with(args)...) }

// LogError logs at error level.
func (l *runLogger) LogError(msg string, args ...any) { l.logger.Error(msg, l.with(args)...) }
