package core

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is the minimal structured logging interface used across the runtime.
// Components accept a Logger by injection and never construct their own.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// NoOpLogger discards everything. It is the default wherever a Logger was not
// injected, so components never need nil checks on the hot path.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// JSONLogger writes one JSON object per line. Suitable for production where a
// collector parses stdout.
type JSONLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level int
	name  string
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// NewJSONLogger creates a logger writing to stdout at the given level
// ("debug", "info", "warn", "error"; unknown values mean "info").
func NewJSONLogger(service, level string) *JSONLogger {
	return &JSONLogger{out: os.Stdout, level: parseLevel(level), name: service}
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l *JSONLogger) log(level int, levelName, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = levelName
	entry["msg"] = msg
	if l.name != "" {
		entry["service"] = l.name
	}
	data, err := json.Marshal(entry)
	if err != nil {
		// Fields contained something unmarshalable. Drop them rather than
		// the message.
		data, _ = json.Marshal(map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339Nano), "level": levelName, "msg": msg,
		})
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))
}

func (l *JSONLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, "info", msg, fields)
}

func (l *JSONLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, "error", msg, fields)
}

func (l *JSONLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, "warn", msg, fields)
}

func (l *JSONLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, "debug", msg, fields)
}
