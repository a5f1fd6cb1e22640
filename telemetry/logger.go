// Package telemetry provides the production logger, OpenTelemetry
// wiring for HTTP clients and handlers, and a metrics provider backed
// by the OTel API.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Log levels in increasing severity.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger implements core.Logger with leveled, structured output.
// Format selection:
//  1. Explicit configuration (highest)
//  2. AGENTMESH_LOG_FORMAT environment variable
//  3. JSON when running inside Kubernetes (log aggregation expects it)
//  4. Text for local development (lowest)
type Logger struct {
	serviceName string
	level       string
	format      string
	output      io.Writer
	mu          sync.Mutex
}

// NewLogger creates a logger for the given service. Level and format
// come from AGENTMESH_LOG_LEVEL and AGENTMESH_LOG_FORMAT when set.
func NewLogger(serviceName string) *Logger {
	level := strings.ToUpper(os.Getenv("AGENTMESH_LOG_LEVEL"))
	if _, ok := levelRank[level]; !ok {
		level = LevelInfo
	}

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if v := os.Getenv("AGENTMESH_LOG_FORMAT"); v == "json" || v == "text" {
		format = v
	}

	return &Logger{
		serviceName: serviceName,
		level:       level,
		format:      format,
		output:      os.Stdout,
	}
}

// NewLoggerWithOptions creates a logger with explicit level, format and
// destination. Used by tests and by callers that configure logging from
// a config file.
func NewLoggerWithOptions(serviceName, level, format string, output io.Writer) *Logger {
	level = strings.ToUpper(level)
	if _, ok := levelRank[level]; !ok {
		level = LevelInfo
	}
	if format != "json" {
		format = "text"
	}
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		serviceName: serviceName,
		level:       level,
		format:      format,
		output:      output,
	}
}

// Info logs informational messages.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, msg, fields)
}

// Error logs error messages.
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, msg, fields)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, msg, fields)
}

// Debug logs debug messages.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, msg, fields)
}

func (l *Logger) log(level, msg string, fields map[string]interface{}) {
	if levelRank[level] < levelRank[l.level] {
		return
	}

	now := time.Now().UTC()

	var line string
	if l.format == "json" {
		entry := map[string]interface{}{
			"timestamp": now.Format(time.RFC3339Nano),
			"level":     level,
			"service":   l.serviceName,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		data, err := json.Marshal(entry)
		if err != nil {
			// Unmarshalable field values fall back to text output.
			line = fmt.Sprintf("%s [%s] %s %s %v\n",
				now.Format(time.RFC3339), level, l.serviceName, msg, fields)
		} else {
			line = string(data) + "\n"
		}
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "%s [%s] %s: %s", now.Format(time.RFC3339), level, l.serviceName, msg)
		if len(fields) > 0 {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, fields[k])
			}
		}
		b.WriteString("\n")
		line = b.String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.output, line)
}
