package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var (
	mu          sync.Mutex
	verbose               = false
	disableLogs           = false
	forceStdErr           = false
	stdout      io.Writer = os.Stdout
	stderr      io.Writer = os.Stderr
	logFile     *lumberjack.Logger

	logPrefixes = map[int]string{
		levelDebug: "\033[37m[DBG]\033[0m", // White
		levelInfo:  "\033[36m[INF]\033[0m", // Cyan
		levelWarn:  "\033[33m[WRN]\033[0m", // Yellow
		levelError: "\033[31m[ERR]\033[0m", // Red
	}
	plainPrefixes = map[int]string{
		levelDebug: "[DBG]",
		levelInfo:  "[INF]",
		levelWarn:  "[WRN]",
		levelError: "[ERR]",
	}
)

// SetVerbose sets the logging verbosity. If true, all log levels are displayed.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// DisableLogs disables all logging.
func DisableLogs() {
	mu.Lock()
	defer mu.Unlock()
	disableLogs = true
}

// SetForceStdErr sends every level to stderr. Used by commands whose stdout is
// machine-readable.
func SetForceStdErr(v bool) {
	mu.Lock()
	defer mu.Unlock()
	forceStdErr = v
}

// SetLogFile mirrors log output into a rotated file. maxSizeMB and maxBackups
// fall back to 10 MB and 3 files when zero. An empty path closes the current file.
func SetLogFile(path string, maxSizeMB, maxBackups int) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if path == "" {
		return
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	logFile = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// Close flushes and closes the log file, if any.
func Close() {
	SetLogFile("", 0, 0)
}

// Debugf logs a debug message if verbose is true.
func Debugf(format string, args ...interface{}) {
	logMessage(levelDebug, "", format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	logMessage(levelInfo, "", format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	logMessage(levelWarn, "", format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	logMessage(levelError, "", format, args...)
}

// Fatalf logs an error message and exits the program.
func Fatalf(format string, args ...interface{}) {
	logMessage(levelError, "", format, args...)
	Close()
	os.Exit(1)
}

// Logger is a component-tagged logger. The zero value logs without a tag.
type Logger struct {
	tag string
}

// Tag returns a logger that prefixes messages with [tag].
func Tag(tag string) Logger {
	return Logger{tag: tag}
}

func (l Logger) Debugf(format string, args ...interface{}) {
	logMessage(levelDebug, l.tag, format, args...)
}

func (l Logger) Infof(format string, args ...interface{}) {
	logMessage(levelInfo, l.tag, format, args...)
}

func (l Logger) Warnf(format string, args ...interface{}) {
	logMessage(levelWarn, l.tag, format, args...)
}

func (l Logger) Errorf(format string, args ...interface{}) {
	logMessage(levelError, l.tag, format, args...)
}

// logMessage formats and writes a log message with the specified log level.
func logMessage(level int, tag string, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if disableLogs || (level == levelDebug && !verbose) {
		return
	}

	message := fmt.Sprintf(format, args...)
	if tag != "" {
		message = "[" + tag + "] " + message
	}
	message = strings.TrimRight(message, "\n")

	// Write the output to the appropriate stream
	output := logPrefixes[level] + " " + message + "\n"
	if forceStdErr || level == levelError {
		_, _ = io.WriteString(stderr, output)
	} else {
		_, _ = io.WriteString(stdout, output)
	}

	if logFile != nil {
		line := time.Now().Format(time.RFC3339) + " " + plainPrefixes[level] + " " + message + "\n"
		_, _ = logFile.Write([]byte(line))
	}
}
