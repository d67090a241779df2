package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// SetLevel sets the global log level.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
}

// Enabled reports whether messages at l are currently written.
func Enabled(l Level) bool {
	return Level(currentLevel.Load()) >= l
}

// Setup initializes the standard logger output.
func Setup(w io.Writer) {
	log.SetOutput(w)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
}

// Debug logs per-connection chatter. Off unless the level is LevelDebug.
func Debug(format string, v ...interface{}) {
	if Enabled(LevelDebug) {
		output("DEBUG: "+format, v...)
	}
}

// Info logs informative messages if the level allows.
func Info(format string, v ...interface{}) {
	if Enabled(LevelInfo) {
		output("INFO: "+format, v...)
	}
}

// Error logs error messages.
func Error(format string, v ...interface{}) {
	if Enabled(LevelError) {
		output("ERROR: "+format, v...)
	}
}

// Fatal logs independent of error level and exits.
func Fatal(format string, v ...interface{}) {
	output("FATAL: "+format, v...)
	os.Exit(1)
}

func output(format string, v ...interface{}) {
	// Calldepth 3 skips output and the level helper so the caller's file:line is reported.
	log.Output(3, fmt.Sprintf(format, v...))
}
