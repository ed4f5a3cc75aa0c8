// Package logger wraps sirupsen/logrus with the section/banner helpers the
// teacher's own custom logger exposed (pkg/logger/logger.go in the original
// tree), so the rest of this module can keep calling Debug/Info/Warn/Error/
// Success without hand-rolling ANSI formatting.
package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// These ANSI colors are used by Section/Banner, which print directly to
// stdout rather than through logrus.
const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the minimum log level, e.g. logger.SetLevel(logrus.DebugLevel).
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// Fields is an alias for logrus.Fields, so callers attaching structured
// context don't need to import logrus directly.
type Fields = logrus.Fields

// WithFields returns an entry carrying structured fields, e.g.
// logger.WithFields(logger.Fields{"session_id": id}).Info("connected")
func WithFields(fields Fields) *logrus.Entry {
	return std.WithFields(fields)
}

func Debug(format string, args ...interface{}) { std.Debugf(format, args...) }
func Info(format string, args ...interface{})  { std.Infof(format, args...) }
func Warn(format string, args ...interface{})  { std.Warnf(format, args...) }
func Error(format string, args ...interface{}) { std.Errorf(format, args...) }
func Fatal(format string, args ...interface{}) { std.Fatalf(format, args...) }

// Success logs at info level tagged with a status field, since logrus has
// no built-in success level.
func Success(format string, args ...interface{}) {
	std.WithField("status", "ok").Infof(format, args...)
}

// Section prints a boxed section header directly to stdout, unaffected by
// the configured log level — used for human-facing startup milestones, not
// structured log events.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", colorCyan, border, colorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", colorCyan, colorReset, title, colorCyan, colorReset)
	fmt.Printf("%s╚%s╝%s\n\n", colorCyan, border, colorReset)
}

// Banner prints the application banner shown on process start.
func Banner(title, version string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", colorCyan, border, colorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", colorCyan, colorReset, title, colorCyan, colorReset)
	fmt.Printf("%s║%s %sversion %-49s%s║%s\n", colorCyan, colorReset, colorGreen, version, colorCyan, colorReset)
	fmt.Printf("%s╚%s╝%s\n\n", colorCyan, border, colorReset)
}
