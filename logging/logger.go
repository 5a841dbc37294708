// Package logging provides the minimal logging abstraction shared by the
// harness packages: a Printf-style interface, a null implementation, a
// capturing implementation whose output can be dumped after a test fails,
// and a prefixing decorator for tagging output by component.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

// CapturedMessage is one log line retained by a CapturingLogger.
type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger accumulates output in memory. Each test scope owns one,
// so debug output can be shown only for the tests that failed.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append(CapturedOutput(nil), l.output...)
	l.lock.Unlock()
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

type prefixedLogger struct {
	wrapped Logger
	prefix  string
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.wrapped.Printf(p.prefix+message, args...)
}

// LoggerWithPrefix decorates a Logger so that every message is prefixed,
// typically with a component tag like "[session manager] ".
func LoggerWithPrefix(wrapped Logger, prefix string) Logger {
	return prefixedLogger{wrapped: wrapped, prefix: prefix}
}
