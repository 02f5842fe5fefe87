// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package observability holds the ambient capabilities the routing core is
// injected with: a Logger, an Observer (request/stage tracker) and
// Prometheus metrics. Every capability has a no-op default so callers never
// need a nil check, per spec §9's "mock/empty modules" re-architecture note.
package observability

import (
	"fmt"
	"log"
	"os"
)

// Logger is the logging capability injected into every component.
// Implementations are expected to be safe for concurrent use.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// stdLogger wraps *log.Logger the way the teacher wraps it per-subsystem,
// e.g. log.New(os.Stdout, "[LLM_ROUTER] ", log.LstdFlags).
type stdLogger struct {
	base  *log.Logger
	debug bool
}

// NewLogger creates a Logger with a bracketed component prefix, mirroring
// the teacher's log.New(os.Stdout, "[COMPONENT] ", log.LstdFlags) pattern.
func NewLogger(component string) Logger {
	return &stdLogger{base: log.New(os.Stdout, fmt.Sprintf("[%s] ", component), log.LstdFlags)}
}

// NewDebugLogger is like NewLogger but also emits Debugf lines.
func NewDebugLogger(component string) Logger {
	return &stdLogger{base: log.New(os.Stdout, fmt.Sprintf("[%s] ", component), log.LstdFlags), debug: true}
}

func (l *stdLogger) Debugf(format string, args ...any) {
	if l.debug {
		l.base.Printf("DEBUG "+format, args...)
	}
}

func (l *stdLogger) Infof(format string, args ...any) { l.base.Printf("INFO "+format, args...) }
func (l *stdLogger) Warnf(format string, args ...any) { l.base.Printf("WARN "+format, args...) }
func (l *stdLogger) Errorf(format string, args ...any) { l.base.Printf("ERROR "+format, args...) }

// nopLogger discards everything. Used as the default when no Logger is supplied.
type nopLogger struct{}

// NopLogger is the default no-op Logger.
var NopLogger Logger = nopLogger{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
