// Package notify carries user-facing toasts, the side channel every mutation
// reports its outcome on.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a toast.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Toast is a short message shown to the user.
type Toast struct {
	Level   Level
	Title   string
	Message string
	At      time.Time
}

func (t Toast) String() string {
	if t.Message == "" {
		return fmt.Sprintf("[%s] %s", t.Level, t.Title)
	}
	return fmt.Sprintf("[%s] %s: %s", t.Level, t.Title, t.Message)
}

// Notifier receives toasts.
type Notifier interface {
	Notify(Toast)
}

// Func adapts a function to Notifier.
type Func func(Toast)

func (f Func) Notify(t Toast) { f(t) }

// Discard drops every toast.
var Discard Notifier = Func(func(Toast) {})

// Success builds a success toast.
func Success(title, message string) Toast {
	return Toast{Level: LevelSuccess, Title: title, Message: message, At: time.Now()}
}

// Failure builds an error toast.
func Failure(title, message string) Toast {
	return Toast{Level: LevelError, Title: title, Message: message, At: time.Now()}
}

// LogNotifier writes toasts to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier logging to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(t Toast) {
	fields := []zap.Field{zap.String("title", t.Title), zap.String("message", t.Message)}
	if t.Level == LevelError {
		n.logger.Warn("toast", fields...)
		return
	}
	n.logger.Info("toast", fields...)
}

// WriterNotifier prints toasts, one per line.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a notifier printing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(t Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, t.String())
}

// Multi fans a toast out to several notifiers.
func Multi(ns ...Notifier) Notifier {
	return Func(func(t Toast) {
		for _, n := range ns {
			n.Notify(t)
		}
	})
}

// Recorder keeps every toast it receives.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Last returns the most recent toast.
func (r *Recorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

// Reset forgets recorded toasts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = nil
}
