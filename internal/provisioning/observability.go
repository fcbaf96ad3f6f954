package provisioning

import (
	"io"

	"github.com/charmbracelet/log"
)

// Observer receives progress events from provisioning phases.
type Observer interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)

	// WithPhase returns an Observer whose events carry the phase name.
	WithPhase(name string) Observer
}

type logObserver struct {
	l *log.Logger
}

// NewLogObserver returns an Observer backed by a leveled logger writing to w.
func NewLogObserver(w io.Writer) Observer {
	return &logObserver{
		l: log.NewWithOptions(w, log.Options{ReportTimestamp: true}),
	}
}

func (o *logObserver) Debug(msg string, keyvals ...any) { o.l.Debug(msg, keyvals...) }
func (o *logObserver) Info(msg string, keyvals ...any)  { o.l.Info(msg, keyvals...) }
func (o *logObserver) Warn(msg string, keyvals ...any)  { o.l.Warn(msg, keyvals...) }

func (o *logObserver) WithPhase(name string) Observer {
	return &logObserver{l: o.l.With("phase", name)}
}

// NopObserver discards all events. Used by tests.
type NopObserver struct{}

func (NopObserver) Debug(string, ...any) {}
func (NopObserver) Info(string, ...any)  {}
func (NopObserver) Warn(string, ...any)  {}

// WithPhase implements Observer.
func (n NopObserver) WithPhase(string) Observer { return n }
