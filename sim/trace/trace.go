package trace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"github.com/gabrieleara/PARTSim-sub001/sim"
)

// Tracer is a hook forwarding records to its sinks.
type Tracer struct {
	sinks []Sink
}

// NewTracer creates a tracer writing to sinks.
func NewTracer(sinks ...Sink) *Tracer {
	return &Tracer{sinks: sinks}
}

// AddSink adds a sink. Records already written are not replayed.
func (tr *Tracer) AddSink(s Sink) { tr.sinks = append(tr.sinks, s) }

// Attach registers the tracer on every hookable.
func (tr *Tracer) Attach(hs ...sim.Hookable) {
	for _, h := range hs {
		h.AcceptHook(tr)
	}
}

// Func implements sim.Hook.
func (tr *Tracer) Func(ctx sim.HookCtx) {
	r, ok := FromHook(ctx)
	if !ok {
		return
	}
	for _, s := range tr.sinks {
		if err := s.Write(r); err != nil {
			logrus.Warnf("trace: %v", err)
		}
	}
}

// Close closes every sink.
func (tr *Tracer) Close() error {
	var errs []error
	for _, s := range tr.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// ErrUnknownFormat is returned by Open for unrecognized extensions.
var ErrUnknownFormat = errors.New("unknown trace format")

// Open creates the sink matching the extension of path: .txt, .json,
// or .sqlite/.sqlite3/.db. The sink is also closed on process exit.
func Open(path string) (Sink, error) {
	var (
		s   Sink
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".log":
		s, err = CreateTextSink(path)
	case ".json":
		s, err = CreateJSONSink(path)
	case ".sqlite", ".sqlite3", ".db":
		s, err = NewSQLiteSink(path)
	default:
		return nil, fmt.Errorf("trace %q: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return nil, err
	}
	atexit.Register(func() { _ = s.Close() })
	return s, nil
}
