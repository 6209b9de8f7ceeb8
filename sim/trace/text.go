package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// TextSink writes one human-readable line per record.
type TextSink struct {
	w      *bufio.Writer
	closer io.Closer
	closed bool
}

// NewTextSink writes to w. Close closes w if it is an io.Closer.
func NewTextSink(w io.Writer) *TextSink {
	s := &TextSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateTextSink writes to a new file at path.
func CreateTextSink(path string) (*TextSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("text trace: %w", err)
	}
	return NewTextSink(f), nil
}

func (s *TextSink) Write(r Record) error {
	if s.closed {
		return nil
	}
	_, err := fmt.Fprintf(s.w, "[Time:%d]\t%s\n", r.Time, describe(r))
	return err
}

func describe(r Record) string {
	switch r.Kind {
	case KindArrival:
		return fmt.Sprintf("%s arrived at %d", r.Task, r.Arrival)
	case KindEndInstance:
		ratio := 0.0
		if r.Period > 0 {
			ratio = (r.Time - r.Arrival).Float() / r.Period.Float()
		}
		return fmt.Sprintf("%s ended, its arrival was %d, its period was %d, RespTime/Period is %g",
			r.Task, r.Arrival, r.Period, ratio)
	case KindScheduled:
		return fmt.Sprintf("%s scheduled on CPU %s freq %d its arrival was %d", r.Task, r.CPU, r.Frequency, r.Arrival)
	case KindDescheduled:
		return fmt.Sprintf("%s descheduled its arrival was %d", r.Task, r.Arrival)
	case KindDeadlineMiss:
		return fmt.Sprintf("%s missed its arrival was %d", r.Task, r.Arrival)
	case KindKill:
		return fmt.Sprintf("%s killed its arrival was %d", r.Task, r.Arrival)
	case KindUnschedulable:
		return fmt.Sprintf("%s cannot be placed, its arrival was %d", r.Task, r.Arrival)
	case KindMigration:
		return fmt.Sprintf("%s migrated to CPU %s freq %d", r.Task, r.CPU, r.Frequency)
	}
	return fmt.Sprintf("%s %s", r.Task, r.Kind)
}

func (s *TextSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
