package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gabrieleara/PARTSim-sub001/sim"
)

type jsonEvent struct {
	Time      sim.Tick `json:"time"`
	EventType Kind     `json:"event_type"`
	TaskName  string   `json:"task_name"`
	CPU       string   `json:"cpu,omitempty"`
	Frequency uint     `json:"frequency,omitempty"`
	Arrival   sim.Tick `json:"arrival_time"`
}

type jsonDocument struct {
	Events []jsonEvent `json:"events"`
}

// JSONSink collects records and writes them as a single document on
// Close.
type JSONSink struct {
	w      io.Writer
	doc    jsonDocument
	closed bool
}

// NewJSONSink writes to w on Close, then closes w if it is an io.Closer.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, doc: jsonDocument{Events: []jsonEvent{}}}
}

// CreateJSONSink writes to a new file at path.
func CreateJSONSink(path string) (*JSONSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("json trace: %w", err)
	}
	return NewJSONSink(f), nil
}

func (s *JSONSink) Write(r Record) error {
	if s.closed {
		return nil
	}
	s.doc.Events = append(s.doc.Events, jsonEvent{
		Time:      r.Time,
		EventType: r.Kind,
		TaskName:  r.Task,
		CPU:       r.CPU,
		Frequency: r.Frequency,
		Arrival:   r.Arrival,
	})
	return nil
}

func (s *JSONSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	err := enc.Encode(s.doc)
	if c, ok := s.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("json trace: %w", err)
	}
	return nil
}
