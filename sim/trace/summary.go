package trace

import "github.com/gabrieleara/PARTSim-sub001/sim"

// MemorySink keeps every record in memory.
type MemorySink struct {
	Records []Record
}

func (m *MemorySink) Write(r Record) error {
	m.Records = append(m.Records, r)
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Kinds returns the kinds of the records of task, in order.
func (m *MemorySink) Kinds(task string) []Kind {
	var out []Kind
	for _, r := range m.Records {
		if r.Task == task {
			out = append(out, r.Kind)
		}
	}
	return out
}

// TaskSummary counts the events of one task.
type TaskSummary struct {
	Arrivals    int
	Ends        int
	Misses      int
	Kills       int
	Migrations  int
	MaxResponse sim.Tick
}

// Summary aggregates a list of records.
type Summary struct {
	Tasks         map[string]*TaskSummary
	Order         []string // task names by first appearance
	Unschedulable int
}

// Summarize computes per-task counts from records. Safe on nil input.
func Summarize(records []Record) *Summary {
	sum := &Summary{Tasks: make(map[string]*TaskSummary)}
	for _, r := range records {
		ts, ok := sum.Tasks[r.Task]
		if !ok {
			ts = &TaskSummary{}
			sum.Tasks[r.Task] = ts
			sum.Order = append(sum.Order, r.Task)
		}
		switch r.Kind {
		case KindArrival:
			ts.Arrivals++
		case KindEndInstance:
			ts.Ends++
			ts.MaxResponse = sim.MaxOf(ts.MaxResponse, r.Time-r.Arrival)
		case KindDeadlineMiss:
			ts.Misses++
		case KindKill:
			ts.Kills++
		case KindMigration:
			ts.Migrations++
		case KindUnschedulable:
			sum.Unschedulable++
		}
	}
	return sum
}
