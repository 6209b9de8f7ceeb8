package sim

// Entity is a named simulation object with per-run state.
// NewRun is called before every run, EndRun after it.
type Entity interface {
	Name() string
	NewRun()
	EndRun()
}

// Stat collects a value across the runs of one simulation batch.
type Stat interface {
	// InitRuns resets the collector for a batch of n runs.
	InitRuns(n int)
	NewRun()
	EndRun()
	// EndSim closes the batch.
	EndSim()
}
