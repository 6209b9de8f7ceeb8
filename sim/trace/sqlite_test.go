package trace_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleara/PARTSim-sub001/sim/trace"
)

// TestSQLiteSink_Events tests that records land in the events table.
func TestSQLiteSink_Events(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.sqlite3")
	sink, err := trace.NewSQLiteSink(path)
	require.NoError(t, err)
	assert.Equal(t, path, sink.Path())
	traced(t, sink)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	assert.Equal(t, 9, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = 'scheduled' AND cpu = 'uni_0'`).Scan(&n))
	assert.Equal(t, 3, n)

	_, err = trace.NewSQLiteSink(path)
	assert.Error(t, err, "existing database")
}
