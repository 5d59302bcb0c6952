package sqlite

// Schema DDL. Every statement is idempotent so Initialize can run it against
// an existing database without touching stored rows.
const (
	createTraces = `CREATE TABLE IF NOT EXISTS traces (
    trace_id TEXT PRIMARY KEY,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    meta TEXT NOT NULL,
    timestamp TEXT NOT NULL
);`

	idxTracesTimestamp = `CREATE INDEX IF NOT EXISTS idx_traces_timestamp ON traces(timestamp);`
)

// schemaDDL lists the statements Initialize executes, in order.
var schemaDDL = []string{
	createTraces,
	idxTracesTimestamp,
}

// Queries against the traces table. Rows are read in rowid order, which is
// insertion order for this table.
const (
	insertTrace = `INSERT INTO traces (trace_id, prompt, response, meta, timestamp) VALUES (?, ?, ?, ?, ?)`

	selectTraceByID = `SELECT trace_id, prompt, response, meta, timestamp FROM traces WHERE trace_id = ?`

	selectAllTraces = `SELECT trace_id, prompt, response, meta, timestamp FROM traces ORDER BY rowid`

	selectAllTracesLimit = `SELECT trace_id, prompt, response, meta, timestamp FROM traces ORDER BY rowid LIMIT ?`

	searchTraces = `SELECT trace_id, prompt, response, meta, timestamp FROM traces
WHERE instr(prompt, ?) > 0 OR instr(response, ?) > 0
ORDER BY rowid LIMIT ?`

	countTraces = `SELECT COUNT(*) FROM traces`
)
