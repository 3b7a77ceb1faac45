package migrations

func init() {
	Register(Migration{
		Version: "20250503-114500",
		Name:    "Run logs",
		Statements: []string{
			// Run logs - worker log lines captured per run, served by the
			// logs endpoint and swept by retention. id is a ULID so lexical
			// order is insertion order, which keyset pagination relies on.
			`CREATE TABLE IF NOT EXISTS run_logs (
				id TEXT PRIMARY KEY,
				run_id INTEGER NOT NULL,
				timestamp INTEGER NOT NULL,
				level TEXT NOT NULL,
				message TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_run_logs_run_id_id ON run_logs(run_id, id)`,
			`CREATE INDEX IF NOT EXISTS idx_run_logs_run_ts ON run_logs(run_id, timestamp)`,
		},
	})
}
