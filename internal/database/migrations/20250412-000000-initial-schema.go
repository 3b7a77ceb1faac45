package migrations

func init() {
	Register(Migration{
		Version: "20250412-000000",
		Name:    "Initial schema",
		Statements: []string{
			// Runs - one row per user-initiated ingestion pass
			// user_id is the bearer token subject (no FK, users live elsewhere)
			`CREATE TABLE IF NOT EXISTS runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				total_jobs INTEGER NOT NULL DEFAULT 0,
				jobs_ready INTEGER NOT NULL DEFAULT 0,
				jobs_skipped INTEGER NOT NULL DEFAULT 0,
				jobs_expired INTEGER NOT NULL DEFAULT 0,
				jobs_failed INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				metadata_json TEXT,
				created_at TEXT NOT NULL,
				started_at TEXT,
				finished_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_user_id ON runs(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_user_status ON runs(user_id, status)`,

			// Jobs - one row per posting per user, mutated across runs
			`CREATE TABLE IF NOT EXISTS jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				run_id INTEGER,
				company TEXT NOT NULL,
				external_id TEXT NOT NULL,
				url TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				title TEXT NOT NULL DEFAULT '',
				location TEXT,
				description TEXT,
				requirements TEXT,
				error_message TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(user_id, company, external_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_run_status ON jobs(run_id, status)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_user_company ON jobs(user_id, company)`,

			// Company settings - which boards a user ingests and their title filters
			`CREATE TABLE IF NOT EXISTS company_settings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				company TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				include_filters TEXT NOT NULL DEFAULT '[]',
				exclude_filters TEXT NOT NULL DEFAULT '[]',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(user_id, company)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_company_settings_user_id ON company_settings(user_id)`,
		},
	})
}
