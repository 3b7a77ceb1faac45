package migrations

func init() {
	Register(Migration{
		Version: "20250418-213045",
		Name:    "Message queues",
		Statements: []string{
			// Queue messages - the backing table for the SQLite message bus.
			// visible_at implements visibility timeouts; a message is
			// deliverable when visible_at <= now. partition_key serializes
			// delivery within a partition for ordered queues.
			`CREATE TABLE IF NOT EXISTS queue_messages (
				id TEXT PRIMARY KEY,
				queue TEXT NOT NULL,
				partition_key TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				visible_at TEXT NOT NULL,
				receive_count INTEGER NOT NULL DEFAULT 0,
				enqueued_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_messages_queue_visible ON queue_messages(queue, visible_at)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_messages_queue_partition ON queue_messages(queue, partition_key, id)`,

			// Dead letters - messages that exhausted their redeliveries
			`CREATE TABLE IF NOT EXISTS queue_dead_letters (
				id TEXT PRIMARY KEY,
				queue TEXT NOT NULL,
				partition_key TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				receive_count INTEGER NOT NULL,
				reason TEXT,
				enqueued_at TEXT NOT NULL,
				dead_lettered_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_dead_letters_queue ON queue_dead_letters(queue)`,
		},
	})
}
