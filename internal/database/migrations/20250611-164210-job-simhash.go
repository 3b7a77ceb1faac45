package migrations

func init() {
	Register(Migration{
		Version: "20250611-164210",
		Name:    "Job content fingerprints",
		Statements: []string{
			// 64-bit simhash of the last successfully fetched content,
			// stored as a signed integer (the bit pattern is what matters).
			// NULL until the first successful crawl.
			`ALTER TABLE jobs ADD COLUMN simhash INTEGER`,
		},
	})
}
