package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Flags table - one row per configured flag, keyed by name
		`CREATE TABLE IF NOT EXISTS flags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			threshold REAL NOT NULL DEFAULT 0.1,
			cooldown_ms INTEGER NOT NULL DEFAULT 1000,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Touches table - one row per fired trigger
		`CREATE TABLE IF NOT EXISTS touches (
			id TEXT PRIMARY KEY,
			flag_id TEXT NOT NULL REFERENCES flags(id) ON DELETE CASCADE,
			distance REAL NOT NULL,
			finger_x REAL NOT NULL,
			finger_y REAL NOT NULL,
			fired_at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_touches_flag_id ON touches(flag_id)`,
		`CREATE INDEX IF NOT EXISTS idx_touches_fired_at ON touches(fired_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
