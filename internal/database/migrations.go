package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, migration := range migrations {
		if migration.Version > currentVersion {
			log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

			if err := db.Transaction(func(tx *sql.Tx) error {
				statements := splitSQLStatements(migration.SQL)
				for i, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
					}
				}

				if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
				}

				return nil
			}); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.SplitSeq(sql, "\n")
	for line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Per-user track preference for a show
			CREATE TABLE preferences (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				username TEXT NOT NULL DEFAULT '',
				show_rating_key TEXT NOT NULL,
				show_title TEXT NOT NULL DEFAULT '',
				audio_language_code TEXT NOT NULL,
				audio_codec TEXT NOT NULL DEFAULT '',
				audio_channels INTEGER NOT NULL DEFAULT 0,
				audio_channel_layout TEXT NOT NULL DEFAULT '',
				audio_title TEXT NOT NULL DEFAULT '',
				audio_display_title TEXT NOT NULL DEFAULT '',
				subtitle_language_code TEXT,
				subtitle_forced INTEGER NOT NULL DEFAULT 0,
				subtitle_hearing_impaired INTEGER NOT NULL DEFAULT 0,
				subtitle_codec TEXT,
				subtitle_title TEXT,
				subtitle_display_title TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(user_id, show_rating_key)
			);

			CREATE INDEX idx_preferences_show ON preferences(show_rating_key);

			-- Track change history
			CREATE TABLE history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				username TEXT NOT NULL DEFAULT '',
				show_title TEXT NOT NULL DEFAULT '',
				show_rating_key TEXT NOT NULL,
				episode_title TEXT NOT NULL DEFAULT '',
				episode_rating_key TEXT NOT NULL DEFAULT '',
				event_type TEXT NOT NULL,
				audio_to TEXT NOT NULL DEFAULT '',
				subtitle_to TEXT NOT NULL DEFAULT '',
				episodes_updated INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_history_created ON history(created_at);
			CREATE INDEX idx_history_user ON history(user_id);
		`,
	},
}
