package database

import (
	"fmt"
	"time"
)

// HistoryEntry represents one track change pass recorded for auditing
type HistoryEntry struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	ShowTitle        string    `json:"show_title"`
	ShowRatingKey    string    `json:"show_rating_key"`
	EpisodeTitle     string    `json:"episode_title"`
	EpisodeRatingKey string    `json:"episode_rating_key"`
	EventType        string    `json:"event_type"`
	AudioTo          string    `json:"audio_to"`
	SubtitleTo       string    `json:"subtitle_to"`
	EpisodesUpdated  int       `json:"episodes_updated"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateHistory records a track change pass
func (db *DB) CreateHistory(entry *HistoryEntry) error {
	result, err := db.Exec(`
		INSERT INTO history (
			user_id, username, show_title, show_rating_key,
			episode_title, episode_rating_key, event_type,
			audio_to, subtitle_to, episodes_updated, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, entry.UserID, entry.Username, entry.ShowTitle, entry.ShowRatingKey,
		entry.EpisodeTitle, entry.EpisodeRatingKey, entry.EventType,
		entry.AudioTo, entry.SubtitleTo, entry.EpisodesUpdated)
	if err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListHistory retrieves the most recent history entries, newest first
func (db *DB) ListHistory(limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT id, user_id, username, show_title, show_rating_key,
			episode_title, episode_rating_key, event_type,
			audio_to, subtitle_to, episodes_updated, created_at
		FROM history
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Username, &entry.ShowTitle, &entry.ShowRatingKey,
			&entry.EpisodeTitle, &entry.EpisodeRatingKey, &entry.EventType,
			&entry.AudioTo, &entry.SubtitleTo, &entry.EpisodesUpdated, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// PruneHistory deletes history entries older than the cutoff and returns the
// number of rows removed
func (db *DB) PruneHistory(before time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM history WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return result.RowsAffected()
}
